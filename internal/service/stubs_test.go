package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/internal/repository"
	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
	"github.com/noah-isme/convalidation-api/pkg/jobs"
)

type curriculumStub struct {
	curricula map[string]*models.Curriculum
	subjects  map[string][]models.ExternalSubject
}

func newCurriculumStub(subjects ...models.ExternalSubject) *curriculumStub {
	stub := &curriculumStub{
		curricula: map[string]*models.Curriculum{"curr-1": {ID: "curr-1", Code: "ING-2010", Name: "Ingeniería 2010"}},
		subjects:  map[string][]models.ExternalSubject{},
	}
	for _, s := range subjects {
		if s.CurriculumID == "" {
			s.CurriculumID = "curr-1"
		}
		stub.subjects[s.CurriculumID] = append(stub.subjects[s.CurriculumID], s)
	}
	return stub
}

func (c *curriculumStub) FindByID(ctx context.Context, id string) (*models.Curriculum, error) {
	curriculum, ok := c.curricula[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return curriculum, nil
}

func (c *curriculumStub) ListSubjects(ctx context.Context, curriculumID string) ([]models.ExternalSubject, error) {
	return c.subjects[curriculumID], nil
}

func (c *curriculumStub) FindSubject(ctx context.Context, curriculumID, subjectID string) (*models.ExternalSubject, error) {
	for _, s := range c.subjects[curriculumID] {
		if s.ID == subjectID {
			subject := s
			return &subject, nil
		}
	}
	return nil, sql.ErrNoRows
}

type catalogStub struct {
	subjects []models.CatalogSubject
}

func (c *catalogStub) ListSubjects(ctx context.Context) ([]models.CatalogSubject, error) {
	return c.subjects, nil
}

func (c *catalogStub) FindByCode(ctx context.Context, code string) (*models.CatalogSubject, error) {
	for _, s := range c.subjects {
		if strings.EqualFold(s.Code, code) {
			subject := s
			return &subject, nil
		}
	}
	return nil, sql.ErrNoRows
}

// equivalenceRepoStub keeps decisions keyed by external subject id in insertion order.
type equivalenceRepoStub struct {
	curricula *curriculumStub
	rows      []models.Equivalence
	writeErr  error
}

func (r *equivalenceRepoStub) index(curriculumID, subjectID string) int {
	for i, row := range r.rows {
		if row.CurriculumID == curriculumID && row.ExternalSubjectID == subjectID {
			return i
		}
	}
	return -1
}

func (r *equivalenceRepoStub) join(eq models.Equivalence) models.Equivalence {
	if r.curricula != nil {
		if subject, err := r.curricula.FindSubject(context.Background(), eq.CurriculumID, eq.ExternalSubjectID); err == nil {
			eq.ExternalCode = subject.Code
			eq.ExternalName = subject.Name
		}
	}
	return eq
}

func (r *equivalenceRepoStub) ListByCurriculum(ctx context.Context, curriculumID string) ([]models.Equivalence, error) {
	var out []models.Equivalence
	for _, row := range r.rows {
		if row.CurriculumID == curriculumID {
			out = append(out, r.join(row))
		}
	}
	return out, nil
}

func (r *equivalenceRepoStub) FindBySubject(ctx context.Context, curriculumID, subjectID string) (*models.Equivalence, error) {
	i := r.index(curriculumID, subjectID)
	if i < 0 {
		return nil, sql.ErrNoRows
	}
	eq := r.join(r.rows[i])
	return &eq, nil
}

func (r *equivalenceRepoStub) Upsert(ctx context.Context, eq *models.Equivalence) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	if eq.ID == "" {
		eq.ID = uuid.NewString()
	}
	if i := r.index(eq.CurriculumID, eq.ExternalSubjectID); i >= 0 {
		r.rows = append(r.rows[:i], r.rows[i+1:]...)
	}
	r.rows = append(r.rows, *eq)
	return nil
}

func (r *equivalenceRepoStub) CreateIfPending(ctx context.Context, eq *models.Equivalence) (bool, error) {
	if r.writeErr != nil {
		return false, r.writeErr
	}
	if r.index(eq.CurriculumID, eq.ExternalSubjectID) >= 0 {
		return false, nil
	}
	return true, r.Upsert(ctx, eq)
}

func (r *equivalenceRepoStub) Delete(ctx context.Context, curriculumID, subjectID string) (bool, error) {
	if r.writeErr != nil {
		return false, r.writeErr
	}
	i := r.index(curriculumID, subjectID)
	if i < 0 {
		return false, nil
	}
	r.rows = append(r.rows[:i], r.rows[i+1:]...)
	return true, nil
}

func (r *equivalenceRepoStub) ListPendingSubjects(ctx context.Context, curriculumID string) ([]models.ExternalSubject, error) {
	var pending []models.ExternalSubject
	for _, s := range r.curricula.subjects[curriculumID] {
		if r.index(curriculumID, s.ID) < 0 {
			pending = append(pending, s)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Code < pending[j].Code })
	return pending, nil
}

type creditLimitRepoStub struct {
	rows     map[string]models.CreditLimit
	err      error
	writeErr error
}

func (r *creditLimitRepoStub) Get(ctx context.Context, scope string) (*models.CreditLimit, error) {
	if r.err != nil {
		return nil, r.err
	}
	row, ok := r.rows[scope]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (r *creditLimitRepoStub) Upsert(ctx context.Context, limit *models.CreditLimit) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	if r.rows == nil {
		r.rows = map[string]models.CreditLimit{}
	}
	limit.UpdatedAt = time.Now().UTC()
	r.rows[limit.Scope] = *limit
	return nil
}

type impactRunRepoStub struct {
	mu        sync.Mutex
	runs      map[string]*models.ImpactRun
	snapshots map[string][]models.ImpactSnapshot
	updates   []repository.UpdateImpactRunParams
	createErr error
}

func newImpactRunRepoStub() *impactRunRepoStub {
	return &impactRunRepoStub{runs: map[string]*models.ImpactRun{}, snapshots: map[string][]models.ImpactSnapshot{}}
}

func (r *impactRunRepoStub) CreateRun(ctx context.Context, run *models.ImpactRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.CreatedAt = time.Now().UTC()
	copied := *run
	r.runs[run.ID] = &copied
	return nil
}

func (r *impactRunRepoStub) GetRun(ctx context.Context, id string) (*models.ImpactRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *run
	return &copied, nil
}

func (r *impactRunRepoStub) FindActiveRun(ctx context.Context, curriculumID string) (*models.ImpactRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.CurriculumID == curriculumID && run.Status.Active() {
			copied := *run
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *impactRunRepoStub) LatestFinishedRun(ctx context.Context, curriculumID string) (*models.ImpactRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.ImpactRun
	for _, run := range r.runs {
		if run.CurriculumID != curriculumID || run.Status != models.ImpactRunFinished {
			continue
		}
		if latest == nil || run.FinishedAt.After(*latest.FinishedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copied := *latest
	return &copied, nil
}

func (r *impactRunRepoStub) ListQueuedRuns(ctx context.Context, limit int) ([]models.ImpactRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var queued []models.ImpactRun
	for _, run := range r.runs {
		if run.Status == models.ImpactRunQueued {
			queued = append(queued, *run)
		}
	}
	return queued, nil
}

func (r *impactRunRepoStub) UpdateRun(ctx context.Context, id string, params repository.UpdateImpactRunParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.updates = append(r.updates, params)
	if params.Status != nil {
		run.Status = *params.Status
	}
	if params.Summary != nil {
		run.Summary = *params.Summary
	}
	if params.StudentsTotal != nil {
		run.StudentsTotal = *params.StudentsTotal
	}
	if params.StudentsEvaluated != nil {
		run.StudentsEvaluated = *params.StudentsEvaluated
	}
	if params.ErrorMessage != nil {
		run.ErrorMessage = params.ErrorMessage
	}
	if params.StartedAt != nil {
		run.StartedAt = params.StartedAt
	}
	if params.FinishedAt != nil {
		run.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *impactRunRepoStub) SaveSnapshots(ctx context.Context, snapshots []models.ImpactSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range snapshots {
		r.snapshots[s.RunID] = append(r.snapshots[s.RunID], s)
	}
	return nil
}

func (r *impactRunRepoStub) GetSnapshot(ctx context.Context, runID, studentID string) (*models.ImpactSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.snapshots[runID] {
		if s.StudentID == studentID {
			snapshot := s
			return &snapshot, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *impactRunRepoStub) ListSnapshots(ctx context.Context, runID string) ([]models.ImpactSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ImpactSnapshot{}, r.snapshots[runID]...), nil
}

type studentRepoStub struct {
	students []models.Student
	records  map[string][]models.StudentRecord
}

func (s *studentRepoStub) ListByCurriculum(ctx context.Context, curriculumID string, ids []string) ([]models.Student, error) {
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Student
	for _, student := range s.students {
		if student.CurriculumID != curriculumID {
			continue
		}
		if len(ids) > 0 && !wanted[student.ID] {
			continue
		}
		out = append(out, student)
	}
	return out, nil
}

func (s *studentRepoStub) ListRecords(ctx context.Context, studentIDs []string) (map[string][]models.StudentRecord, error) {
	out := map[string][]models.StudentRecord{}
	for _, id := range studentIDs {
		if records, ok := s.records[id]; ok {
			out[id] = records
		}
	}
	return out, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// cacheRepoStub round-trips values through JSON like the Redis repository does.
type cacheRepoStub struct {
	items   map[string][]byte
	deleted []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{items: map[string][]byte{}}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func (c *cacheRepoStub) Delete(ctx context.Context, key string) error {
	delete(c.items, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			c.deleted = append(c.deleted, key)
		}
	}
	return nil
}
