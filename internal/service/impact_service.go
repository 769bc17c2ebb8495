package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/convalidation-api/internal/dto"
	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/internal/repository"
	"github.com/noah-isme/convalidation-api/pkg/convalidation"
	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
	"github.com/noah-isme/convalidation-api/pkg/jobs"
)

// ImpactJobType tags queue jobs that execute an impact run.
const ImpactJobType = "impact_run"

type impactRunStore interface {
	activeRunFinder
	CreateRun(ctx context.Context, run *models.ImpactRun) error
	GetRun(ctx context.Context, id string) (*models.ImpactRun, error)
	LatestFinishedRun(ctx context.Context, curriculumID string) (*models.ImpactRun, error)
	ListQueuedRuns(ctx context.Context, limit int) ([]models.ImpactRun, error)
	UpdateRun(ctx context.Context, id string, params repository.UpdateImpactRunParams) error
	SaveSnapshots(ctx context.Context, snapshots []models.ImpactSnapshot) error
	GetSnapshot(ctx context.Context, runID, studentID string) (*models.ImpactSnapshot, error)
	ListSnapshots(ctx context.Context, runID string) ([]models.ImpactSnapshot, error)
}

type studentReader interface {
	ListByCurriculum(ctx context.Context, curriculumID string, ids []string) ([]models.Student, error)
	ListRecords(ctx context.Context, studentIDs []string) (map[string][]models.StudentRecord, error)
}

type equivalenceLister interface {
	ListByCurriculum(ctx context.Context, curriculumID string) ([]models.Equivalence, error)
}

type catalogLister interface {
	ListSubjects(ctx context.Context) ([]models.CatalogSubject, error)
}

type externalSubjectLister interface {
	curriculumFinder
	ListSubjects(ctx context.Context, curriculumID string) ([]models.ExternalSubject, error)
}

type limitResolver interface {
	Resolve(ctx context.Context, curriculumID string) (convalidation.CreditLimits, string, error)
}

type impactEvaluator interface {
	RunBatch(ctx context.Context, snapshot convalidation.Snapshot, students []convalidation.StudentInput) (*convalidation.BatchResult, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ImpactServiceConfig tunes summary caching.
type ImpactServiceConfig struct {
	SummaryTTL time.Duration
}

// ImpactService runs impact batches for a curriculum and serves their results.
type ImpactService struct {
	runs         impactRunStore
	students     studentReader
	equivalences equivalenceLister
	catalog      catalogLister
	curricula    externalSubjectLister
	limits       limitResolver
	engine       impactEvaluator
	exporter     *ExportService
	cache        *CacheService
	metrics      *MetricsService
	queue        jobDispatcher
	guard        curriculumGuard
	validator    *validator.Validate
	logger       *zap.Logger
	cfg          ImpactServiceConfig
}

// ImpactServiceDeps groups the collaborators of ImpactService.
type ImpactServiceDeps struct {
	Runs         impactRunStore
	Students     studentReader
	Equivalences equivalenceLister
	Catalog      catalogLister
	Curricula    externalSubjectLister
	Limits       limitResolver
	Engine       impactEvaluator
	Exporter     *ExportService
	Cache        *CacheService
	Metrics      *MetricsService
	Validator    *validator.Validate
	Logger       *zap.Logger
}

// NewImpactService constructs the service. Runs execute synchronously until SetQueue is called.
func NewImpactService(deps ImpactServiceDeps, cfg ImpactServiceConfig) *ImpactService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Exporter == nil {
		deps.Exporter = NewExportService(nil)
	}
	return &ImpactService{
		runs:         deps.Runs,
		students:     deps.Students,
		equivalences: deps.Equivalences,
		catalog:      deps.Catalog,
		curricula:    deps.Curricula,
		limits:       deps.Limits,
		engine:       deps.Engine,
		exporter:     deps.Exporter,
		cache:        deps.Cache,
		metrics:      deps.Metrics,
		guard:        curriculumGuard{curricula: deps.Curricula, runs: deps.Runs},
		validator:    deps.Validator,
		logger:       deps.Logger,
		cfg:          cfg,
	}
}

// SetQueue switches StartRun to background execution.
func (s *ImpactService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// StartRun creates a run for the curriculum and executes it, inline or through the queue.
func (s *ImpactService) StartRun(ctx context.Context, curriculumID string, req dto.CreateImpactRunRequest) (*dto.ImpactRunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid impact run payload")
	}
	if err := s.guard.ensureEditable(ctx, curriculumID); err != nil {
		return nil, err
	}
	limits, _, err := s.limits.Resolve(ctx, curriculumID)
	if err != nil {
		return nil, err
	}
	if err := validateLimits(limits); err != nil {
		return nil, err
	}

	run := &models.ImpactRun{
		CurriculumID: curriculumID,
		Status:       models.ImpactRunQueued,
		StudentIDs:   models.StudentIDList(dedupeIDs(req.StudentIDs)),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, writeError(err, "failed to create impact run")
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: ImpactJobType}); err != nil {
			s.markFailed(ctx, run.ID, "failed to enqueue impact run")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue impact run")
		}
		return dto.NewImpactRunResponse(run), nil
	}

	if err := s.execute(ctx, run); err != nil {
		s.markFailed(context.WithoutCancel(ctx), run.ID, err.Error())
		return nil, appErrors.FromError(err)
	}
	return s.GetRun(context.WithoutCancel(ctx), run.ID)
}

// HandleJob executes a queued run. Returning an error lets the queue retry.
func (s *ImpactService) HandleJob(ctx context.Context, job jobs.Job) error {
	run, err := s.runs.GetRun(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("impact run vanished before execution", zap.String("run_id", job.ID))
			return nil
		}
		return err
	}
	if run.Status != models.ImpactRunQueued {
		return nil
	}
	if err := s.execute(ctx, run); err != nil {
		if isPermanent(err) {
			s.markFailed(ctx, run.ID, err.Error())
			return nil
		}
		queued := models.ImpactRunQueued
		msg := err.Error()
		if updateErr := s.runs.UpdateRun(ctx, run.ID, repository.UpdateImpactRunParams{Status: &queued, ErrorMessage: &msg}); updateErr != nil {
			s.logger.Warn("failed to requeue impact run", zap.String("run_id", run.ID), zap.Error(updateErr))
		}
		return err
	}
	return nil
}

// HandleExhausted marks a run failed once the queue gives up on it.
func (s *ImpactService) HandleExhausted(job jobs.Job, err error) {
	s.markFailed(context.Background(), job.ID, err.Error())
}

// RecoverPendingRuns replays queued runs after a restart.
func (s *ImpactService) RecoverPendingRuns(ctx context.Context) {
	if s.queue == nil {
		return
	}
	pending, err := s.runs.ListQueuedRuns(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued impact runs", zap.Error(err))
		return
	}
	for _, run := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: ImpactJobType}); err != nil {
			s.logger.Warn("failed to requeue impact run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
}

// GetRun returns run status and, once finished, its summary.
func (s *ImpactService) GetRun(ctx context.Context, runID string) (*dto.ImpactRunResponse, error) {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return dto.NewImpactRunResponse(run), nil
}

// GetStudentImpact returns one student's allocation and report for a run.
func (s *ImpactService) GetStudentImpact(ctx context.Context, runID, studentID string) (*convalidation.StudentImpact, error) {
	snapshot, err := s.runs.GetSnapshot(ctx, runID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student impact not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student impact")
	}
	impact := convalidation.StudentImpact(snapshot.Payload)
	return &impact, nil
}

// LatestSummary returns the summary of the curriculum's most recent finished run.
func (s *ImpactService) LatestSummary(ctx context.Context, curriculumID string) (*dto.CurriculumSummaryResponse, error) {
	var cached dto.CurriculumSummaryResponse
	if hit, _ := s.cache.Get(ctx, impactSummaryKey(curriculumID), &cached); hit {
		return &cached, nil
	}
	if _, err := s.guard.ensureExists(ctx, curriculumID); err != nil {
		return nil, err
	}
	run, err := s.runs.LatestFinishedRun(ctx, curriculumID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no finished impact run for curriculum")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load impact summary")
	}
	resp := summaryResponse(run)
	_ = s.cache.Set(ctx, impactSummaryKey(curriculumID), resp, s.cfg.SummaryTTL)
	return resp, nil
}

// Export renders a finished run's per-student results as CSV.
func (s *ImpactService) Export(ctx context.Context, runID string) (*ExportResult, error) {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.ImpactRunFinished && run.Status != models.ImpactRunCancelled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "impact run has not finished")
	}
	snapshots, err := s.runs.ListSnapshots(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load impact snapshots")
	}
	result, err := s.exporter.RenderImpact(runID, snapshots)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render impact export")
	}
	return result, nil
}

func (s *ImpactService) loadRun(ctx context.Context, runID string) (*models.ImpactRun, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "impact run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load impact run")
	}
	return run, nil
}

// execute loads the curriculum snapshot, evaluates the batch and persists the results.
func (s *ImpactService) execute(ctx context.Context, run *models.ImpactRun) error {
	started := time.Now().UTC()
	running := models.ImpactRunRunning
	if err := s.runs.UpdateRun(ctx, run.ID, repository.UpdateImpactRunParams{Status: &running, StartedAt: &started}); err != nil {
		return fmt.Errorf("mark impact run running: %w", err)
	}
	log := s.logger.With(zap.String("run_id", run.ID), zap.String("curriculum_id", run.CurriculumID))

	loadStart := time.Now()
	snapshot, inputs, err := s.loadSnapshot(ctx, run)
	s.metrics.ObserveDBQuery("impact_snapshot", time.Since(loadStart))
	if err != nil {
		return err
	}
	total := len(inputs)
	if err := s.runs.UpdateRun(ctx, run.ID, repository.UpdateImpactRunParams{StudentsTotal: &total}); err != nil {
		return fmt.Errorf("record impact run size: %w", err)
	}

	batch, batchErr := s.engine.RunBatch(ctx, snapshot, inputs)
	if batchErr != nil && batch == nil {
		return batchErr
	}

	// Persisting a cancelled batch must not depend on the cancelled context.
	persistCtx := context.WithoutCancel(ctx)
	snapshots := make([]models.ImpactSnapshot, 0, len(batch.Impacts))
	for _, impact := range batch.Impacts {
		snapshots = append(snapshots, models.ImpactSnapshot{
			RunID:          run.ID,
			StudentID:      impact.StudentID,
			Status:         string(impact.Report.Status),
			ProgressChange: impact.Report.ProgressChange,
			Payload:        models.ImpactPayload(impact),
		})
	}
	if err := s.runs.SaveSnapshots(persistCtx, snapshots); err != nil {
		return err
	}

	status := models.ImpactRunFinished
	if batch.Cancelled {
		status = models.ImpactRunCancelled
	}
	finished := time.Now().UTC()
	summary := models.ImpactSummary(batch.Summary)
	evaluated := len(batch.Impacts)
	params := repository.UpdateImpactRunParams{
		Status:            &status,
		Summary:           &summary,
		StudentsEvaluated: &evaluated,
		FinishedAt:        &finished,
	}
	if batchErr != nil {
		msg := batchErr.Error()
		params.ErrorMessage = &msg
	}
	if err := s.runs.UpdateRun(persistCtx, run.ID, params); err != nil {
		return fmt.Errorf("finish impact run: %w", err)
	}

	s.metrics.ObserveImpactBatch(batch)
	s.metrics.ObserveImpactRun(string(status), finished.Sub(started))

	if status == models.ImpactRunFinished {
		run.Status = status
		run.Summary = summary
		run.FinishedAt = &finished
		_ = s.cache.Set(persistCtx, impactSummaryKey(run.CurriculumID), summaryResponse(run), s.cfg.SummaryTTL)
	}
	log.Info("impact run completed",
		zap.String("status", string(status)),
		zap.Int("students", evaluated),
		zap.Int("improved", batch.Summary.Improved),
		zap.Int("declined", batch.Summary.Declined),
		zap.Duration("duration", finished.Sub(started)),
	)
	return nil
}

// loadSnapshot reads limits, equivalences, both catalogs and student records once per run.
func (s *ImpactService) loadSnapshot(ctx context.Context, run *models.ImpactRun) (convalidation.Snapshot, []convalidation.StudentInput, error) {
	limits, _, err := s.limits.Resolve(ctx, run.CurriculumID)
	if err != nil {
		return convalidation.Snapshot{}, nil, err
	}
	if err := validateLimits(limits); err != nil {
		return convalidation.Snapshot{}, nil, err
	}

	externalSubjects, err := s.curricula.ListSubjects(ctx, run.CurriculumID)
	if err != nil {
		return convalidation.Snapshot{}, nil, err
	}
	catalogSubjects, err := s.catalog.ListSubjects(ctx)
	if err != nil {
		return convalidation.Snapshot{}, nil, err
	}
	equivalences, err := s.equivalences.ListByCurriculum(ctx, run.CurriculumID)
	if err != nil {
		return convalidation.Snapshot{}, nil, err
	}
	students, err := s.students.ListByCurriculum(ctx, run.CurriculumID, run.StudentIDs)
	if err != nil {
		return convalidation.Snapshot{}, nil, err
	}
	ids := make([]string, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	records, err := s.students.ListRecords(ctx, ids)
	if err != nil {
		return convalidation.Snapshot{}, nil, err
	}

	external := convalidation.NewCatalog(nil)
	for _, subject := range externalSubjects {
		external.AddDecimal(engineSubject(subject.Code, subject.Name, subject.ComponentType, subject.IsRequired, subject.IsLeveling), subject.Credits)
	}
	internal := convalidation.NewCatalog(nil)
	for _, subject := range catalogSubjects {
		internal.AddDecimal(engineSubject(subject.Code, subject.Name, subject.ComponentType, subject.IsRequired, subject.IsLeveling), subject.Credits)
	}

	snapshot := convalidation.Snapshot{
		Limits:           limits,
		Equivalences:     toEngineEquivalences(equivalences),
		Internal:         internal,
		External:         external,
		NewTotalSubjects: len(catalogSubjects),
	}

	inputs := make([]convalidation.StudentInput, 0, len(students))
	for _, student := range students {
		inputs = append(inputs, convalidation.NewStudentInput(studentRecord(student.ID, records[student.ID]), external))
	}
	return snapshot, inputs, nil
}

func (s *ImpactService) markFailed(ctx context.Context, runID, message string) {
	failed := models.ImpactRunFailed
	now := time.Now().UTC()
	if err := s.runs.UpdateRun(ctx, runID, repository.UpdateImpactRunParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark impact run failed", zap.String("run_id", runID), zap.Error(err))
	}
	s.metrics.ObserveImpactRun(string(failed), 0)
}

func engineSubject(code, name, subjectType string, isRequired, isLeveling bool) convalidation.Subject {
	return convalidation.Subject{Code: code, Name: name, Type: subjectType, IsRequired: isRequired, IsLeveling: isLeveling}
}

// toEngineEquivalences keeps confirmation order. Unknown decisions reach the engine without
// a decision so they surface as malformed warnings.
func toEngineEquivalences(rows []models.Equivalence) []convalidation.Equivalence {
	out := make([]convalidation.Equivalence, 0, len(rows))
	for _, row := range rows {
		eq := convalidation.Equivalence{ExternalCode: row.ExternalCode}
		switch row.Decision {
		case models.DecisionDirect:
			eq.Decision = convalidation.Direct{InternalCode: deref(row.InternalCode)}
		case models.DecisionFlexible:
			component := convalidation.Component(deref(row.Component))
			if component == "" {
				component = convalidation.ComponentFreeElective
			}
			eq.Decision = convalidation.Flexible{Component: component}
		case models.DecisionNotConvalidated:
			eq.Decision = convalidation.NotConvalidated{Component: convalidation.Component(deref(row.Component))}
		}
		out = append(out, eq)
	}
	return out
}

func studentRecord(studentID string, records []models.StudentRecord) convalidation.StudentCreditRecord {
	entries := make([]convalidation.RecordEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, convalidation.RecordEntry{SubjectCode: record.SubjectCode, Passed: record.Passed})
	}
	return convalidation.StudentCreditRecord{StudentID: studentID, Entries: entries}
}

func summaryResponse(run *models.ImpactRun) *dto.CurriculumSummaryResponse {
	return &dto.CurriculumSummaryResponse{
		CurriculumID: run.CurriculumID,
		RunID:        run.ID,
		Summary:      convalidation.Summary(run.Summary),
		FinishedAt:   run.FinishedAt,
	}
}

// isPermanent reports errors a retry cannot fix.
func isPermanent(err error) bool {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Status < 500
	}
	var cfgErr *convalidation.ConfigurationError
	return errors.As(err, &cfgErr)
}

func dedupeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
