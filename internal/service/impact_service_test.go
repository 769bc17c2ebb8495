package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/convalidation-api/internal/dto"
	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/internal/repository"
	"github.com/noah-isme/convalidation-api/pkg/convalidation"
	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
	"github.com/noah-isme/convalidation-api/pkg/jobs"
)

type impactFixture struct {
	svc       *ImpactService
	runs      *impactRunRepoStub
	limits    *creditLimitRepoStub
	cacheRepo *cacheRepoStub
}

func strRef(v string) *string { return &v }

// newImpactFixture models one curriculum with five origin subjects, of which E9 has
// fractional credits, and a four-subject catalog.
func newImpactFixture() impactFixture {
	curricula := newCurriculumStub(
		models.ExternalSubject{ID: "ext-1", Code: "E1", Name: "Calculo I", Credits: 5},
		models.ExternalSubject{ID: "ext-2", Code: "E2", Name: "Calculo II", Credits: 5},
		models.ExternalSubject{ID: "ext-4", Code: "E4", Name: "Deportes", Credits: 2},
		models.ExternalSubject{ID: "ext-7", Code: "E7", Name: "Etica", Credits: 2},
		models.ExternalSubject{ID: "ext-9", Code: "E9", Name: "Seminario", Credits: 2.5},
	)
	catalog := &catalogStub{subjects: []models.CatalogSubject{
		{Code: "MAT101", Name: "Cálculo Diferencial", Credits: 12, ComponentType: "fundamental", IsRequired: true},
		{Code: "MAT102", Name: "Cálculo Integral", Credits: 4, ComponentType: "fundamental", IsRequired: true},
		{Code: "PRO201", Name: "Ingeniería de Software", Credits: 3, ComponentType: "professional", IsRequired: true},
		{Code: "TG", Name: "Trabajo de Grado", Credits: 6, ComponentType: "professional", IsRequired: true},
	}}
	equivalences := &equivalenceRepoStub{curricula: curricula, rows: []models.Equivalence{
		{ID: "eq-1", CurriculumID: "curr-1", ExternalSubjectID: "ext-1", Decision: models.DecisionDirect, InternalCode: strRef("MAT101")},
		{ID: "eq-2", CurriculumID: "curr-1", ExternalSubjectID: "ext-2", Decision: models.DecisionDirect, InternalCode: strRef("MAT102")},
		{ID: "eq-4", CurriculumID: "curr-1", ExternalSubjectID: "ext-4", Decision: models.DecisionFlexible, Component: strRef("free_elective")},
		{ID: "eq-7", CurriculumID: "curr-1", ExternalSubjectID: "ext-7", Decision: models.DecisionNotConvalidated, Component: strRef("professional_required")},
		{ID: "eq-9", CurriculumID: "curr-1", ExternalSubjectID: "ext-9", Decision: models.DecisionFlexible, Component: strRef("free_elective")},
	}}
	students := &studentRepoStub{
		students: []models.Student{
			{ID: "stu-1", Code: "2019001", CurriculumID: "curr-1"},
			{ID: "stu-2", Code: "2019002", CurriculumID: "curr-1"},
		},
		records: map[string][]models.StudentRecord{
			"stu-1": {
				{StudentID: "stu-1", SubjectCode: "E1", Passed: true},
				{StudentID: "stu-1", SubjectCode: "E2", Passed: true},
				{StudentID: "stu-1", SubjectCode: "E4", Passed: true},
				{StudentID: "stu-1", SubjectCode: "E9", Passed: true},
				{StudentID: "stu-1", SubjectCode: "OTHER", Passed: true},
			},
			"stu-2": {
				{StudentID: "stu-2", SubjectCode: "E1", Passed: false},
			},
		},
	}
	limitRepo := &creditLimitRepoStub{rows: map[string]models.CreditLimit{
		"curr-1": models.NewCreditLimit("curr-1", convalidation.CreditLimits{
			FundamentalRequired: convalidation.Limit(10),
			FreeElective:        convalidation.Limit(6),
		}),
	}}
	runs := newImpactRunRepoStub()
	cacheRepo := newCacheRepoStub()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	limitSvc := NewCreditLimitService(limitRepo, curricula, runs, cache, convalidation.CreditLimits{}, zap.NewNop())

	svc := NewImpactService(ImpactServiceDeps{
		Runs:         runs,
		Students:     students,
		Equivalences: equivalences,
		Catalog:      catalog,
		Curricula:    curricula,
		Limits:       limitSvc,
		Engine:       convalidation.NewEngine(convalidation.Options{Workers: 2}),
		Cache:        cache,
		Metrics:      NewMetricsService(),
		Logger:       zap.NewNop(),
	}, ImpactServiceConfig{SummaryTTL: time.Minute})
	return impactFixture{svc: svc, runs: runs, limits: limitRepo, cacheRepo: cacheRepo}
}

func TestImpactServiceStartRunSynchronous(t *testing.T) {
	f := newImpactFixture()
	ctx := context.Background()

	resp, err := f.svc.StartRun(ctx, "curr-1", dto.CreateImpactRunRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.ImpactRunFinished, resp.Status)
	assert.Equal(t, 2, resp.StudentsTotal)
	assert.Equal(t, 2, resp.StudentsEvaluated)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 2, resp.Summary.Students)
	assert.Equal(t, 1, resp.Summary.Declined)
	assert.Equal(t, 1, resp.Summary.Neutral)
	assert.InDelta(t, -15.0, resp.Summary.AverageChange, 1e-9)

	impact, err := f.svc.GetStudentImpact(ctx, resp.ID, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 10, impact.Allocation.Used[convalidation.ComponentFundamentalRequired])
	assert.Equal(t, 6, impact.Allocation.Used[convalidation.ComponentFreeElective])
	assert.Equal(t, 2, impact.Allocation.TotalExcess())
	assert.Equal(t, 2, impact.Report.ConvalidatedCount)
	assert.Equal(t, 80.0, impact.Report.OriginalProgress)
	assert.Equal(t, 50.0, impact.Report.NewProgress)
	assert.Equal(t, convalidation.StatusDeclined, impact.Report.Status)
	assert.Equal(t, []string{"E7"}, impact.Allocation.NotConvalidated)
	require.Len(t, impact.Allocation.Warnings, 1)
	assert.Equal(t, convalidation.WarningData, impact.Allocation.Warnings[0].Kind)

	_, err = f.svc.GetStudentImpact(ctx, resp.ID, "stu-404")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestImpactServiceStartRunCachesSummary(t *testing.T) {
	f := newImpactFixture()
	ctx := context.Background()

	_, err := f.svc.LatestSummary(ctx, "curr-1")
	requireAppError(t, err, appErrors.ErrNotFound)

	resp, err := f.svc.StartRun(ctx, "curr-1", dto.CreateImpactRunRequest{})
	require.NoError(t, err)
	assert.Contains(t, f.cacheRepo.items, impactSummaryKey("curr-1"))

	summary, err := f.svc.LatestSummary(ctx, "curr-1")
	require.NoError(t, err)
	assert.Equal(t, resp.ID, summary.RunID)
	assert.Equal(t, 2, summary.Summary.Students)
}

func TestImpactServiceStartRunSubset(t *testing.T) {
	f := newImpactFixture()

	resp, err := f.svc.StartRun(context.Background(), "curr-1", dto.CreateImpactRunRequest{StudentIDs: []string{"stu-2", "stu-2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.StudentsTotal)
	assert.Equal(t, 1, resp.Summary.Neutral)
}

func TestImpactServiceStartRunRejectsActiveRun(t *testing.T) {
	f := newImpactFixture()
	ctx := context.Background()
	require.NoError(t, f.runs.CreateRun(ctx, &models.ImpactRun{CurriculumID: "curr-1", Status: models.ImpactRunRunning}))

	_, err := f.svc.StartRun(ctx, "curr-1", dto.CreateImpactRunRequest{})
	requireAppError(t, err, appErrors.ErrRunInProgress)
	assert.Len(t, f.runs.runs, 1)
}

func TestImpactServiceStartRunLosingRaceToAnotherRun(t *testing.T) {
	f := newImpactFixture()
	f.runs.createErr = repository.ErrRunActive

	_, err := f.svc.StartRun(context.Background(), "curr-1", dto.CreateImpactRunRequest{})
	requireAppError(t, err, appErrors.ErrRunInProgress)
	assert.Empty(t, f.runs.runs)
}

func TestImpactServiceStartRunInvalidLimits(t *testing.T) {
	f := newImpactFixture()
	f.limits.rows["curr-1"] = models.NewCreditLimit("curr-1", convalidation.CreditLimits{Leveling: convalidation.Limit(-1)})

	_, err := f.svc.StartRun(context.Background(), "curr-1", dto.CreateImpactRunRequest{})
	requireAppError(t, err, appErrors.ErrInvalidCreditLimits)
	assert.Empty(t, f.runs.runs)
}

func TestImpactServiceStartRunUnknownCurriculum(t *testing.T) {
	f := newImpactFixture()
	_, err := f.svc.StartRun(context.Background(), "curr-404", dto.CreateImpactRunRequest{})
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestImpactServiceQueuedRun(t *testing.T) {
	f := newImpactFixture()
	queue := &queueStub{}
	f.svc.SetQueue(queue)
	ctx := context.Background()

	resp, err := f.svc.StartRun(ctx, "curr-1", dto.CreateImpactRunRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.ImpactRunQueued, resp.Status)
	assert.Nil(t, resp.Summary)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, ImpactJobType, queue.jobs[0].Type)
	assert.Equal(t, resp.ID, queue.jobs[0].ID)

	require.NoError(t, f.svc.HandleJob(ctx, queue.jobs[0]))
	run, err := f.svc.GetRun(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImpactRunFinished, run.Status)

	// A duplicate delivery after completion is ignored.
	require.NoError(t, f.svc.HandleJob(ctx, queue.jobs[0]))
	assert.Len(t, f.runs.snapshots[resp.ID], 2)
}

func TestImpactServiceEnqueueFailureMarksRunFailed(t *testing.T) {
	f := newImpactFixture()
	f.svc.SetQueue(&queueStub{err: errors.New("queue stopped")})

	_, err := f.svc.StartRun(context.Background(), "curr-1", dto.CreateImpactRunRequest{})
	requireAppError(t, err, appErrors.ErrInternal)
	require.Len(t, f.runs.runs, 1)
	for _, run := range f.runs.runs {
		assert.Equal(t, models.ImpactRunFailed, run.Status)
		require.NotNil(t, run.ErrorMessage)
	}
}

func TestImpactServiceHandleExhausted(t *testing.T) {
	f := newImpactFixture()
	ctx := context.Background()
	run := &models.ImpactRun{CurriculumID: "curr-1", Status: models.ImpactRunQueued}
	require.NoError(t, f.runs.CreateRun(ctx, run))

	f.svc.HandleExhausted(jobs.Job{ID: run.ID, Type: ImpactJobType}, errors.New("database unavailable"))

	stored, err := f.runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImpactRunFailed, stored.Status)
	assert.Equal(t, "database unavailable", *stored.ErrorMessage)
	require.NotNil(t, stored.FinishedAt)
}

func TestImpactServiceRecoverPendingRuns(t *testing.T) {
	f := newImpactFixture()
	queue := &queueStub{}
	f.svc.SetQueue(queue)
	ctx := context.Background()
	require.NoError(t, f.runs.CreateRun(ctx, &models.ImpactRun{CurriculumID: "curr-1", Status: models.ImpactRunQueued}))
	require.NoError(t, f.runs.CreateRun(ctx, &models.ImpactRun{CurriculumID: "curr-1", Status: models.ImpactRunFinished}))

	f.svc.RecoverPendingRuns(ctx)
	assert.Len(t, queue.jobs, 1)
}

func TestImpactServiceExport(t *testing.T) {
	f := newImpactFixture()
	ctx := context.Background()

	resp, err := f.svc.StartRun(ctx, "curr-1", dto.CreateImpactRunRequest{})
	require.NoError(t, err)

	result, err := f.svc.Export(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "impact-"+resp.ID+".csv", result.Filename)
	assert.Contains(t, result.ContentType, "text/csv")

	lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "student_id,status,original_progress,new_progress,progress_change"))
	assert.Equal(t, "stu-1,declined,80.0,50.0,-30.0,2,1,2,1,E7,10,0,0,0,0,0,6", lines[1])
	assert.Equal(t, "stu-2,neutral,0.0,0.0,0.0,0,1,0,1,E7,0,0,0,0,0,0,0", lines[2])
}

func TestImpactServiceExportRequiresFinishedRun(t *testing.T) {
	f := newImpactFixture()
	ctx := context.Background()
	run := &models.ImpactRun{CurriculumID: "curr-1", Status: models.ImpactRunRunning}
	require.NoError(t, f.runs.CreateRun(ctx, run))

	_, err := f.svc.Export(ctx, run.ID)
	requireAppError(t, err, appErrors.ErrConflict)

	_, err = f.svc.Export(ctx, "run-404")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestStudentRecordKeepsEveryEntry(t *testing.T) {
	record := studentRecord("s", []models.StudentRecord{
		{SubjectCode: "E1", Passed: true},
		{SubjectCode: "E2", Passed: false},
	})
	assert.Equal(t, "s", record.StudentID)
	assert.Equal(t, []convalidation.RecordEntry{
		{SubjectCode: "E1", Passed: true},
		{SubjectCode: "E2", Passed: false},
	}, record.Entries)
}

func TestToEngineEquivalences(t *testing.T) {
	out := toEngineEquivalences([]models.Equivalence{
		{ExternalCode: "E1", Decision: models.DecisionDirect, InternalCode: strRef("MAT101")},
		{ExternalCode: "E2", Decision: models.DecisionFlexible},
		{ExternalCode: "E3", Decision: models.DecisionNotConvalidated, Component: strRef("thesis")},
		{ExternalCode: "E4", Decision: "unknown"},
	})
	require.Len(t, out, 4)
	assert.Equal(t, convalidation.Direct{InternalCode: "MAT101"}, out[0].Decision)
	assert.Equal(t, convalidation.Flexible{Component: convalidation.ComponentFreeElective}, out[1].Decision)
	assert.Equal(t, convalidation.NotConvalidated{Component: convalidation.ComponentThesis}, out[2].Decision)
	assert.Nil(t, out[3].Decision)
}
