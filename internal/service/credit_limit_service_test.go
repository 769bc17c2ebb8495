package service

import (
	"context"
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
)

func requireAppError(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, want.Code, appErr.Code)
	assert.Equal(t, want.Status, appErr.Status)
}

func newCreditLimitServiceForTest() (*CreditLimitService, *creditLimitRepoStub, *impactRunRepoStub, *cacheRepoStub) {
	repo := &creditLimitRepoStub{}
	runs := newImpactRunRepoStub()
	cacheRepo := newCacheRepoStub()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	defaults := convalidation.CreditLimits{FreeElective: convalidation.Limit(12)}
	svc := NewCreditLimitService(repo, newCurriculumStub(), runs, cache, defaults, zap.NewNop())
	return svc, repo, runs, cacheRepo
}

func TestCreditLimitServiceResolveFallbacks(t *testing.T) {
	svc, repo, _, _ := newCreditLimitServiceForTest()
	ctx := context.Background()

	limits, source, err := svc.Resolve(ctx, "curr-1")
	require.NoError(t, err)
	assert.Equal(t, LimitSourceConfig, source)
	assert.Equal(t, 12, *limits.FreeElective)

	global := models.NewCreditLimit(models.CreditLimitScopeGlobal, convalidation.CreditLimits{FreeElective: convalidation.Limit(8)})
	require.NoError(t, repo.Upsert(ctx, &global))
	limits, source, err = svc.Resolve(ctx, "curr-1")
	require.NoError(t, err)
	assert.Equal(t, LimitSourceGlobal, source)
	assert.Equal(t, 8, *limits.FreeElective)

	own := models.NewCreditLimit("curr-1", convalidation.CreditLimits{Thesis: convalidation.Limit(6)})
	require.NoError(t, repo.Upsert(ctx, &own))
	limits, source, err = svc.Resolve(ctx, "curr-1")
	require.NoError(t, err)
	assert.Equal(t, LimitSourceCurriculum, source)
	assert.Nil(t, limits.FreeElective)
	assert.Equal(t, 6, *limits.Thesis)
}

func TestCreditLimitServiceGetUnknownCurriculum(t *testing.T) {
	svc, _, _, _ := newCreditLimitServiceForTest()
	_, err := svc.Get(context.Background(), "missing")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestCreditLimitServiceUpdate(t *testing.T) {
	svc, repo, _, cacheRepo := newCreditLimitServiceForTest()
	ctx := context.Background()
	cacheRepo.items[impactSummaryKey("curr-1")] = []byte(`{}`)

	resp, err := svc.Update(ctx, "curr-1", dto.CreditLimitsRequest{FundamentalRequired: convalidation.Limit(40)})
	require.NoError(t, err)
	assert.Equal(t, LimitSourceCurriculum, resp.Source)
	assert.Equal(t, 40, *repo.rows["curr-1"].FundamentalRequired)
	assert.NotContains(t, cacheRepo.items, impactSummaryKey("curr-1"))
}

func TestCreditLimitServiceUpdateRejectsNegative(t *testing.T) {
	svc, repo, _, _ := newCreditLimitServiceForTest()
	_, err := svc.Update(context.Background(), "curr-1", dto.CreditLimitsRequest{Leveling: convalidation.Limit(-1)})
	requireAppError(t, err, appErrors.ErrInvalidCreditLimits)
	var cfgErr *convalidation.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, repo.rows)
}

func TestCreditLimitServiceUpdateDuringRun(t *testing.T) {
	svc, repo, runs, _ := newCreditLimitServiceForTest()
	require.NoError(t, runs.CreateRun(context.Background(), &models.ImpactRun{CurriculumID: "curr-1", Status: models.ImpactRunRunning}))

	_, err := svc.Update(context.Background(), "curr-1", dto.CreditLimitsRequest{Thesis: convalidation.Limit(6)})
	requireAppError(t, err, appErrors.ErrRunInProgress)
	assert.Empty(t, repo.rows)
}

func TestCreditLimitServiceUpdateLosingRaceToRun(t *testing.T) {
	svc, repo, _, _ := newCreditLimitServiceForTest()
	repo.writeErr = repository.ErrRunActive

	_, err := svc.Update(context.Background(), "curr-1", dto.CreditLimitsRequest{Thesis: convalidation.Limit(6)})
	requireAppError(t, err, appErrors.ErrRunInProgress)
}

func TestCreditLimitServiceUpdateDefault(t *testing.T) {
	svc, _, _, cacheRepo := newCreditLimitServiceForTest()
	ctx := context.Background()
	cacheRepo.items[impactSummaryKey("curr-1")] = []byte(`{}`)
	cacheRepo.items[impactSummaryKey("curr-2")] = []byte(`{}`)

	resp, err := svc.UpdateDefault(ctx, dto.CreditLimitsRequest{FreeElective: convalidation.Limit(9)})
	require.NoError(t, err)
	assert.Equal(t, models.CreditLimitScopeGlobal, resp.Scope)
	assert.Empty(t, cacheRepo.items)

	current, err := svc.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, LimitSourceGlobal, current.Source)
	assert.Equal(t, 9, *current.Limits.FreeElective)
}
