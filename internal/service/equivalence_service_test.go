package service

import (
	"context"
	"fmt"
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

type equivalenceFixture struct {
	svc       *EquivalenceService
	repo      *equivalenceRepoStub
	runs      *impactRunRepoStub
	cacheRepo *cacheRepoStub
}

func newEquivalenceFixture() equivalenceFixture {
	curricula := newCurriculumStub(
		models.ExternalSubject{ID: "ext-1", Code: "E1", Name: "Calculo Diferencial", Credits: 5},
		models.ExternalSubject{ID: "ext-2", Code: "PRO201", Name: "Software I", Credits: 3},
		models.ExternalSubject{ID: "ext-3", Code: "DEP1", Name: "Deportes", Credits: 2},
		models.ExternalSubject{ID: "ext-4", Code: "E4", Name: "Calculo Integral", Credits: 4},
	)
	catalog := &catalogStub{subjects: []models.CatalogSubject{
		{Code: "MAT101", Name: "Cálculo Diferencial", Credits: 4, ComponentType: "fundamental", IsRequired: true},
		{Code: "MAT102", Name: "Cálculo Integral", Credits: 4, ComponentType: "fundamental", IsRequired: true},
		{Code: "PRO201", Name: "Ingeniería de Software", Credits: 3, ComponentType: "professional", IsRequired: true},
		{Code: "TG", Name: "Trabajo de Grado", Credits: 6, ComponentType: "professional", IsRequired: true},
	}}
	repo := &equivalenceRepoStub{curricula: curricula}
	runs := newImpactRunRepoStub()
	cacheRepo := newCacheRepoStub()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewEquivalenceService(repo, catalog, curricula, runs, cache, NewMetricsService(), convalidation.DefaultMatcher(), nil, zap.NewNop())
	return equivalenceFixture{svc: svc, repo: repo, runs: runs, cacheRepo: cacheRepo}
}

func TestEquivalenceServiceSuggestRanksByName(t *testing.T) {
	f := newEquivalenceFixture()

	resp, err := f.svc.Suggest(context.Background(), "curr-1", "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "E1", resp.ExternalCode)
	require.NotEmpty(t, resp.Suggestions)
	top := resp.Suggestions[0]
	assert.Equal(t, "MAT101", top.InternalCode)
	assert.Equal(t, 1.0, top.Score)
	assert.False(t, top.ExactCode)
	assert.Equal(t, string(convalidation.ComponentFundamentalRequired), top.Component)
	for _, s := range resp.Suggestions {
		assert.Greater(t, s.Score, convalidation.SuggestThreshold)
	}
}

func TestEquivalenceServiceSuggestPutsCodeMatchFirst(t *testing.T) {
	f := newEquivalenceFixture()

	resp, err := f.svc.Suggest(context.Background(), "curr-1", "ext-2")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, "PRO201", resp.Suggestions[0].InternalCode)
	assert.True(t, resp.Suggestions[0].ExactCode)
	assert.Equal(t, "professional_required", resp.Suggestions[0].Component)
}

func TestEquivalenceServiceSuggestUnknownSubject(t *testing.T) {
	f := newEquivalenceFixture()
	_, err := f.svc.Suggest(context.Background(), "curr-1", "ext-404")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestEquivalenceServiceAutoMatchOnlyTouchesPending(t *testing.T) {
	f := newEquivalenceFixture()
	ctx := context.Background()

	_, err := f.svc.Set(ctx, "curr-1", "ext-4", dto.SetEquivalenceRequest{Decision: models.DecisionFlexible})
	require.NoError(t, err)

	resp, err := f.svc.AutoMatch(ctx, "curr-1")
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Pending)
	assert.Equal(t, 1, resp.Unmatched)
	require.Len(t, resp.Accepted, 2)
	assert.Equal(t, "E1", resp.Accepted[0].ExternalCode)
	assert.Equal(t, "MAT101", resp.Accepted[0].InternalCode)
	assert.Equal(t, "PRO201", resp.Accepted[1].InternalCode)
	assert.True(t, resp.Accepted[1].ExactCode)

	decided, err := f.repo.FindBySubject(ctx, "curr-1", "ext-4")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionFlexible, decided.Decision)
	assert.Equal(t, models.SourceManual, decided.Source)

	auto, err := f.repo.FindBySubject(ctx, "curr-1", "ext-1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceAuto, auto.Source)
	require.NotNil(t, auto.Score)

	again, err := f.svc.AutoMatch(ctx, "curr-1")
	require.NoError(t, err)
	assert.Empty(t, again.Accepted)
	assert.Equal(t, 1, again.Pending)
}

func TestEquivalenceServiceSetDirectCanonicalisesCode(t *testing.T) {
	f := newEquivalenceFixture()

	saved, err := f.svc.Set(context.Background(), "curr-1", "ext-1", dto.SetEquivalenceRequest{Decision: models.DecisionDirect, InternalCode: " mat101 "})
	require.NoError(t, err)
	require.NotNil(t, saved.InternalCode)
	assert.Equal(t, "MAT101", *saved.InternalCode)
	assert.Equal(t, "E1", saved.ExternalCode)
}

func TestEquivalenceServiceSetValidation(t *testing.T) {
	f := newEquivalenceFixture()
	ctx := context.Background()

	cases := []struct {
		name string
		req  dto.SetEquivalenceRequest
	}{
		{"unknown decision", dto.SetEquivalenceRequest{Decision: "maybe"}},
		{"direct without code", dto.SetEquivalenceRequest{Decision: models.DecisionDirect}},
		{"direct unknown code", dto.SetEquivalenceRequest{Decision: models.DecisionDirect, InternalCode: "NOPE"}},
		{"flexible bad component", dto.SetEquivalenceRequest{Decision: models.DecisionFlexible, Component: "bogus"}},
		{"not convalidated without component", dto.SetEquivalenceRequest{Decision: models.DecisionNotConvalidated}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Set(ctx, "curr-1", "ext-1", tc.req)
			requireAppError(t, err, appErrors.ErrValidation)
		})
	}
	assert.Empty(t, f.repo.rows)
}

func TestEquivalenceServiceReconfirmMovesToEnd(t *testing.T) {
	f := newEquivalenceFixture()
	ctx := context.Background()

	_, err := f.svc.Set(ctx, "curr-1", "ext-1", dto.SetEquivalenceRequest{Decision: models.DecisionDirect, InternalCode: "MAT101"})
	require.NoError(t, err)
	_, err = f.svc.Set(ctx, "curr-1", "ext-4", dto.SetEquivalenceRequest{Decision: models.DecisionDirect, InternalCode: "MAT102"})
	require.NoError(t, err)
	_, err = f.svc.Set(ctx, "curr-1", "ext-1", dto.SetEquivalenceRequest{Decision: models.DecisionNotConvalidated, Component: "fundamental_required"})
	require.NoError(t, err)

	list, err := f.svc.List(ctx, "curr-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ext-4", list[0].ExternalSubjectID)
	assert.Equal(t, "ext-1", list[1].ExternalSubjectID)
	assert.Equal(t, models.DecisionNotConvalidated, list[1].Decision)
}

func TestEquivalenceServiceRejectsEditsDuringRun(t *testing.T) {
	f := newEquivalenceFixture()
	ctx := context.Background()
	require.NoError(t, f.runs.CreateRun(ctx, &models.ImpactRun{CurriculumID: "curr-1", Status: models.ImpactRunQueued}))

	_, err := f.svc.Set(ctx, "curr-1", "ext-1", dto.SetEquivalenceRequest{Decision: models.DecisionDirect, InternalCode: "MAT101"})
	requireAppError(t, err, appErrors.ErrRunInProgress)
	_, err = f.svc.AutoMatch(ctx, "curr-1")
	requireAppError(t, err, appErrors.ErrRunInProgress)
	err = f.svc.Delete(ctx, "curr-1", "ext-1")
	requireAppError(t, err, appErrors.ErrRunInProgress)
}

func TestEquivalenceServiceWriteLosingRaceToRun(t *testing.T) {
	f := newEquivalenceFixture()
	ctx := context.Background()
	f.repo.writeErr = fmt.Errorf("upsert: %w", repository.ErrRunActive)

	_, err := f.svc.Set(ctx, "curr-1", "ext-1", dto.SetEquivalenceRequest{Decision: models.DecisionDirect, InternalCode: "MAT101"})
	requireAppError(t, err, appErrors.ErrRunInProgress)
	_, err = f.svc.AutoMatch(ctx, "curr-1")
	requireAppError(t, err, appErrors.ErrRunInProgress)
	err = f.svc.Delete(ctx, "curr-1", "ext-1")
	requireAppError(t, err, appErrors.ErrRunInProgress)
}

func TestEquivalenceServiceDeleteInvalidatesSummary(t *testing.T) {
	f := newEquivalenceFixture()
	ctx := context.Background()

	_, err := f.svc.Set(ctx, "curr-1", "ext-1", dto.SetEquivalenceRequest{Decision: models.DecisionDirect, InternalCode: "MAT101"})
	require.NoError(t, err)
	f.cacheRepo.items[impactSummaryKey("curr-1")] = []byte(`{}`)

	require.NoError(t, f.svc.Delete(ctx, "curr-1", "ext-1"))
	assert.NotContains(t, f.cacheRepo.items, impactSummaryKey("curr-1"))

	err = f.svc.Delete(ctx, "curr-1", "ext-1")
	requireAppError(t, err, appErrors.ErrNotFound)
}
