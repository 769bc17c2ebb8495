package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/convalidation-api/internal/dto"
	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/pkg/convalidation"
	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
)

type equivalenceStore interface {
	ListByCurriculum(ctx context.Context, curriculumID string) ([]models.Equivalence, error)
	FindBySubject(ctx context.Context, curriculumID, externalSubjectID string) (*models.Equivalence, error)
	Upsert(ctx context.Context, equivalence *models.Equivalence) error
	CreateIfPending(ctx context.Context, equivalence *models.Equivalence) (bool, error)
	Delete(ctx context.Context, curriculumID, externalSubjectID string) (bool, error)
	ListPendingSubjects(ctx context.Context, curriculumID string) ([]models.ExternalSubject, error)
}

type catalogReader interface {
	ListSubjects(ctx context.Context) ([]models.CatalogSubject, error)
	FindByCode(ctx context.Context, code string) (*models.CatalogSubject, error)
}

type curriculumReader interface {
	curriculumFinder
	ListSubjects(ctx context.Context, curriculumID string) ([]models.ExternalSubject, error)
	FindSubject(ctx context.Context, curriculumID, subjectID string) (*models.ExternalSubject, error)
}

// EquivalenceService suggests, auto-matches and records equivalence decisions.
type EquivalenceService struct {
	repo      equivalenceStore
	catalog   catalogReader
	curricula curriculumReader
	guard     curriculumGuard
	cache     *CacheService
	metrics   *MetricsService
	matcher   convalidation.Matcher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEquivalenceService constructs the service.
func NewEquivalenceService(repo equivalenceStore, catalog catalogReader, curricula curriculumReader, runs activeRunFinder, cache *CacheService, metrics *MetricsService, matcher convalidation.Matcher, validate *validator.Validate, logger *zap.Logger) *EquivalenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EquivalenceService{
		repo:      repo,
		catalog:   catalog,
		curricula: curricula,
		guard:     curriculumGuard{curricula: curricula, runs: runs},
		cache:     cache,
		metrics:   metrics,
		matcher:   matcher,
		validator: validate,
		logger:    logger,
	}
}

// Suggest ranks catalog subjects for one external subject.
func (s *EquivalenceService) Suggest(ctx context.Context, curriculumID, subjectID string) (*dto.SuggestionsResponse, error) {
	external, err := s.findSubject(ctx, curriculumID, subjectID)
	if err != nil {
		return nil, err
	}
	catalog, candidates, err := s.loadCandidates(ctx)
	if err != nil {
		return nil, err
	}

	suggestions := s.matcher.Suggest(matchSubject(external.Code, external.Name), candidates)
	resp := &dto.SuggestionsResponse{
		ExternalSubjectID: external.ID,
		ExternalCode:      external.Code,
		ExternalName:      external.Name,
		Suggestions:       make([]dto.SuggestionResponse, 0, len(suggestions)),
	}
	for _, suggestion := range suggestions {
		subject := catalog[suggestion.Subject.Code]
		resp.Suggestions = append(resp.Suggestions, dto.SuggestionResponse{
			InternalCode: subject.Code,
			InternalName: subject.Name,
			Credits:      subject.Credits,
			Component:    string(catalogComponent(subject)),
			Score:        suggestion.Score,
			ExactCode:    suggestion.ExactCode,
		})
	}
	return resp, nil
}

// AutoMatch records a direct equivalence for every pending subject whose best candidate
// matches by code or scores at or above the auto-accept threshold. Decided subjects are
// never touched.
func (s *EquivalenceService) AutoMatch(ctx context.Context, curriculumID string) (*dto.AutoMatchResponse, error) {
	if err := s.guard.ensureEditable(ctx, curriculumID); err != nil {
		return nil, err
	}
	pending, err := s.repo.ListPendingSubjects(ctx, curriculumID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending subjects")
	}
	_, candidates, err := s.loadCandidates(ctx)
	if err != nil {
		return nil, err
	}

	resp := &dto.AutoMatchResponse{Accepted: []dto.AutoMatchPair{}, Pending: len(pending)}
	for _, subject := range pending {
		match, ok := s.matcher.AutoMatch(matchSubject(subject.Code, subject.Name), candidates)
		if !ok {
			resp.Unmatched++
			continue
		}
		code := match.Subject.Code
		score := match.Score
		created, err := s.repo.CreateIfPending(ctx, &models.Equivalence{
			CurriculumID:      curriculumID,
			ExternalSubjectID: subject.ID,
			Decision:          models.DecisionDirect,
			InternalCode:      &code,
			Score:             &score,
			Source:            models.SourceAuto,
			ConfirmedAt:       time.Now().UTC(),
		})
		if err != nil {
			return nil, writeError(err, "failed to save equivalence")
		}
		if !created {
			continue
		}
		resp.Accepted = append(resp.Accepted, dto.AutoMatchPair{
			ExternalSubjectID: subject.ID,
			ExternalCode:      subject.Code,
			InternalCode:      code,
			Score:             score,
			ExactCode:         match.ExactCode,
		})
	}

	if len(resp.Accepted) > 0 {
		s.metrics.AddAutoAccepted(len(resp.Accepted))
		_ = s.cache.Invalidate(ctx, impactSummaryKey(curriculumID))
	}
	s.logger.Info("auto-match finished",
		zap.String("curriculum_id", curriculumID),
		zap.Int("pending", resp.Pending),
		zap.Int("accepted", len(resp.Accepted)),
		zap.Int("unmatched", resp.Unmatched),
	)
	return resp, nil
}

// List returns the curriculum's decisions in confirmation order.
func (s *EquivalenceService) List(ctx context.Context, curriculumID string) ([]models.Equivalence, error) {
	if _, err := s.guard.ensureExists(ctx, curriculumID); err != nil {
		return nil, err
	}
	equivalences, err := s.repo.ListByCurriculum(ctx, curriculumID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list equivalences")
	}
	if equivalences == nil {
		equivalences = []models.Equivalence{}
	}
	return equivalences, nil
}

// Set confirms a decision for an external subject, replacing any previous one.
func (s *EquivalenceService) Set(ctx context.Context, curriculumID, subjectID string, req dto.SetEquivalenceRequest) (*models.Equivalence, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid equivalence payload")
	}
	if err := s.guard.ensureEditable(ctx, curriculumID); err != nil {
		return nil, err
	}
	if _, err := s.findSubject(ctx, curriculumID, subjectID); err != nil {
		return nil, err
	}

	equivalence := &models.Equivalence{
		CurriculumID:      curriculumID,
		ExternalSubjectID: subjectID,
		Decision:          req.Decision,
		Source:            models.SourceManual,
		ConfirmedAt:       time.Now().UTC(),
	}
	switch req.Decision {
	case models.DecisionDirect:
		code := strings.TrimSpace(req.InternalCode)
		if code == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "internal_code is required for direct equivalences")
		}
		internal, err := s.catalog.FindByCode(ctx, code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "internal subject not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load internal subject")
		}
		equivalence.InternalCode = &internal.Code
	case models.DecisionFlexible:
		component := convalidation.Component(req.Component)
		if component == "" {
			component = convalidation.ComponentFreeElective
		}
		if !component.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown component")
		}
		value := string(component)
		equivalence.Component = &value
	case models.DecisionNotConvalidated:
		component := convalidation.Component(req.Component)
		if !component.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "component is required for not convalidated subjects")
		}
		value := string(component)
		equivalence.Component = &value
	}

	if err := s.repo.Upsert(ctx, equivalence); err != nil {
		return nil, writeError(err, "failed to save equivalence")
	}
	_ = s.cache.Invalidate(ctx, impactSummaryKey(curriculumID))

	saved, err := s.repo.FindBySubject(ctx, curriculumID, subjectID)
	if err != nil {
		s.logger.Warn("failed to reload equivalence", zap.String("curriculum_id", curriculumID), zap.String("subject_id", subjectID), zap.Error(err))
		return equivalence, nil
	}
	return saved, nil
}

// Delete reverts a subject to pending.
func (s *EquivalenceService) Delete(ctx context.Context, curriculumID, subjectID string) error {
	if err := s.guard.ensureEditable(ctx, curriculumID); err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, curriculumID, subjectID)
	if err != nil {
		return writeError(err, "failed to delete equivalence")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "equivalence not found")
	}
	_ = s.cache.Invalidate(ctx, impactSummaryKey(curriculumID))
	return nil
}

func (s *EquivalenceService) findSubject(ctx context.Context, curriculumID, subjectID string) (*models.ExternalSubject, error) {
	subject, err := s.curricula.FindSubject(ctx, curriculumID, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// loadCandidates returns the catalog keyed by code and the matcher candidates in code order.
func (s *EquivalenceService) loadCandidates(ctx context.Context) (map[string]models.CatalogSubject, []convalidation.Subject, error) {
	subjects, err := s.catalog.ListSubjects(ctx)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load catalog")
	}
	byCode := make(map[string]models.CatalogSubject, len(subjects))
	candidates := make([]convalidation.Subject, 0, len(subjects))
	for _, subject := range subjects {
		byCode[subject.Code] = subject
		candidates = append(candidates, matchSubject(subject.Code, subject.Name))
	}
	return byCode, candidates, nil
}

// matchSubject carries only what the matcher compares.
func matchSubject(code, name string) convalidation.Subject {
	return convalidation.Subject{Code: code, Name: name}
}

func catalogComponent(subject models.CatalogSubject) convalidation.Component {
	return convalidation.Classify(subject.ComponentType, subject.IsRequired, subject.IsLeveling, subject.Code)
}
