package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/convalidation-api/internal/dto"
	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/pkg/convalidation"
	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
)

// Where effective ceilings were read from.
const (
	LimitSourceCurriculum = "curriculum"
	LimitSourceGlobal     = "global"
	LimitSourceConfig     = "config"
)

type creditLimitStore interface {
	Get(ctx context.Context, scope string) (*models.CreditLimit, error)
	Upsert(ctx context.Context, limit *models.CreditLimit) error
}

// CreditLimitService resolves and edits credit ceilings.
type CreditLimitService struct {
	repo     creditLimitStore
	guard    curriculumGuard
	cache    *CacheService
	defaults convalidation.CreditLimits
	logger   *zap.Logger
}

// NewCreditLimitService constructs the service. defaults apply when no global row is stored.
func NewCreditLimitService(repo creditLimitStore, curricula curriculumFinder, runs activeRunFinder, cache *CacheService, defaults convalidation.CreditLimits, logger *zap.Logger) *CreditLimitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditLimitService{
		repo:     repo,
		guard:    curriculumGuard{curricula: curricula, runs: runs},
		cache:    cache,
		defaults: defaults,
		logger:   logger,
	}
}

// Resolve returns the ceilings in force for a curriculum: its own row, else the global row,
// else the configured defaults.
func (s *CreditLimitService) Resolve(ctx context.Context, curriculumID string) (convalidation.CreditLimits, string, error) {
	row, err := s.repo.Get(ctx, curriculumID)
	switch {
	case err == nil:
		return row.Limits(), LimitSourceCurriculum, nil
	case !errors.Is(err, sql.ErrNoRows):
		return convalidation.CreditLimits{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credit limits")
	}
	return s.resolveDefault(ctx)
}

func (s *CreditLimitService) resolveDefault(ctx context.Context) (convalidation.CreditLimits, string, error) {
	row, err := s.repo.Get(ctx, models.CreditLimitScopeGlobal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaults, LimitSourceConfig, nil
		}
		return convalidation.CreditLimits{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load default credit limits")
	}
	return row.Limits(), LimitSourceGlobal, nil
}

// Get returns the effective ceilings of a curriculum.
func (s *CreditLimitService) Get(ctx context.Context, curriculumID string) (*dto.CreditLimitsResponse, error) {
	if _, err := s.guard.ensureExists(ctx, curriculumID); err != nil {
		return nil, err
	}
	limits, source, err := s.Resolve(ctx, curriculumID)
	if err != nil {
		return nil, err
	}
	return &dto.CreditLimitsResponse{Scope: curriculumID, Source: source, Limits: limits}, nil
}

// Default returns the institution-wide ceilings.
func (s *CreditLimitService) Default(ctx context.Context) (*dto.CreditLimitsResponse, error) {
	limits, source, err := s.resolveDefault(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.CreditLimitsResponse{Scope: models.CreditLimitScopeGlobal, Source: source, Limits: limits}, nil
}

// Update replaces a curriculum's ceilings.
func (s *CreditLimitService) Update(ctx context.Context, curriculumID string, req dto.CreditLimitsRequest) (*dto.CreditLimitsResponse, error) {
	limits := req.Limits()
	if err := validateLimits(limits); err != nil {
		return nil, err
	}
	if err := s.guard.ensureEditable(ctx, curriculumID); err != nil {
		return nil, err
	}
	row := models.NewCreditLimit(curriculumID, limits)
	if err := s.repo.Upsert(ctx, &row); err != nil {
		return nil, writeError(err, "failed to save credit limits")
	}
	_ = s.cache.Invalidate(ctx, impactSummaryKey(curriculumID))
	s.logger.Info("credit limits updated", zap.String("curriculum_id", curriculumID))
	return &dto.CreditLimitsResponse{Scope: curriculumID, Source: LimitSourceCurriculum, Limits: limits}, nil
}

// UpdateDefault replaces the global ceilings used by curricula without their own row.
func (s *CreditLimitService) UpdateDefault(ctx context.Context, req dto.CreditLimitsRequest) (*dto.CreditLimitsResponse, error) {
	limits := req.Limits()
	if err := validateLimits(limits); err != nil {
		return nil, err
	}
	row := models.NewCreditLimit(models.CreditLimitScopeGlobal, limits)
	if err := s.repo.Upsert(ctx, &row); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save default credit limits")
	}
	_ = s.cache.InvalidatePattern(ctx, impactSummaryPattern)
	s.logger.Info("default credit limits updated")
	return &dto.CreditLimitsResponse{Scope: models.CreditLimitScopeGlobal, Source: LimitSourceGlobal, Limits: limits}, nil
}

// validateLimits maps a ConfigurationError to INVALID_CREDIT_LIMITS.
func validateLimits(limits convalidation.CreditLimits) error {
	if err := limits.Validate(); err != nil {
		var cfgErr *convalidation.ConfigurationError
		if errors.As(err, &cfgErr) {
			return appErrors.Wrap(err, appErrors.ErrInvalidCreditLimits.Code, appErrors.ErrInvalidCreditLimits.Status, cfgErr.Error())
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate credit limits")
	}
	return nil
}
