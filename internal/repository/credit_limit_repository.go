package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/convalidation-api/internal/models"
)

// CreditLimitRepository persists credit ceilings per scope.
type CreditLimitRepository struct {
	db *sqlx.DB
}

// NewCreditLimitRepository creates a new repository instance.
func NewCreditLimitRepository(db *sqlx.DB) *CreditLimitRepository {
	return &CreditLimitRepository{db: db}
}

// Get returns the ceilings stored for scope. sql.ErrNoRows is returned unwrapped.
func (r *CreditLimitRepository) Get(ctx context.Context, scope string) (*models.CreditLimit, error) {
	const query = `SELECT scope, fundamental_required, fundamental_optional, professional_required, professional_optional,
leveling, thesis, free_elective, updated_at FROM credit_limits WHERE scope = $1`
	var limit models.CreditLimit
	if err := r.db.GetContext(ctx, &limit, query, scope); err != nil {
		return nil, err
	}
	return &limit, nil
}

// Upsert replaces the ceilings of a scope. Curriculum scopes fail with ErrRunActive while the
// curriculum has a queued or running impact run.
func (r *CreditLimitRepository) Upsert(ctx context.Context, limit *models.CreditLimit) error {
	limit.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO credit_limits (scope, fundamental_required, fundamental_optional, professional_required, professional_optional, leveling, thesis, free_elective, updated_at)
VALUES (:scope, :fundamental_required, :fundamental_optional, :professional_required, :professional_optional, :leveling, :thesis, :free_elective, :updated_at)
ON CONFLICT (scope)
DO UPDATE SET fundamental_required = EXCLUDED.fundamental_required, fundamental_optional = EXCLUDED.fundamental_optional,
              professional_required = EXCLUDED.professional_required, professional_optional = EXCLUDED.professional_optional,
              leveling = EXCLUDED.leveling, thesis = EXCLUDED.thesis, free_elective = EXCLUDED.free_elective,
              updated_at = EXCLUDED.updated_at`
	if limit.Scope == models.CreditLimitScopeGlobal {
		if _, err := r.db.NamedExecContext(ctx, query, limit); err != nil {
			return fmt.Errorf("upsert credit limits: %w", err)
		}
		return nil
	}
	return withIdleCurriculum(ctx, r.db, limit.Scope, false, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, limit); err != nil {
			return fmt.Errorf("upsert credit limits: %w", err)
		}
		return nil
	})
}
