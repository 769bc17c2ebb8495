package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/convalidation-api/internal/models"
)

// EquivalenceRepository persists confirmed equivalence decisions.
type EquivalenceRepository struct {
	db *sqlx.DB
}

// NewEquivalenceRepository creates a new repository instance.
func NewEquivalenceRepository(db *sqlx.DB) *EquivalenceRepository {
	return &EquivalenceRepository{db: db}
}

const equivalenceSelect = `SELECT e.id, e.curriculum_id, e.external_subject_id, s.code AS external_code, s.name AS external_name,
e.decision, e.internal_code, e.component, e.score, e.source, e.confirmed_at
FROM equivalences e JOIN external_subjects s ON s.id = e.external_subject_id`

// ListByCurriculum returns decisions in confirmation order.
func (r *EquivalenceRepository) ListByCurriculum(ctx context.Context, curriculumID string) ([]models.Equivalence, error) {
	query := equivalenceSelect + ` WHERE e.curriculum_id = $1 ORDER BY e.confirmed_at ASC, e.id ASC`
	var equivalences []models.Equivalence
	if err := r.db.SelectContext(ctx, &equivalences, query, curriculumID); err != nil {
		return nil, fmt.Errorf("list equivalences: %w", err)
	}
	return equivalences, nil
}

// FindBySubject returns the decision for one external subject.
func (r *EquivalenceRepository) FindBySubject(ctx context.Context, curriculumID, externalSubjectID string) (*models.Equivalence, error) {
	query := equivalenceSelect + ` WHERE e.curriculum_id = $1 AND e.external_subject_id = $2`
	var equivalence models.Equivalence
	if err := r.db.GetContext(ctx, &equivalence, query, curriculumID, externalSubjectID); err != nil {
		return nil, err
	}
	return &equivalence, nil
}

// Upsert stores a decision. Re-confirming a subject moves it to the end of the confirmation order.
func (r *EquivalenceRepository) Upsert(ctx context.Context, equivalence *models.Equivalence) error {
	prepareEquivalence(equivalence)
	const query = `INSERT INTO equivalences (id, curriculum_id, external_subject_id, decision, internal_code, component, score, source, confirmed_at)
VALUES (:id, :curriculum_id, :external_subject_id, :decision, :internal_code, :component, :score, :source, :confirmed_at)
ON CONFLICT (curriculum_id, external_subject_id)
DO UPDATE SET decision = EXCLUDED.decision, internal_code = EXCLUDED.internal_code, component = EXCLUDED.component,
              score = EXCLUDED.score, source = EXCLUDED.source, confirmed_at = EXCLUDED.confirmed_at`
	return withIdleCurriculum(ctx, r.db, equivalence.CurriculumID, false, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, equivalence); err != nil {
			return fmt.Errorf("upsert equivalence: %w", err)
		}
		return nil
	})
}

// CreateIfPending stores a decision only when the subject has none yet and reports whether it did.
func (r *EquivalenceRepository) CreateIfPending(ctx context.Context, equivalence *models.Equivalence) (bool, error) {
	prepareEquivalence(equivalence)
	const query = `INSERT INTO equivalences (id, curriculum_id, external_subject_id, decision, internal_code, component, score, source, confirmed_at)
VALUES (:id, :curriculum_id, :external_subject_id, :decision, :internal_code, :component, :score, :source, :confirmed_at)
ON CONFLICT (curriculum_id, external_subject_id) DO NOTHING`
	var created bool
	err := withIdleCurriculum(ctx, r.db, equivalence.CurriculumID, false, func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, equivalence)
		if err != nil {
			return fmt.Errorf("create equivalence: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("create equivalence rows affected: %w", err)
		}
		created = affected > 0
		return nil
	})
	return created, err
}

// Delete reverts a subject to pending and reports whether a decision existed.
func (r *EquivalenceRepository) Delete(ctx context.Context, curriculumID, externalSubjectID string) (bool, error) {
	var deleted bool
	err := withIdleCurriculum(ctx, r.db, curriculumID, false, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM equivalences WHERE curriculum_id = $1 AND external_subject_id = $2`, curriculumID, externalSubjectID)
		if err != nil {
			return fmt.Errorf("delete equivalence: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete equivalence rows affected: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	return deleted, err
}

// ListPendingSubjects returns external subjects without a decision, ordered by code.
func (r *EquivalenceRepository) ListPendingSubjects(ctx context.Context, curriculumID string) ([]models.ExternalSubject, error) {
	const query = `SELECT s.id, s.curriculum_id, s.code, s.name, s.credits, s.component_type, s.is_required, s.is_leveling, s.created_at
FROM external_subjects s
LEFT JOIN equivalences e ON e.curriculum_id = s.curriculum_id AND e.external_subject_id = s.id
WHERE s.curriculum_id = $1 AND e.id IS NULL
ORDER BY s.code ASC`
	var subjects []models.ExternalSubject
	if err := r.db.SelectContext(ctx, &subjects, query, curriculumID); err != nil {
		return nil, fmt.Errorf("list pending subjects: %w", err)
	}
	return subjects, nil
}

func prepareEquivalence(equivalence *models.Equivalence) {
	if equivalence.ID == "" {
		equivalence.ID = uuid.NewString()
	}
	if equivalence.Source == "" {
		equivalence.Source = models.SourceManual
	}
	if equivalence.ConfirmedAt.IsZero() {
		equivalence.ConfirmedAt = time.Now().UTC()
	}
}
