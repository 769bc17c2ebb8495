package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/convalidation-api/internal/models"
)

const externalSubjectColumns = "id, curriculum_id, code, name, credits, component_type, is_required, is_leveling, created_at"

// CurriculumRepository reads origin curricula and their subjects.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository creates a new repository instance.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// FindByID returns a curriculum by id.
func (r *CurriculumRepository) FindByID(ctx context.Context, id string) (*models.Curriculum, error) {
	const query = `SELECT id, code, name, institution, created_at, updated_at FROM curricula WHERE id = $1`
	var curriculum models.Curriculum
	if err := r.db.GetContext(ctx, &curriculum, query, id); err != nil {
		return nil, err
	}
	return &curriculum, nil
}

// ListSubjects returns the curriculum's subjects ordered by code.
func (r *CurriculumRepository) ListSubjects(ctx context.Context, curriculumID string) ([]models.ExternalSubject, error) {
	query := fmt.Sprintf("SELECT %s FROM external_subjects WHERE curriculum_id = $1 ORDER BY code ASC", externalSubjectColumns)
	var subjects []models.ExternalSubject
	if err := r.db.SelectContext(ctx, &subjects, query, curriculumID); err != nil {
		return nil, fmt.Errorf("list external subjects: %w", err)
	}
	return subjects, nil
}

// FindSubject returns one subject of the curriculum.
func (r *CurriculumRepository) FindSubject(ctx context.Context, curriculumID, subjectID string) (*models.ExternalSubject, error) {
	query := fmt.Sprintf("SELECT %s FROM external_subjects WHERE curriculum_id = $1 AND id = $2", externalSubjectColumns)
	var subject models.ExternalSubject
	if err := r.db.GetContext(ctx, &subject, query, curriculumID, subjectID); err != nil {
		return nil, err
	}
	return &subject, nil
}
