package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/convalidation-api/internal/models"
)

const catalogColumns = "id, code, name, credits, component_type, is_required, is_leveling, created_at, updated_at"

// CatalogRepository reads the institution's current curriculum.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new repository instance.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListSubjects returns every catalog subject ordered by code.
func (r *CatalogRepository) ListSubjects(ctx context.Context) ([]models.CatalogSubject, error) {
	query := fmt.Sprintf("SELECT %s FROM catalog_subjects ORDER BY code ASC", catalogColumns)
	var subjects []models.CatalogSubject
	if err := r.db.SelectContext(ctx, &subjects, query); err != nil {
		return nil, fmt.Errorf("list catalog subjects: %w", err)
	}
	return subjects, nil
}

// FindByCode returns a catalog subject by case-insensitive code.
func (r *CatalogRepository) FindByCode(ctx context.Context, code string) (*models.CatalogSubject, error) {
	query := fmt.Sprintf("SELECT %s FROM catalog_subjects WHERE UPPER(code) = UPPER($1)", catalogColumns)
	var subject models.CatalogSubject
	if err := r.db.GetContext(ctx, &subject, query, code); err != nil {
		return nil, err
	}
	return &subject, nil
}
