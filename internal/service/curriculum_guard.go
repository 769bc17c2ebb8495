package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/internal/repository"
	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
)

type curriculumFinder interface {
	FindByID(ctx context.Context, id string) (*models.Curriculum, error)
}

type activeRunFinder interface {
	FindActiveRun(ctx context.Context, curriculumID string) (*models.ImpactRun, error)
}

// curriculumGuard checks that a curriculum exists and, for edits, that no impact run holds it.
type curriculumGuard struct {
	curricula curriculumFinder
	runs      activeRunFinder
}

func (g curriculumGuard) ensureExists(ctx context.Context, curriculumID string) (*models.Curriculum, error) {
	curriculum, err := g.curricula.FindByID(ctx, curriculumID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}
	return curriculum, nil
}

// ensureIdle returns ErrRunInProgress while a queued or running run exists for the curriculum.
func (g curriculumGuard) ensureIdle(ctx context.Context, curriculumID string) error {
	if g.runs == nil {
		return nil
	}
	run, err := g.runs.FindActiveRun(ctx, curriculumID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check impact runs")
	}
	if run != nil && run.Status.Active() {
		return appErrors.ErrRunInProgress
	}
	return nil
}

// ensureEditable combines ensureExists and ensureIdle.
func (g curriculumGuard) ensureEditable(ctx context.Context, curriculumID string) error {
	if _, err := g.ensureExists(ctx, curriculumID); err != nil {
		return err
	}
	return g.ensureIdle(ctx, curriculumID)
}

// writeError maps a failed curriculum write. A run that started after ensureIdle surfaces here
// as repository.ErrRunActive.
func writeError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrRunActive):
		return appErrors.ErrRunInProgress
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
