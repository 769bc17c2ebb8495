package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/convalidation-api/internal/models"
)

const impactRunColumns = "id, curriculum_id, status, student_ids, summary, students_total, students_evaluated, error_message, created_at, started_at, finished_at"

const impactSnapshotColumns = "id, run_id, student_id, status, progress_change, payload, created_at"

// ImpactRepository persists impact runs and their per-student snapshots.
type ImpactRepository struct {
	db *sqlx.DB
}

// NewImpactRepository constructs the repository.
func NewImpactRepository(db *sqlx.DB) *ImpactRepository {
	return &ImpactRepository{db: db}
}

// CreateRun inserts a new run row with generated defaults. It fails with ErrRunActive when the
// curriculum already has a queued or running run.
func (r *ImpactRepository) CreateRun(ctx context.Context, run *models.ImpactRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.ImpactRunQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO impact_runs (id, curriculum_id, status, student_ids, summary, students_total, students_evaluated, error_message, created_at, started_at, finished_at)
VALUES (:id, :curriculum_id, :status, :student_ids, :summary, :students_total, :students_evaluated, :error_message, :created_at, :started_at, :finished_at)`
	return withIdleCurriculum(ctx, r.db, run.CurriculumID, true, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, run); err != nil {
			return fmt.Errorf("create impact run: %w", err)
		}
		return nil
	})
}

// GetRun returns a run by id. sql.ErrNoRows is returned unwrapped.
func (r *ImpactRepository) GetRun(ctx context.Context, id string) (*models.ImpactRun, error) {
	query := fmt.Sprintf("SELECT %s FROM impact_runs WHERE id = $1", impactRunColumns)
	var run models.ImpactRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// FindActiveRun returns the queued or running run of a curriculum. sql.ErrNoRows when idle.
func (r *ImpactRepository) FindActiveRun(ctx context.Context, curriculumID string) (*models.ImpactRun, error) {
	query := fmt.Sprintf("SELECT %s FROM impact_runs WHERE curriculum_id = $1 AND status IN ('QUEUED', 'RUNNING') ORDER BY created_at DESC LIMIT 1", impactRunColumns)
	var run models.ImpactRun
	if err := r.db.GetContext(ctx, &run, query, curriculumID); err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestFinishedRun returns the most recent finished run of a curriculum. sql.ErrNoRows when none.
func (r *ImpactRepository) LatestFinishedRun(ctx context.Context, curriculumID string) (*models.ImpactRun, error) {
	query := fmt.Sprintf("SELECT %s FROM impact_runs WHERE curriculum_id = $1 AND status = 'FINISHED' ORDER BY finished_at DESC LIMIT 1", impactRunColumns)
	var run models.ImpactRun
	if err := r.db.GetContext(ctx, &run, query, curriculumID); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListQueuedRuns fetches queued runs (used for cold start recovery).
func (r *ImpactRepository) ListQueuedRuns(ctx context.Context, limit int) ([]models.ImpactRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM impact_runs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1", impactRunColumns)
	var runs []models.ImpactRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued impact runs: %w", err)
	}
	return runs, nil
}

// UpdateImpactRunParams defines the mutable fields.
type UpdateImpactRunParams struct {
	Status            *models.ImpactRunStatus
	Summary           *models.ImpactSummary
	StudentsTotal     *int
	StudentsEvaluated *int
	ErrorMessage      *string
	StartedAt         *time.Time
	FinishedAt        *time.Time
}

// UpdateRun persists the provided changes for a run row.
func (r *ImpactRepository) UpdateRun(ctx context.Context, id string, params UpdateImpactRunParams) error {
	set := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Summary != nil {
		add("summary", *params.Summary)
	}
	if params.StudentsTotal != nil {
		add("students_total", *params.StudentsTotal)
	}
	if params.StudentsEvaluated != nil {
		add("students_evaluated", *params.StudentsEvaluated)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.StartedAt != nil {
		add("started_at", *params.StartedAt)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE impact_runs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update impact run: %w", err)
	}
	return nil
}

// SaveSnapshots inserts the run's per-student snapshots in one transaction.
func (r *ImpactRepository) SaveSnapshots(ctx context.Context, snapshots []models.ImpactSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin impact snapshot tx: %w", err)
	}
	const query = `INSERT INTO impact_snapshots (id, run_id, student_id, status, progress_change, payload, created_at)
VALUES (:id, :run_id, :student_id, :status, :progress_change, :payload, :created_at)`
	now := time.Now().UTC()
	for i := range snapshots {
		if snapshots[i].ID == "" {
			snapshots[i].ID = uuid.NewString()
		}
		if snapshots[i].CreatedAt.IsZero() {
			snapshots[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, snapshots[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert impact snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit impact snapshot tx: %w", err)
	}
	return nil
}

// GetSnapshot returns one student's snapshot for a run. sql.ErrNoRows is returned unwrapped.
func (r *ImpactRepository) GetSnapshot(ctx context.Context, runID, studentID string) (*models.ImpactSnapshot, error) {
	query := fmt.Sprintf("SELECT %s FROM impact_snapshots WHERE run_id = $1 AND student_id = $2", impactSnapshotColumns)
	var snapshot models.ImpactSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, runID, studentID); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListSnapshots returns every snapshot of a run ordered by student.
func (r *ImpactRepository) ListSnapshots(ctx context.Context, runID string) ([]models.ImpactSnapshot, error) {
	query := fmt.Sprintf("SELECT %s FROM impact_snapshots WHERE run_id = $1 ORDER BY student_id ASC", impactSnapshotColumns)
	var snapshots []models.ImpactSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, runID); err != nil {
		return nil, fmt.Errorf("list impact snapshots: %w", err)
	}
	return snapshots, nil
}
