package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrRunActive is returned by writes that find a queued or running impact run on the curriculum.
var ErrRunActive = errors.New("impact run active for curriculum")

// withIdleCurriculum runs fn inside a transaction that holds the curriculum row and has seen no
// active impact run. Run creation takes the row exclusively; equivalence writes share it, so a run
// can only start after in-flight edits commit and edits fail once a run exists.
// sql.ErrNoRows is returned unwrapped for an unknown curriculum.
func withIdleCurriculum(ctx context.Context, db *sqlx.DB, curriculumID string, exclusive bool, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin curriculum transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lock := "FOR SHARE"
	if exclusive {
		lock = "FOR UPDATE"
	}
	var id string
	if err = tx.GetContext(ctx, &id, "SELECT id FROM curricula WHERE id = $1 "+lock, curriculumID); err != nil {
		return err
	}

	var active bool
	const activeQuery = `SELECT EXISTS (SELECT 1 FROM impact_runs WHERE curriculum_id = $1 AND status IN ('QUEUED', 'RUNNING'))`
	if err = tx.GetContext(ctx, &active, activeQuery, curriculumID); err != nil {
		return fmt.Errorf("check active impact run: %w", err)
	}
	if active {
		return ErrRunActive
	}

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit curriculum transaction: %w", err)
	}
	return nil
}
