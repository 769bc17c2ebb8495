package repository

import (
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func strPtr(v string) *string { return &v }

// expectCurriculumLock primes the transaction opened by withIdleCurriculum.
func expectCurriculumLock(mock sqlmock.Sqlmock, curriculumID, lock string, active bool) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM curricula WHERE id = $1 " + lock)).
		WithArgs(curriculumID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(curriculumID))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM impact_runs WHERE curriculum_id = $1 AND status IN ('QUEUED', 'RUNNING'))")).
		WithArgs(curriculumID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(active))
}
