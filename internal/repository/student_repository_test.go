package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentRepositoryListByCurriculum(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, full_name, curriculum_id, created_at FROM students WHERE curriculum_id = $1 ORDER BY code ASC")).
		WithArgs("curr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "full_name", "curriculum_id", "created_at"}).
			AddRow("stu-1", "2019001", "Ana Pérez", "curr-1", now))

	students, err := repo.ListByCurriculum(context.Background(), "curr-1", nil)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "Ana Pérez", students[0].FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListByCurriculumSubset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE curriculum_id = $1 AND id = ANY($2) ORDER BY code ASC")).
		WithArgs("curr-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "full_name", "curriculum_id", "created_at"}))

	students, err := repo.ListByCurriculum(context.Background(), "curr-1", []string{"stu-1", "stu-2"})
	require.NoError(t, err)
	assert.Empty(t, students)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListRecordsGroupsByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM student_records WHERE student_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "subject_code", "passed"}).
			AddRow("stu-1", "E1", true).
			AddRow("stu-1", "E2", false).
			AddRow("stu-2", "E1", true))

	grouped, err := repo.ListRecords(context.Background(), []string{"stu-1", "stu-2"})
	require.NoError(t, err)
	require.Len(t, grouped["stu-1"], 2)
	require.Len(t, grouped["stu-2"], 1)
	assert.False(t, grouped["stu-1"][1].Passed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListRecordsEmpty(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()

	grouped, err := NewStudentRepository(db).ListRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, grouped)
}
