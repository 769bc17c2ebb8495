package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/convalidation-api/internal/models"
)

// StudentRepository reads transfer candidates and their academic records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new repository instance.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ListByCurriculum returns the curriculum's students ordered by code. A non-empty ids narrows the result.
func (r *StudentRepository) ListByCurriculum(ctx context.Context, curriculumID string, ids []string) ([]models.Student, error) {
	query := "SELECT id, code, full_name, curriculum_id, created_at FROM students WHERE curriculum_id = $1"
	args := []interface{}{curriculumID}
	if len(ids) > 0 {
		query += " AND id = ANY($2)"
		args = append(args, pq.Array(ids))
	}
	query += " ORDER BY code ASC"

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// ListRecords returns the records of the given students grouped by student id.
func (r *StudentRepository) ListRecords(ctx context.Context, studentIDs []string) (map[string][]models.StudentRecord, error) {
	grouped := make(map[string][]models.StudentRecord, len(studentIDs))
	if len(studentIDs) == 0 {
		return grouped, nil
	}
	const query = `SELECT student_id, subject_code, passed FROM student_records WHERE student_id = ANY($1) ORDER BY student_id ASC, subject_code ASC`
	var records []models.StudentRecord
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list student records: %w", err)
	}
	for _, record := range records {
		grouped[record.StudentID] = append(grouped[record.StudentID], record)
	}
	return grouped, nil
}
