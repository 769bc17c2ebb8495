package models

import "time"

// Student is enrolled in an origin curriculum and is a candidate for transfer.
type Student struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	FullName     string    `db:"full_name" json:"full_name"`
	CurriculumID string    `db:"curriculum_id" json:"curriculum_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// StudentRecord is one attempt at an external subject. SubjectCode is the external code.
type StudentRecord struct {
	StudentID   string `db:"student_id" json:"student_id"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	Passed      bool   `db:"passed" json:"passed"`
}
