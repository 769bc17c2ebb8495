package models

import (
	"database/sql/driver"
	"time"

	"github.com/noah-isme/convalidation-api/pkg/convalidation"
)

// ImpactRunStatus captures the lifecycle of an impact run.
type ImpactRunStatus string

const (
	ImpactRunQueued    ImpactRunStatus = "QUEUED"
	ImpactRunRunning   ImpactRunStatus = "RUNNING"
	ImpactRunFinished  ImpactRunStatus = "FINISHED"
	ImpactRunFailed    ImpactRunStatus = "FAILED"
	ImpactRunCancelled ImpactRunStatus = "CANCELLED"
)

// Active reports whether the run still holds the curriculum's edit lock.
func (s ImpactRunStatus) Active() bool {
	return s == ImpactRunQueued || s == ImpactRunRunning
}

// ImpactRun is one batch evaluation of a curriculum's students.
type ImpactRun struct {
	ID                string          `db:"id" json:"id"`
	CurriculumID      string          `db:"curriculum_id" json:"curriculum_id"`
	Status            ImpactRunStatus `db:"status" json:"status"`
	StudentIDs        StudentIDList   `db:"student_ids" json:"student_ids,omitempty"`
	Summary           ImpactSummary   `db:"summary" json:"summary"`
	StudentsTotal     int             `db:"students_total" json:"students_total"`
	StudentsEvaluated int             `db:"students_evaluated" json:"students_evaluated"`
	ErrorMessage      *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	StartedAt         *time.Time      `db:"started_at" json:"started_at,omitempty"`
	FinishedAt        *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// StudentIDList restricts a run to a subset of students. Empty means every student.
type StudentIDList []string

// Value marshals the list to JSON for persistence.
func (l StudentIDList) Value() (driver.Value, error) {
	if l == nil {
		l = StudentIDList{}
	}
	return jsonValue("student id list", []string(l))
}

// Scan unmarshals a JSON array.
func (l *StudentIDList) Scan(value interface{}) error {
	*l = nil
	return scanJSON("student id list", value, (*[]string)(l))
}

// ImpactSummary is the aggregate of a run, persisted as JSONB.
type ImpactSummary convalidation.Summary

// Value marshals the summary to JSON for persistence.
func (s ImpactSummary) Value() (driver.Value, error) {
	return jsonValue("impact summary", convalidation.Summary(s))
}

// Scan unmarshals JSON payloads into the summary.
func (s *ImpactSummary) Scan(value interface{}) error {
	*s = ImpactSummary{}
	return scanJSON("impact summary", value, (*convalidation.Summary)(s))
}

// ImpactSnapshot stores one student's allocation and report for a run.
type ImpactSnapshot struct {
	ID             string        `db:"id" json:"id"`
	RunID          string        `db:"run_id" json:"run_id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	Status         string        `db:"status" json:"status"`
	ProgressChange float64       `db:"progress_change" json:"progress_change"`
	Payload        ImpactPayload `db:"payload" json:"payload"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// ImpactPayload is the JSONB body of a snapshot.
type ImpactPayload convalidation.StudentImpact

// Value marshals the payload to JSON for persistence.
func (p ImpactPayload) Value() (driver.Value, error) {
	return jsonValue("impact payload", convalidation.StudentImpact(p))
}

// Scan unmarshals JSON payloads into the snapshot body.
func (p *ImpactPayload) Scan(value interface{}) error {
	*p = ImpactPayload{}
	return scanJSON("impact payload", value, (*convalidation.StudentImpact)(p))
}
