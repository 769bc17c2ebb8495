package dto

import (
	"time"

	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/pkg/convalidation"
)

// CreateImpactRunRequest starts an impact run. StudentIDs narrows the run; empty means all.
type CreateImpactRunRequest struct {
	StudentIDs []string `json:"student_ids" validate:"omitempty,max=5000,dive,required"`
}

// ImpactRunResponse exposes run status and, once finished, its summary.
type ImpactRunResponse struct {
	ID                string                 `json:"id"`
	CurriculumID      string                 `json:"curriculum_id"`
	Status            models.ImpactRunStatus `json:"status"`
	StudentsTotal     int                    `json:"students_total"`
	StudentsEvaluated int                    `json:"students_evaluated"`
	Summary           *convalidation.Summary `json:"summary,omitempty"`
	Error             *string                `json:"error,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	FinishedAt        *time.Time             `json:"finished_at,omitempty"`
}

// NewImpactRunResponse maps a run row to its response.
func NewImpactRunResponse(run *models.ImpactRun) *ImpactRunResponse {
	resp := &ImpactRunResponse{
		ID:                run.ID,
		CurriculumID:      run.CurriculumID,
		Status:            run.Status,
		StudentsTotal:     run.StudentsTotal,
		StudentsEvaluated: run.StudentsEvaluated,
		Error:             run.ErrorMessage,
		CreatedAt:         run.CreatedAt,
		FinishedAt:        run.FinishedAt,
	}
	if run.Status == models.ImpactRunFinished || run.Status == models.ImpactRunCancelled {
		summary := convalidation.Summary(run.Summary)
		resp.Summary = &summary
	}
	return resp
}

// CurriculumSummaryResponse is the latest finished summary for a curriculum.
type CurriculumSummaryResponse struct {
	CurriculumID string                `json:"curriculum_id"`
	RunID        string                `json:"run_id"`
	Summary      convalidation.Summary `json:"summary"`
	FinishedAt   *time.Time            `json:"finished_at,omitempty"`
}
