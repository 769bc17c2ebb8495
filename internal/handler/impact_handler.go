package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convalidation-api/internal/dto"
	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/internal/service"
	"github.com/noah-isme/convalidation-api/pkg/convalidation"
	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
	"github.com/noah-isme/convalidation-api/pkg/response"
)

type impactService interface {
	StartRun(ctx context.Context, curriculumID string, req dto.CreateImpactRunRequest) (*dto.ImpactRunResponse, error)
	GetRun(ctx context.Context, runID string) (*dto.ImpactRunResponse, error)
	GetStudentImpact(ctx context.Context, runID, studentID string) (*convalidation.StudentImpact, error)
	LatestSummary(ctx context.Context, curriculumID string) (*dto.CurriculumSummaryResponse, error)
	Export(ctx context.Context, runID string) (*service.ExportResult, error)
}

// ImpactHandler exposes impact run endpoints.
type ImpactHandler struct {
	service impactService
}

// NewImpactHandler builds a new handler.
func NewImpactHandler(service impactService) *ImpactHandler {
	return &ImpactHandler{service: service}
}

// StartRun godoc
// @Summary Evaluate the impact of a curriculum change on its students
// @Tags Impact
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param payload body dto.CreateImpactRunRequest false "Optional student subset"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curricula/{id}/impact/runs [post]
func (h *ImpactHandler) StartRun(c *gin.Context) {
	var req dto.CreateImpactRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid impact run payload"))
		return
	}
	run, err := h.service.StartRun(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if run.Status == models.ImpactRunQueued {
		response.Accepted(c, run)
		return
	}
	response.Created(c, run)
}

// GetRun godoc
// @Summary Impact run status and summary
// @Tags Impact
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /impact/runs/{runId} [get]
func (h *ImpactHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("runId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// StudentImpact godoc
// @Summary Allocation and progress report of one student
// @Tags Impact
// @Produce json
// @Param runId path string true "Run ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /impact/runs/{runId}/students/{studentId} [get]
func (h *ImpactHandler) StudentImpact(c *gin.Context) {
	impact, err := h.service.GetStudentImpact(c.Request.Context(), c.Param("runId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, impact, nil)
}

// Summary godoc
// @Summary Latest finished impact summary of a curriculum
// @Tags Impact
// @Produce json
// @Param id path string true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id}/impact/summary [get]
func (h *ImpactHandler) Summary(c *gin.Context) {
	summary, err := h.service.LatestSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Download per-student impact results as CSV
// @Tags Impact
// @Produce text/csv
// @Param runId path string true "Run ID"
// @Success 200 {file} file
// @Failure 409 {object} response.Envelope
// @Router /impact/runs/{runId}/export [get]
func (h *ImpactHandler) Export(c *gin.Context) {
	result, err := h.service.Export(c.Request.Context(), c.Param("runId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}
