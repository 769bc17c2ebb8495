package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convalidation-api/internal/dto"
	"github.com/noah-isme/convalidation-api/internal/models"
	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
	"github.com/noah-isme/convalidation-api/pkg/response"
)

type equivalenceService interface {
	Suggest(ctx context.Context, curriculumID, subjectID string) (*dto.SuggestionsResponse, error)
	AutoMatch(ctx context.Context, curriculumID string) (*dto.AutoMatchResponse, error)
	List(ctx context.Context, curriculumID string) ([]models.Equivalence, error)
	Set(ctx context.Context, curriculumID, subjectID string, req dto.SetEquivalenceRequest) (*models.Equivalence, error)
	Delete(ctx context.Context, curriculumID, subjectID string) error
}

// EquivalenceHandler exposes equivalence review endpoints.
type EquivalenceHandler struct {
	service equivalenceService
}

// NewEquivalenceHandler builds a new handler.
func NewEquivalenceHandler(service equivalenceService) *EquivalenceHandler {
	return &EquivalenceHandler{service: service}
}

// Suggestions godoc
// @Summary Rank catalog subjects for an external subject
// @Tags Equivalences
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param subjectId path string true "External subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id}/subjects/{subjectId}/suggestions [get]
func (h *EquivalenceHandler) Suggestions(c *gin.Context) {
	result, err := h.service.Suggest(c.Request.Context(), c.Param("id"), c.Param("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AutoMatch godoc
// @Summary Confirm confident matches for pending subjects
// @Tags Equivalences
// @Produce json
// @Param id path string true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /curricula/{id}/equivalences/auto-match [post]
func (h *EquivalenceHandler) AutoMatch(c *gin.Context) {
	result, err := h.service.AutoMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List confirmed equivalences
// @Tags Equivalences
// @Produce json
// @Param id path string true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Router /curricula/{id}/equivalences [get]
func (h *EquivalenceHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"total": len(items)})
}

// Set godoc
// @Summary Confirm an equivalence decision
// @Tags Equivalences
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param subjectId path string true "External subject ID"
// @Param payload body dto.SetEquivalenceRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /curricula/{id}/equivalences/{subjectId} [put]
func (h *EquivalenceHandler) Set(c *gin.Context) {
	var req dto.SetEquivalenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid equivalence payload"))
		return
	}
	eq, err := h.service.Set(c.Request.Context(), c.Param("id"), c.Param("subjectId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eq, nil)
}

// Delete godoc
// @Summary Revert a subject to pending
// @Tags Equivalences
// @Param id path string true "Curriculum ID"
// @Param subjectId path string true "External subject ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id}/equivalences/{subjectId} [delete]
func (h *EquivalenceHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), c.Param("subjectId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
