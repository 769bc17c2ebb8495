package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convalidation-api/internal/dto"
	appErrors "github.com/noah-isme/convalidation-api/pkg/errors"
	"github.com/noah-isme/convalidation-api/pkg/response"
)

type creditLimitService interface {
	Get(ctx context.Context, curriculumID string) (*dto.CreditLimitsResponse, error)
	Default(ctx context.Context) (*dto.CreditLimitsResponse, error)
	Update(ctx context.Context, curriculumID string, req dto.CreditLimitsRequest) (*dto.CreditLimitsResponse, error)
	UpdateDefault(ctx context.Context, req dto.CreditLimitsRequest) (*dto.CreditLimitsResponse, error)
}

// CreditLimitHandler exposes component ceiling endpoints.
type CreditLimitHandler struct {
	service creditLimitService
}

// NewCreditLimitHandler builds a new handler.
func NewCreditLimitHandler(service creditLimitService) *CreditLimitHandler {
	return &CreditLimitHandler{service: service}
}

// Get godoc
// @Summary Effective credit limits of a curriculum
// @Tags CreditLimits
// @Produce json
// @Param id path string true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Router /curricula/{id}/credit-limits [get]
func (h *CreditLimitHandler) Get(c *gin.Context) {
	limits, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, limits, nil)
}

// Update godoc
// @Summary Replace the credit limits of a curriculum
// @Tags CreditLimits
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param payload body dto.CreditLimitsRequest true "Ceilings, null for unlimited"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /curricula/{id}/credit-limits [put]
func (h *CreditLimitHandler) Update(c *gin.Context) {
	var req dto.CreditLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid credit limits payload"))
		return
	}
	limits, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, limits, nil)
}

// Default godoc
// @Summary Global default credit limits
// @Tags CreditLimits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /credit-limits/default [get]
func (h *CreditLimitHandler) Default(c *gin.Context) {
	limits, err := h.service.Default(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, limits, nil)
}

// UpdateDefault godoc
// @Summary Replace the global default credit limits
// @Tags CreditLimits
// @Accept json
// @Produce json
// @Param payload body dto.CreditLimitsRequest true "Ceilings, null for unlimited"
// @Success 200 {object} response.Envelope
// @Router /credit-limits/default [put]
func (h *CreditLimitHandler) UpdateDefault(c *gin.Context) {
	var req dto.CreditLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid credit limits payload"))
		return
	}
	limits, err := h.service.UpdateDefault(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, limits, nil)
}
