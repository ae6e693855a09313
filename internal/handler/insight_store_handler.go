package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	"github.com/noah-isme/sma-behavior-insights/internal/service"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
	"github.com/noah-isme/sma-behavior-insights/pkg/response"
)

type insightStore interface {
	Save(ctx context.Context, userID string, insight models.Insight) (*models.Insight, error)
	List(ctx context.Context, req service.StoreListRequest) ([]models.Insight, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Insight, error)
	Apply(ctx context.Context, userID, id string, req models.ApplyInsightRequest) (*models.ApplyInsightResponse, error)
	Retire(ctx context.Context, id string) error
	RecordOutcome(ctx context.Context, recordID string, req models.RecordOutcomeRequest) (*models.ActionRecord, error)
}

// InsightStoreHandler serves the durable artifact store.
type InsightStoreHandler struct {
	store insightStore
}

// NewInsightStoreHandler constructs the handler.
func NewInsightStoreHandler(store insightStore) *InsightStoreHandler {
	return &InsightStoreHandler{store: store}
}

// Create godoc
// @Summary Store a generated artifact
// @Tags Insights
// @Accept json
// @Produce json
// @Param payload body models.Insight true "Artifact"
// @Success 201 {object} response.Envelope
// @Router /insights [post]
func (h *InsightStoreHandler) Create(c *gin.Context) {
	var insight models.Insight
	if err := c.ShouldBindJSON(&insight); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid insight payload"))
		return
	}
	saved, err := h.store.Save(c.Request.Context(), userIDFromContext(c), insight)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, saved)
}

// List godoc
// @Summary List stored artifacts
// @Tags Insights
// @Produce json
// @Param kind query string false "insight, prediction or suggestion"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /insights [get]
func (h *InsightStoreHandler) List(c *gin.Context) {
	var req service.StoreListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	insights, pagination, err := h.store.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, insights, pagination)
}

// Get godoc
// @Summary Get a stored artifact
// @Tags Insights
// @Produce json
// @Param id path string true "Insight ID"
// @Success 200 {object} response.Envelope
// @Router /insights/{id} [get]
func (h *InsightStoreHandler) Get(c *gin.Context) {
	insight, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, insight, nil)
}

// Apply godoc
// @Summary Record the action taken on an artifact
// @Tags Insights
// @Accept json
// @Produce json
// @Param id path string true "Insight ID"
// @Param payload body models.ApplyInsightRequest true "Chosen action"
// @Success 200 {object} response.Envelope
// @Router /insights/{id}/apply [post]
func (h *InsightStoreHandler) Apply(c *gin.Context) {
	var req models.ApplyInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid apply payload"))
		return
	}
	resp, err := h.store.Apply(c.Request.Context(), userIDFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Retire godoc
// @Summary Retire an artifact
// @Tags Insights
// @Param id path string true "Insight ID"
// @Success 204 {string} string "No Content"
// @Router /insights/{id} [delete]
func (h *InsightStoreHandler) Retire(c *gin.Context) {
	if err := h.store.Retire(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RecordOutcome godoc
// @Summary Record how an applied action worked out
// @Tags Insights
// @Accept json
// @Produce json
// @Param id path string true "Action record ID"
// @Param payload body models.RecordOutcomeRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Router /insights/actions/{id}/outcome [patch]
func (h *InsightStoreHandler) RecordOutcome(c *gin.Context) {
	var req models.RecordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid outcome payload"))
		return
	}
	record, err := h.store.RecordOutcome(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
