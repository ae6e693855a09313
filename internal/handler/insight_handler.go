package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-behavior-insights/internal/middleware"
	"github.com/noah-isme/sma-behavior-insights/internal/models"
	"github.com/noah-isme/sma-behavior-insights/internal/service"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
	"github.com/noah-isme/sma-behavior-insights/pkg/response"
)

type insightEngine interface {
	Run(ctx context.Context, token string) (*models.AnalysisRun, error)
	Trigger(token, reason string) (bool, error)
	Latest(ctx context.Context) (*models.AnalysisRun, bool, error)
	CurrentRisk(ctx context.Context) (*models.RiskSummary, bool, error)
	SuggestForEvent(ctx context.Context, token string, event models.BehaviorEvent) (*service.SuggestionResult, error)
	Apply(ctx context.Context, token, insightID, action, feedback string) (*models.ActionRecord, *models.Insight, error)
}

// InsightHandler exposes the analysis engine over HTTP.
type InsightHandler struct {
	engine insightEngine
}

// NewInsightHandler constructs the handler.
func NewInsightHandler(engine insightEngine) *InsightHandler {
	return &InsightHandler{engine: engine}
}

type triggerRequest struct {
	Reason string `json:"reason"`
}

// Run godoc
// @Summary Run behaviour analysis now
// @Description Analyses every logged event, persists the generated artifacts with the caller's token and returns the run.
// @Tags Analysis
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope "session invalid; data carries the unsaved run"
// @Router /analysis/run [post]
func (h *InsightHandler) Run(c *gin.Context) {
	if h.engine == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	run, err := h.engine.Run(c.Request.Context(), middleware.CredentialFrom(c))
	if err != nil {
		if run != nil {
			response.ErrorWithData(c, err, run)
			return
		}
		response.Error(c, err)
		return
	}
	middleware.SetGeneration(c, run.Generation)
	middleware.SetMeta(c, "processing_time_ms", time.Since(start).Milliseconds())
	response.JSON(c, http.StatusOK, run, nil, middleware.ExtractMeta(c))
}

// Trigger godoc
// @Summary Schedule a background analysis
// @Description Bursts of triggers collapse into one run.
// @Tags Analysis
// @Accept json
// @Produce json
// @Param payload body triggerRequest false "Trigger reason"
// @Success 202 {object} response.Envelope
// @Router /analysis/trigger [post]
func (h *InsightHandler) Trigger(c *gin.Context) {
	if h.engine == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid trigger payload"))
			return
		}
	}
	coalesced, err := h.engine.Trigger(middleware.CredentialFrom(c), strings.TrimSpace(req.Reason))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"scheduled": true, "coalesced": coalesced})
}

// Latest godoc
// @Summary Latest published analysis run
// @Tags Analysis
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /analysis/latest [get]
func (h *InsightHandler) Latest(c *gin.Context) {
	if h.engine == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	run, cacheHit, err := h.engine.Latest(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetGeneration(c, run.Generation)
	response.JSON(c, http.StatusOK, run, nil, middleware.ExtractMeta(c))
}

// Risk godoc
// @Summary Current class risk summary
// @Tags Analysis
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /analysis/risk [get]
func (h *InsightHandler) Risk(c *gin.Context) {
	if h.engine == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	risk, cacheHit, err := h.engine.CurrentRisk(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, risk, nil, middleware.ExtractMeta(c))
}

// Suggest godoc
// @Summary Suggest an immediate response for a new event
// @Tags Analysis
// @Accept json
// @Produce json
// @Param payload body models.BehaviorEvent true "Logged event"
// @Success 200 {object} response.Envelope
// @Router /analysis/events/suggest [post]
func (h *InsightHandler) Suggest(c *gin.Context) {
	if h.engine == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var event models.BehaviorEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid event payload"))
		return
	}
	if strings.TrimSpace(string(event.Category)) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "category is required"))
		return
	}
	result, err := h.engine.SuggestForEvent(c.Request.Context(), middleware.CredentialFrom(c), event)
	if err != nil {
		if result != nil {
			response.ErrorWithData(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Apply godoc
// @Summary Apply an action from a generated artifact
// @Tags Analysis
// @Accept json
// @Produce json
// @Param id path string true "Insight ID"
// @Param payload body models.ApplyInsightRequest true "Chosen action"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "artifact was never persisted"
// @Router /analysis/insights/{id}/apply [post]
func (h *InsightHandler) Apply(c *gin.Context) {
	if h.engine == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req models.ApplyInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid apply payload"))
		return
	}
	record, insight, err := h.engine.Apply(c.Request.Context(), middleware.CredentialFrom(c), c.Param("id"), req.ChosenAction, req.Feedback)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.ApplyInsightResponse{Insight: *insight, Record: *record}, nil)
}
