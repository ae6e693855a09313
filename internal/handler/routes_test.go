package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	"github.com/noah-isme/sma-behavior-insights/internal/service"
)

func newAnalysisRouter(engine *fakeInsightEngine, auditLogger *zap.Logger) (*gin.Engine, *service.TokenService) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret", Issuer: "sma"})
	r := gin.New()
	RegisterAnalysisRoutes(r.Group("/api/v1"), NewInsightHandler(engine), tokens, auditLogger)
	return r, tokens
}

func TestAnalysisRoutesRequireStaffToken(t *testing.T) {
	engine := &fakeInsightEngine{
		risk:   &models.RiskSummary{Percentage: 42.5, Level: models.RiskMedium, Students: []models.RiskSnapshot{{StudentID: "s-1", StudentName: "Ana"}}},
		latest: &models.AnalysisRun{Generation: 1},
		run:    &models.AnalysisRun{Generation: 2},
	}
	r, tokens := newAnalysisRouter(engine, zap.NewNop())
	parentToken, err := tokens.IssueToken("parent-1", models.UserRole("PARENT"), time.Hour)
	require.NoError(t, err)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/analysis/risk"},
		{http.MethodGet, "/api/v1/analysis/latest"},
		{http.MethodPost, "/api/v1/analysis/run"},
		{http.MethodPost, "/api/v1/analysis/trigger"},
	}
	for _, route := range routes {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "anonymous %s", route.path)
		assert.NotContains(t, rec.Body.String(), "Ana")

		req := httptest.NewRequest(route.method, route.path, nil)
		req.Header.Set("Authorization", "Bearer "+parentToken)
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, "non-staff %s", route.path)
	}
	assert.Empty(t, engine.lastToken)
}

func TestAnalysisRoutesForwardValidatedToken(t *testing.T) {
	engine := &fakeInsightEngine{run: &models.AnalysisRun{Generation: 2}}
	r, tokens := newAnalysisRouter(engine, zap.NewNop())
	token, err := tokens.IssueToken("teacher-1", models.RoleTeacher, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, token, engine.lastToken)
}

func TestAnalysisApplyAuditNamesUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	engine := &fakeInsightEngine{}
	r, tokens := newAnalysisRouter(engine, zap.New(core))
	token, err := tokens.IssueToken("teacher-7", models.RoleTeacher, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/insights/ins-1/apply", strings.NewReader(`{"chosen_action":"Call home"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Less(t, rec.Code, http.StatusBadRequest, rec.Body.String())
	require.Len(t, logs.All(), 1)
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "teacher-7", fields["user_id"])
	assert.Equal(t, "ins-1", fields["resource_id"])
}
