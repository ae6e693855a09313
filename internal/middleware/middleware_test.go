package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret", Issuer: "sma"})
	token, err := tokens.IssueToken("teacher-1", models.RoleTeacher, time.Hour)
	require.NoError(t, err)

	r := newRouter()
	r.GET("/protected", JWT(tokens), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID, "credential": CredentialFrom(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user":"teacher-1"`)
	assert.Contains(t, rec.Body.String(), token)
}

func TestJWTMiddlewareRejectsMissingHeader(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	r := newRouter()
	r.GET("/protected", JWT(tokens), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Basic abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestRequireRoles(t *testing.T) {
	r := newRouter()
	withClaims := func(role models.UserRole) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: role})
			c.Next()
		}
	}
	r.DELETE("/admin", withClaims(models.RoleAdmin), RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.DELETE("/teacher", withClaims(models.RoleTeacher), RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.DELETE("/anonymous", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := map[string]int{"/admin": http.StatusNoContent, "/teacher": http.StatusForbidden, "/anonymous": http.StatusUnauthorized}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestAuditLogsSuccessfulActions(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := newRouter()
	r.POST("/insights/:id/apply", func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
		c.Next()
	}, Audit(zap.New(core), "apply", "insight"), func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/insights/ins-1/apply", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/insights/missing/apply", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ins-1", fields["resource_id"])
	assert.Equal(t, "teacher-1", fields["user_id"])
	assert.Equal(t, "apply", fields["action"])
}

func TestResponseMetaHelpers(t *testing.T) {
	r := newRouter()
	r.Use(WithResponseMeta())
	r.GET("/meta", func(c *gin.Context) {
		SetCacheHit(c, true)
		SetGeneration(c, 3)
		SetMeta(c, "source", "memory")
		c.JSON(http.StatusOK, ExtractMeta(c))
	})
	r.GET("/timed", func(c *gin.Context) {
		SetMeta(c, "processing_time_ms", 42)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/meta", nil))

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, float64(3), meta["generation"])
	assert.Equal(t, "memory", meta["source"])
	assert.Contains(t, meta, "processing_time_ms")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/timed", nil))
	assert.JSONEq(t, `{"processing_time_ms":42}`, rec.Body.String())
}

func TestResponseMetaWithoutMiddleware(t *testing.T) {
	r := newRouter()
	r.GET("/bare", func(c *gin.Context) {
		SetCacheHit(c, false)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bare", nil))

	assert.JSONEq(t, `{"cache_hit":false}`, rec.Body.String())
}

func TestMetricsMiddlewareRecordsRequests(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter()
	r.Use(Metrics(metrics))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}
