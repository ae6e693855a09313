package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-insights/internal/middleware"
	"github.com/noah-isme/sma-behavior-insights/internal/models"
)

// StaffRoles may read analysis results and work with stored insights.
var StaffRoles = []models.UserRole{models.RoleTeacher, models.RoleAdmin, models.RoleSuperAdmin}

type tokenValidator interface {
	ValidateToken(tokenString string) (*models.JWTClaims, error)
}

// RegisterAnalysisRoutes mounts the engine endpoints. Results name students, so
// every route needs a valid staff token; the same token is forwarded to the store.
func RegisterAnalysisRoutes(api *gin.RouterGroup, h *InsightHandler, tokens tokenValidator, auditLogger *zap.Logger) {
	analysis := api.Group("/analysis", middleware.JWT(tokens), middleware.RequireRoles(StaffRoles...))
	analysis.POST("/run", h.Run)
	analysis.POST("/trigger", h.Trigger)
	analysis.GET("/latest", h.Latest)
	analysis.GET("/risk", h.Risk)
	analysis.POST("/events/suggest", h.Suggest)
	analysis.POST("/insights/:id/apply", middleware.Audit(auditLogger, "apply", "insight"), h.Apply)
}

// RegisterInsightStoreRoutes mounts the artifact store. Only admins retire.
func RegisterInsightStoreRoutes(api *gin.RouterGroup, h *InsightStoreHandler, tokens tokenValidator, auditLogger *zap.Logger) {
	insights := api.Group("/insights", middleware.JWT(tokens), middleware.RequireRoles(StaffRoles...))
	insights.POST("", h.Create)
	insights.GET("", h.List)
	insights.GET("/:id", h.Get)
	insights.POST("/:id/apply", middleware.Audit(auditLogger, "apply", "insight"), h.Apply)
	insights.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), middleware.Audit(auditLogger, "retire", "insight"), h.Retire)
	insights.PATCH("/actions/:id/outcome", middleware.Audit(auditLogger, "record_outcome", "insight_action"), h.RecordOutcome)
}
