package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-behavior-insights/api/swagger"
	"github.com/noah-isme/sma-behavior-insights/internal/handler"
	"github.com/noah-isme/sma-behavior-insights/internal/middleware"
	"github.com/noah-isme/sma-behavior-insights/internal/models"
	"github.com/noah-isme/sma-behavior-insights/internal/repository"
	"github.com/noah-isme/sma-behavior-insights/internal/service"
	"github.com/noah-isme/sma-behavior-insights/pkg/cache"
	"github.com/noah-isme/sma-behavior-insights/pkg/config"
	"github.com/noah-isme/sma-behavior-insights/pkg/database"
	"github.com/noah-isme/sma-behavior-insights/pkg/insightstore"
	"github.com/noah-isme/sma-behavior-insights/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-behavior-insights/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-behavior-insights/pkg/middleware/requestid"
)

// @title SMA Behavior Insights API
// @version 1.0.0
// @description Classroom behaviour analysis and insight store
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(cfg.Database, logr); err != nil {
			logr.Sugar().Fatalw("failed to migrate database", "error", err)
		}
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var redisClient redis.UniversalClient
	if client, err := cache.NewRedis(cfg.Redis, 3*time.Second); err != nil {
		logr.Warn("redis unavailable, shared cache disabled", zap.Error(err))
	} else {
		redisClient = client
		defer client.Close()
	}
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, "behavior-insights", cfg.Insights.LatestCacheTTL, logr, redisClient != nil)

	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", readiness(db, redisClient))
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", middleware.JWT(tokens), middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), metricsHandler.Summary)

	if cfg.Insights.StoreEnabled {
		storeSvc := service.NewInsightStoreService(
			repository.NewInsightRepository(db),
			repository.NewActionRecordRepository(db),
			db,
			validator.New(),
			logr,
		)
		handler.RegisterInsightStoreRoutes(api, handler.NewInsightStoreHandler(storeSvc), tokens, logr)
	}

	var engine *service.InsightService
	if cfg.Insights.Enabled {
		var store service.InsightStore
		if cfg.Insights.StoreURL != "" {
			store = insightstore.New(insightstore.Config{
				BaseURL: cfg.Insights.StoreURL,
				Timeout: cfg.Insights.StoreTimeout,
				Retries: cfg.Insights.StoreRetries,
			}, logr)
		}
		engine = service.NewInsightService(
			repository.NewBehaviorRepository(db),
			repository.NewStudentRepository(db),
			store,
			cacheSvc,
			metricsSvc,
			service.InsightServiceConfig{
				TriggerDebounce: cfg.Insights.TriggerDebounce,
				TriggerRetries:  1,
				CurrentRiskTTL:  cfg.Insights.CurrentRiskTTL,
				LatestCacheTTL:  cfg.Insights.LatestCacheTTL,
			},
			logr,
		)
		handler.RegisterAnalysisRoutes(api, handler.NewInsightHandler(engine), tokens, logr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if engine != nil {
		engine.StartTriggers(ctx)
		defer engine.StopTriggers()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func readiness(db *sqlx.DB, redisClient redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		status := gin.H{"status": "ready", "database": "ok", "cache": "disabled"}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status["cache"] = err.Error()
			} else {
				status["cache"] = "ok"
			}
		}
		c.JSON(http.StatusOK, status)
	}
}
