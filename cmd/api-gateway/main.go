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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/convalidation-api/api/swagger"
	"github.com/noah-isme/convalidation-api/internal/handler"
	internalmiddleware "github.com/noah-isme/convalidation-api/internal/middleware"
	"github.com/noah-isme/convalidation-api/internal/repository"
	"github.com/noah-isme/convalidation-api/internal/service"
	"github.com/noah-isme/convalidation-api/pkg/cache"
	"github.com/noah-isme/convalidation-api/pkg/config"
	"github.com/noah-isme/convalidation-api/pkg/convalidation"
	"github.com/noah-isme/convalidation-api/pkg/database"
	"github.com/noah-isme/convalidation-api/pkg/jobs"
	"github.com/noah-isme/convalidation-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/convalidation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/convalidation-api/pkg/middleware/requestid"
)

// @title Convalidation Impact API
// @version 0.1.0
// @description Equivalence review, credit allocation and student impact projection for curriculum changes
// @BasePath /api/v1
// @schemes http

const slowRequestThreshold = 2 * time.Second

type handlers struct {
	equivalences *handler.EquivalenceHandler
	limits       *handler.CreditLimitHandler
	impact       *handler.ImpactHandler
	metrics      *handler.MetricsHandler
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	checks := map[string]database.Pinger{"database": db}
	if redisClient != nil {
		checks["redis"] = cache.Pinger{Client: redisClient}
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	catalogRepo := repository.NewCatalogRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	equivalenceRepo := repository.NewEquivalenceRepository(db)
	limitRepo := repository.NewCreditLimitRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	impactRepo := repository.NewImpactRepository(db)

	validate := validator.New()
	matcher := convalidation.Matcher{
		SuggestThreshold:    cfg.Matcher.SuggestThreshold,
		AutoAcceptThreshold: cfg.Matcher.AutoAcceptThreshold,
		Limit:               cfg.Matcher.SuggestLimit,
	}

	limitSvc := service.NewCreditLimitService(limitRepo, curriculumRepo, impactRepo, cacheSvc, cfg.Impact.DefaultLimits, logr)
	equivalenceSvc := service.NewEquivalenceService(equivalenceRepo, catalogRepo, curriculumRepo, impactRepo, cacheSvc, metricsSvc, matcher, validate, logr)
	impactSvc := service.NewImpactService(service.ImpactServiceDeps{
		Runs:         impactRepo,
		Students:     studentRepo,
		Equivalences: equivalenceRepo,
		Catalog:      catalogRepo,
		Curricula:    curriculumRepo,
		Limits:       limitSvc,
		Engine:       convalidation.NewEngine(convalidation.Options{Workers: cfg.Impact.Workers, Logger: logr}),
		Exporter:     service.NewExportService(nil),
		Cache:        cacheSvc,
		Metrics:      metricsSvc,
		Validator:    validate,
		Logger:       logr,
	}, service.ImpactServiceConfig{SummaryTTL: cfg.Cache.TTL})

	var queue *jobs.Queue
	if cfg.Impact.QueueEnabled {
		queue = jobs.NewQueue("impact", impactSvc.HandleJob, jobs.QueueConfig{
			Workers:     cfg.Impact.QueueWorkers,
			MaxRetries:  cfg.Impact.QueueRetries,
			OnExhausted: impactSvc.HandleExhausted,
			Logger:      logr,
		})
		impactSvc.SetQueue(queue)
		queue.Start(ctx)
		impactSvc.RecoverPendingRuns(ctx)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, logr, slowRequestThreshold))

	registerRoutes(r, cfg, handlers{
		equivalences: handler.NewEquivalenceHandler(equivalenceSvc),
		limits:       handler.NewCreditLimitHandler(limitSvc),
		impact:       handler.NewImpactHandler(impactSvc),
		metrics:      handler.NewMetricsHandler(metricsSvc, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "impact_queue", cfg.Impact.QueueEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown failed", zap.Error(err))
	}
	if queue != nil {
		queue.Stop()
	}
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h handlers) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	curricula := api.Group("/curricula/:id")
	curricula.GET("/subjects/:subjectId/suggestions", h.equivalences.Suggestions)
	curricula.GET("/equivalences", h.equivalences.List)
	curricula.POST("/equivalences/auto-match", h.equivalences.AutoMatch)
	curricula.PUT("/equivalences/:subjectId", h.equivalences.Set)
	curricula.DELETE("/equivalences/:subjectId", h.equivalences.Delete)
	curricula.GET("/credit-limits", h.limits.Get)
	curricula.PUT("/credit-limits", h.limits.Update)
	curricula.POST("/impact/runs", h.impact.StartRun)
	curricula.GET("/impact/summary", h.impact.Summary)

	api.GET("/credit-limits/default", h.limits.Default)
	api.PUT("/credit-limits/default", h.limits.UpdateDefault)

	runs := api.Group("/impact/runs/:runId")
	runs.GET("", h.impact.GetRun)
	runs.GET("/students/:studentId", h.impact.StudentImpact)
	runs.GET("/export", h.impact.Export)
}
