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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lesson-scheduler-api/api/swagger"
	"github.com/noah-isme/lesson-scheduler-api/internal/handler"
	internalmiddleware "github.com/noah-isme/lesson-scheduler-api/internal/middleware"
	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/internal/repository"
	"github.com/noah-isme/lesson-scheduler-api/internal/service"
	"github.com/noah-isme/lesson-scheduler-api/pkg/cache"
	"github.com/noah-isme/lesson-scheduler-api/pkg/config"
	"github.com/noah-isme/lesson-scheduler-api/pkg/cpsat"
	"github.com/noah-isme/lesson-scheduler-api/pkg/database"
	"github.com/noah-isme/lesson-scheduler-api/pkg/jobs"
	"github.com/noah-isme/lesson-scheduler-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lesson-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lesson-scheduler-api/pkg/middleware/requestid"
)

// @title Lesson Scheduler API
// @version 1.0.0
// @description Weekly group lesson scheduling: skeleton validation, progressive solving and saved runs.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 20 * time.Second

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

	metricsSvc := service.NewMetricsService()
	engine := service.NewEngine(service.EngineConfig{
		MinClassSize: cfg.Scheduler.MinClassSize,
		MaxClassSize: cfg.Scheduler.MaxClassSize,
		SoftWeight:   cfg.Scheduler.SoftWeight,
		PhaseABudget: cfg.Scheduler.PhaseABudget,
		PhaseBBudget: cfg.Scheduler.PhaseBBudget,
		TotalBudget:  cfg.Scheduler.TotalBudget,
	}, cpsat.NewGiniSolver(logr.Named("sat")), logr.Named("engine"), metricsSvc)

	dependents := map[string]handler.Pinger{}

	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				logr.Fatal("failed to migrate schema", zap.Error(err))
			}
		}
		dependents["postgres"] = db
	}

	var resultCache *service.CacheService
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("result cache disabled: redis unreachable", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client, logr.Named("cache"))
			defer cacheRepo.Close() //nolint:errcheck
			resultCache = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr.Named("cache"), true)
			dependents["redis"] = handler.PingFunc(cacheRepo.Ping)
		}
	}

	generator := newGeneratorService(cfg, engine, db, resultCache, metricsSvc, logr.Named("scheduler"))

	queue := jobs.NewQueue("schedule-generator", generator.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Scheduler.JobWorkers,
		BufferSize: cfg.Scheduler.JobBuffer,
		MaxRetries: cfg.Scheduler.JobRetries,
		RetryDelay: time.Second,
		Retention:  cfg.Scheduler.ProposalTTL,
		Logger:     logr.Named("jobs"),
		Observer:   metricsSvc,
	})
	generator.AttachQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(reqidmiddleware.Middleware())
	router.Use(logger.GinMiddleware(logr))
	router.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	router.Use(internalmiddleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, dependents)
	router.GET("/health", metricsHandler.Health)
	router.GET("/ready", metricsHandler.Ready)
	router.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := router.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())
	api.GET("/metrics/summary", metricsHandler.Summary)

	var authSvc *service.AuthService
	if cfg.JWT.Enabled {
		authSvc = service.NewAuthService(logr.Named("auth"), service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			Issuer:            cfg.JWT.Issuer,
		})
	}
	registerScheduleRoutes(api, handler.NewScheduleGeneratorHandler(generator), authSvc)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "persistence", db != nil, "result_cache", resultCache.Enabled(), "auth", authSvc != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// newGeneratorService keeps disabled persistence as untyped nils so the service sees it as absent.
func newGeneratorService(cfg *config.Config, engine *service.Engine, db *sqlx.DB, resultCache *service.CacheService, metrics *service.MetricsService, logr *zap.Logger) *service.ScheduleGeneratorService {
	genCfg := service.ScheduleGeneratorConfig{
		ProposalTTL:    cfg.Scheduler.ProposalTTL,
		ResultCacheTTL: cfg.Cache.TTL,
		MaxStudents:    cfg.Scheduler.MaxStudents,
	}
	validate := validator.New()
	if db == nil {
		return service.NewScheduleGeneratorService(engine, nil, nil, nil, resultCache, metrics, validate, logr, genCfg)
	}
	return service.NewScheduleGeneratorService(
		engine,
		repository.NewScheduleRunRepository(db),
		repository.NewScheduleRunClassRepository(db),
		db,
		resultCache,
		metrics,
		validate,
		logr,
		genCfg,
	)
}

func registerScheduleRoutes(api *gin.RouterGroup, h *handler.ScheduleGeneratorHandler, auth *service.AuthService) {
	read := api.Group("/schedules")
	write := api.Group("/schedules")
	admin := api.Group("/schedules")
	if auth != nil {
		read.Use(internalmiddleware.JWT(auth), internalmiddleware.RequireRoles(models.RoleViewer, models.RoleCoach, models.RoleAdmin))
		write.Use(internalmiddleware.JWT(auth), internalmiddleware.RequireRoles(models.RoleCoach, models.RoleAdmin))
		admin.Use(internalmiddleware.JWT(auth), internalmiddleware.RequireRoles(models.RoleAdmin))
	}

	write.POST("/generator", h.Generate)
	write.POST("/generator/csv", h.GenerateCSV)
	write.POST("/generator/validate", h.Validate)
	write.POST("/generator/jobs", h.Enqueue)
	read.GET("/generator/jobs/:id", h.Job)
	read.GET("/proposals/:id", h.Proposal)
	read.GET("/proposals/:id/export", h.Export)

	write.POST("/save", h.Save)
	read.GET("/runs", h.List)
	read.GET("/runs/:id/classes", h.Classes)
	write.POST("/runs/:id/publish", h.Publish)
	write.DELETE("/runs/:id", h.Delete)

	admin.DELETE("/cache", h.PurgeCache)
}
