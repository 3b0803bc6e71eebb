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
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/reverie-ai/reverie-api/api/swagger"
	"github.com/reverie-ai/reverie-api/internal/handler"
	"github.com/reverie-ai/reverie-api/internal/middleware"
	"github.com/reverie-ai/reverie-api/internal/models"
	"github.com/reverie-ai/reverie-api/internal/provider"
	"github.com/reverie-ai/reverie-api/internal/repository"
	"github.com/reverie-ai/reverie-api/internal/service"
	rediscache "github.com/reverie-ai/reverie-api/pkg/cache"
	"github.com/reverie-ai/reverie-api/pkg/config"
	"github.com/reverie-ai/reverie-api/pkg/database"
	"github.com/reverie-ai/reverie-api/pkg/jobs"
	"github.com/reverie-ai/reverie-api/pkg/logger"
	corsmiddleware "github.com/reverie-ai/reverie-api/pkg/middleware/cors"
	reqidmiddleware "github.com/reverie-ai/reverie-api/pkg/middleware/requestid"
	"github.com/reverie-ai/reverie-api/pkg/storage"
)

// @title Reverie API
// @version 0.1.0
// @description Multi-tenant control plane: token lifecycle, workspace RBAC and plan-based rate limiting
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := rediscache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	spaceRepo := repository.NewWorkspaceRepository(db)
	keyRepo := repository.NewAPIKeyRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	reportRepo := repository.NewReportRepository(db)
	limitConfigRepo := repository.NewRateLimitConfigRepository(db)
	counterRepo := repository.NewCounterRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, 5*time.Minute, logr, true)

	tokenService := service.NewTokenService(tokenRepo, auditRepo, logr, service.TokenConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  cfg.JWT.Expiration,
		RefreshExpiry: cfg.JWT.RefreshExpiration,
		Issuer:        "reverie-api",
	})
	authService := service.NewAuthService(userRepo, tokenService, auditRepo, nil, logr, service.AuthConfig{
		BcryptCost: cfg.JWT.BcryptCost,
	})
	rbacService := service.NewRBACService(spaceRepo, userRepo, logr)
	limiterService := service.NewRateLimitService(counterRepo, limitConfigRepo, userRepo, cacheService, logr, service.RateLimiterConfig{
		FailOpen:     cfg.RateLimit.FailOpen,
		PlanCacheTTL: cfg.RateLimit.PlanCacheTTL,
	})
	workspaceService := service.NewWorkspaceService(spaceRepo, userRepo, rbacService, nil, logr)
	keyService := service.NewAPIKeyService(keyRepo, nil, logr)
	adminService := service.NewAdminService(userRepo, reportRepo, tokenRepo, spaceRepo, keyRepo, auditRepo, cacheService, logr, service.AdminServiceConfig{})

	registry := provider.NewRegistry()
	for _, name := range cfg.Providers.Enabled {
		switch name {
		case "echo":
			echo := provider.NewEcho()
			registry.RegisterGenerator(echo)
			registry.RegisterEmbedder(echo)
			registry.RegisterSynthesizer(echo)
		default:
			logr.Sugar().Warnw("unknown provider, skipping", "provider", name)
		}
	}

	var reportService *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportService := service.NewExportService(adminService, reportRepo, exportStore, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, nil, nil)
		worker := service.NewReportWorker(reportRepo, exportService, cfg.Reports.WorkerRetries, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		reportService = service.NewReportService(reportRepo, reportQueue, exportService, nil, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportService.RecoverPendingJobs(ctx)
		reportService.StartCleanup(ctx)
	}

	if cfg.Janitor.Enabled {
		janitor := service.NewJanitorService(tokenRepo, keyRepo, logr, service.JanitorConfig{
			Interval: cfg.Janitor.Interval,
			Grace:    cfg.Janitor.Grace,
		})
		janitor.Start(ctx)
	}

	authHandler := handler.NewAuthHandler(authService, tokenService)
	workspaceHandler := handler.NewWorkspaceHandler(workspaceService)
	keyHandler := handler.NewAPIKeyHandler(keyService)
	adminHandler := handler.NewAdminHandler(adminService, rbacService, limiterService, metricsService, registry)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", readiness(db, counterRepo))
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WorkspaceContext())
	api.Use(middleware.OptionalJWT(tokenService))
	api.Use(middleware.RateLimit(limiterService, metricsService, middleware.RateLimitOptions{
		Enabled:     cfg.RateLimit.Enabled,
		BypassPaths: cfg.RateLimit.BypassPaths,
	}))

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	session := api.Group("/auth")
	session.Use(middleware.JWT(tokenService, metricsService))
	session.POST("/logout", authHandler.Logout)
	session.POST("/revoke", authHandler.Revoke)
	session.GET("/sessions", authHandler.Sessions)
	session.GET("/me", authHandler.Me)
	session.PATCH("/me", authHandler.UpdateMe)

	spaces := api.Group("/workspaces")
	spaces.Use(middleware.JWT(tokenService, metricsService))
	spaces.POST("", middleware.Audit(auditRepo, "WORKSPACE_CREATE", "workspace"), workspaceHandler.Create)
	spaces.GET("", workspaceHandler.List)
	spaces.GET("/:id", workspaceHandler.Get)

	scoped := spaces.Group("/:id")
	scoped.Use(middleware.SpaceFromPath("id"))
	scoped.PUT("", middleware.RequireRole(rbacService, models.RoleOwner), middleware.Audit(auditRepo, "WORKSPACE_UPDATE", "workspace"), workspaceHandler.Update)
	scoped.DELETE("", middleware.RequireRole(rbacService, models.RoleOwner), middleware.Audit(auditRepo, "WORKSPACE_DELETE", "workspace"), workspaceHandler.Delete)
	scoped.GET("/members", middleware.RequireRole(rbacService, models.RoleViewer), workspaceHandler.ListMembers)
	scoped.POST("/members", middleware.RequireRole(rbacService, models.RoleAdmin), middleware.Audit(auditRepo, "MEMBER_ADD", "workspace"), workspaceHandler.AddMember)
	scoped.DELETE("/members/:userId", middleware.RequireRole(rbacService, models.RoleAdmin), middleware.Audit(auditRepo, "MEMBER_REMOVE", "workspace"), workspaceHandler.RemoveMember)

	keys := api.Group("/apikeys")
	keys.Use(middleware.JWT(tokenService, metricsService))
	keys.POST("", middleware.Audit(auditRepo, "APIKEY_CREATE", "api_key"), keyHandler.Create)
	keys.GET("", keyHandler.List)
	keys.DELETE("/:id", middleware.Audit(auditRepo, "APIKEY_REVOKE", "api_key"), keyHandler.Revoke)

	svc := api.Group("/service")
	svc.Use(middleware.APIKeyAuth(keyService))
	svc.GET("/whoami", keyHandler.WhoAmI)

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(tokenService, metricsService))
	admin.Use(middleware.RequirePlatformAdmin(rbacService))
	admin.Use(middleware.WithResponseMeta())
	admin.GET("/stats", adminHandler.Stats)
	admin.GET("/metrics", adminHandler.Metrics)
	admin.GET("/users", adminHandler.ListUsers)
	admin.GET("/audit", adminHandler.AuditLogs)
	admin.GET("/roles", adminHandler.Roles)
	admin.GET("/providers", adminHandler.Providers)
	admin.DELETE("/ratelimits/:userId", middleware.Audit(auditRepo, "RATELIMIT_RESET", "rate_limit"), adminHandler.ResetRateLimit)

	if reportService != nil {
		reportHandler := handler.NewReportHandler(reportService)
		admin.POST("/reports", middleware.Audit(auditRepo, "REPORT_CREATE", "report_job"), reportHandler.Create)
		admin.GET("/reports/:id", reportHandler.Status)
		api.GET("/export/:token", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("received interruption signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown error", "error", err)
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
	logr.Sugar().Infow("shutdown complete")
}

// readiness reports per-dependency health; any failing dependency flips the
// status code to 503 so orchestrators stop routing traffic here.
func readiness(db *sqlx.DB, counters *repository.CounterRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := gin.H{}

		if err := db.PingContext(checkCtx); err != nil {
			deps["postgres"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			deps["postgres"] = "ok"
		}

		if err := counters.Ping(checkCtx); err != nil {
			deps["redis"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			deps["redis"] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "dependencies": deps})
	}
}
