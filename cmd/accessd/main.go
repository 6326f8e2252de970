package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tras-phone/admin-access/internal/admins"
	"github.com/tras-phone/admin-access/internal/app"
	"github.com/tras-phone/admin-access/internal/audit"
	audithttp "github.com/tras-phone/admin-access/internal/audit/http"
	"github.com/tras-phone/admin-access/internal/catalog"
	"github.com/tras-phone/admin-access/internal/observability"
	"github.com/tras-phone/admin-access/internal/platform/cache"
	"github.com/tras-phone/admin-access/internal/platform/db"
	"github.com/tras-phone/admin-access/internal/rbac"
	"github.com/tras-phone/admin-access/internal/roles"
	"github.com/tras-phone/admin-access/internal/shared"
	"github.com/tras-phone/admin-access/jobs"
)

func main() {
	if app.SkipStartup() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	cat, err := loadCatalog(cfg)
	if err != nil {
		logger.Error("load catalog", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("catalog loaded",
		slog.Int("permissions", cat.Registry.Len()),
		slog.Int("routes", len(cat.Routes)),
		slog.Int("system_roles", len(cat.SystemRoles)),
	)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, "session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = inspector.Close() }()

	roleRepo := roles.NewRepository(dbpool)
	adminRepo := admins.NewRepository(dbpool)

	resolver := rbac.NewResolver(adminRepo, roleRepo, cat.Registry)
	resolutions := admins.NewResolutionCache(
		resolver,
		cache.NewVersioned(redisClient, "access:resolution", cfg.AccessCacheTTL).WithLogger(logger),
		cfg.AccessCacheSize,
		cfg.AccessCacheTTL,
		logger,
	)
	if err := resolutions.Listen(ctx); err != nil {
		logger.Error("subscribe invalidations", slog.Any("error", err))
		os.Exit(1)
	}

	rbacMiddleware := rbac.Middleware{Resolver: resolutions, Logger: logger, Recorder: metrics}

	roleService := roles.NewService(roleRepo, cat.Registry, resolutions, jobClient, logger)
	adminService := admins.NewService(adminRepo, roleRepo, cat.Registry, cat.FeatureFlags, resolutions, jobClient, logger)
	auditService := audit.NewService(audit.NewRepository(dbpool))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		RolesHandler:       roles.NewHandler(logger, roleService, rbacMiddleware),
		AdminsHandler:      admins.NewHandler(logger, adminService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, cat.Registry, cat.Menu, cat.Routes, rbacMiddleware, shared.PermPermissionsView),
		AuditHandler:       audithttp.NewHandler(logger, auditService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		RBACMiddleware:     rbacMiddleware,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func loadCatalog(cfg *app.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath != "" {
		return catalog.LoadFile(cfg.CatalogPath)
	}
	return catalog.Default()
}
