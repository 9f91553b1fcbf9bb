package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/guardpost/guardpost/internal/app"
	"github.com/guardpost/guardpost/internal/auth"
	"github.com/guardpost/guardpost/internal/decision"
	"github.com/guardpost/guardpost/internal/guard"
	"github.com/guardpost/guardpost/internal/observability"
	"github.com/guardpost/guardpost/internal/orgs"
	"github.com/guardpost/guardpost/internal/platform/cache"
	"github.com/guardpost/guardpost/internal/platform/db"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/users"
	"github.com/guardpost/guardpost/jobs"
)

func main() {
	if app.InTestMode() {
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

	sessionManager := shared.NewSessionManager(redisClient, "guardpost_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	orgsRepo := orgs.NewRepository(dbpool)
	orgsService := orgs.NewService(orgsRepo, auditLogger, jobClient, logger)
	grantCache := orgs.NewCache(redisClient, orgsRepo, cfg.GrantCacheTTL, metrics, logger)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, auditLogger, logger)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	guardMiddleware := guard.Middleware{Source: usersService, Logger: logger}

	orgsHandler := orgs.NewHandler(logger, orgsService, guardMiddleware)
	usersHandler := users.NewHandler(logger, usersService, guardMiddleware)

	recorder := decision.NewRecorder(dbpool)
	decisionHandler := decision.NewHandler(logger, grantCache, usersService, recorder, jobClient, metrics, guardMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGrantsRefresh, Handler: jobs.NewGrantsRefreshHandler(grantCache, logger)},
			{Type: jobs.TaskGrantsWarmup, Handler: jobs.NewGrantsWarmupHandler(orgsRepo, grantCache, logger)},
			{Type: jobs.TaskDecisionRecord, Handler: jobs.NewDecisionRecordHandler(recorder, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: jobs.NewGrantsWarmupTask()},
		},
	})
	if err != nil {
		logger.Error("asynq worker", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		UsersHandler:    usersHandler,
		OrgsHandler:     orgsHandler,
		DecisionHandler: decisionHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.Info("starting job worker")
		if err := worker.Run(groupCtx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
