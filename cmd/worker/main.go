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
	"github.com/robfig/cron/v3"

	"github.com/marche-app/marche/internal/app"
	"github.com/marche-app/marche/internal/catalog"
	"github.com/marche-app/marche/internal/observability"
	"github.com/marche-app/marche/internal/platform/cache"
	"github.com/marche-app/marche/internal/searchindex"
	"github.com/marche-app/marche/internal/searchsync"
	"github.com/marche-app/marche/internal/store"
	"github.com/marche-app/marche/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
	slog.SetDefault(logger)

	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

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

	shared := cache.NewVersioned(redisClient, "marche:lookup", 10*cfg.LookupTTL)
	lookup := catalog.NewLookupTable(st, shared, cfg.LookupTTL, logger)
	if err := lookup.Listen(ctx); err != nil {
		logger.Warn("lookup invalidation listener", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	index := searchindex.New(cfg.SearchIndexConfig())
	// The worker applies events itself; a no-op notifier keeps the service
	// from spawning its own background goroutines.
	syncService := searchsync.NewService(index, st, lookup, searchsync.Options{
		Logger:        logger,
		Metrics:       metrics.Jobs(),
		ResyncTimeout: cfg.SearchResyncTimeout,
		Notifier:      searchsync.NotifierFunc(func(context.Context, searchsync.Event) {}),
	})

	syncJob := jobs.NewSearchSyncJob(syncService, logger, metrics.Jobs())
	resyncJob := jobs.NewSearchResyncJob(syncService, logger, metrics.Jobs())

	var schedules []jobs.CronRegistration
	if cfg.SearchResyncCron != "" {
		if _, err := cron.ParseStandard(cfg.SearchResyncCron); err != nil {
			logger.Error("invalid SEARCH_RESYNC_CRON", slog.String("spec", cfg.SearchResyncCron), slog.Any("error", err))
			os.Exit(1)
		}
		resyncTask, err := jobs.NewSearchResyncTask(jobs.ResyncAll)
		if err != nil {
			logger.Error("build resync task", slog.Any("error", err))
			os.Exit(1)
		}
		schedules = append(schedules, jobs.CronRegistration{Spec: cfg.SearchResyncCron, Task: resyncTask, Options: []asynq.Option{asynq.Timeout(cfg.SearchResyncTimeout + time.Minute)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSearchSync, Handler: syncJob.Handle},
			{Type: jobs.TaskSearchResync, Handler: resyncJob.Handle},
		},
		Cron: schedules,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("worker started", slog.Bool("search_enabled", index.Enabled()), slog.Int("schedules", len(schedules)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
