package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/marche-app/marche/cmd/marche/cli"
	"github.com/marche-app/marche/internal/app"
	"github.com/marche-app/marche/internal/catalog"
	"github.com/marche-app/marche/internal/observability"
	"github.com/marche-app/marche/internal/platform/cache"
	"github.com/marche-app/marche/internal/searchindex"
	"github.com/marche-app/marche/internal/searchsync"
	"github.com/marche-app/marche/internal/store"
	"github.com/marche-app/marche/internal/topproducts"
	"github.com/marche-app/marche/jobs"
)

const usage = `usage: marche [command]

commands:
  serve                              run the HTTP API (default)
  seed -file fixture.json            load a JSON fixture into the store
  jobs trigger search:resync [coll]  enqueue a resync (all|products|categories)
  jobs stats [-queue q] [-json]      show queue counters
  jobs scheduled [-queue q] [-json]  list scheduled tasks
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime bootstrap")
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

	command, args := "serve", os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	case "seed":
		os.Exit(seed(ctx, cfg, args))
	case "jobs":
		os.Exit(jobsCommand(ctx, cfg, args))
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store close", slog.Any("error", err))
		}
	}()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, lookup cache stays process local", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	lookup := newLookupTable(ctx, cfg, st, redisClient, logger)
	scheduler := cron.New()
	if _, err := catalog.ScheduleRefresh(scheduler, cfg.LookupRefreshSpec, lookup, 30*time.Second, logger); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	metrics := observability.NewMetrics()
	index := searchindex.New(cfg.SearchIndexConfig())
	if !index.Enabled() {
		logger.Info("search index not configured, sync disabled")
	}

	opts := searchsync.Options{
		Logger:        logger,
		Metrics:       metrics.Jobs(),
		ResyncTimeout: cfg.SearchResyncTimeout,
	}
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	if cfg.SearchSyncMode == app.SyncModeQueue {
		client := jobs.NewClient(redisOpts)
		defer func() { _ = client.Close() }()
		opts.Notifier = jobs.NewQueueNotifier(client, logger, nil)
	}
	syncService := searchsync.NewService(index, st, lookup, opts)

	guard := app.AdminGuard(cfg.AdminTokenHash, logger)
	if cfg.AdminTokenHash == "" {
		logger.Warn("ADMIN_TOKEN_HASH empty, maintenance endpoints are closed")
	}
	searchHandler := searchsync.NewHandler(logger, syncService, guard).
		WithRecorder(searchsync.WriterRecorder(st))

	calculator := topproducts.NewCalculator(topproducts.WithTTL(cfg.TopProductsTTL))
	topService := topproducts.NewService(st, calculator, cfg.TopProductsLimit)
	topHandler := topproducts.NewHandler(logger, topService, guard)

	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Store:              st,
		SearchHandler:      searchHandler,
		TopProductsHandler: topHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver), slog.String("sync_mode", cfg.SearchSyncMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	if err := syncService.Close(shutdownCtx); err != nil {
		logger.Warn("pending search syncs abandoned", slog.Any("error", err))
	}
	return nil
}

// newLookupTable builds the category/brand name table, shared through Redis
// when a client is available.
func newLookupTable(ctx context.Context, cfg *app.Config, source catalog.Source, client *redis.Client, logger *slog.Logger) *catalog.LookupTable {
	shared := cache.NewVersioned(client, "marche:lookup", 10*cfg.LookupTTL)
	lookup := catalog.NewLookupTable(source, shared, cfg.LookupTTL, logger)
	if err := lookup.Listen(ctx); err != nil {
		logger.Warn("lookup invalidation listener", slog.Any("error", err))
	}
	return lookup
}

func seed(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	path := fs.String("file", "", "fixture JSON file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: open store: %v\n", err)
		return 1
	}
	defer func() { _ = st.Close() }()
	return cli.SeedCommand(ctx, st, cli.SeedOptions{Path: *path})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	action, args := args[0], args[1:]
	fs := flag.NewFlagSet("jobs "+action, flag.ContinueOnError)
	queue := fs.String("queue", jobs.QueueSearch, "queue name")
	size := fs.Int("size", 10, "page size for scheduled tasks")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	opts := cli.JobsOptions{Action: action, Queue: *queue, Size: *size, JSONOutput: *asJSON}
	if rest := fs.Args(); len(rest) > 0 {
		opts.Name = rest[0]
		if len(rest) > 1 {
			opts.Arg = rest[1]
		}
	}
	c := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = c.Close() }()
	return c.JobsCommand(ctx, opts)
}
