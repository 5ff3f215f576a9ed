package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/marche-app/marche/internal/jobs"
	"github.com/marche-app/marche/internal/searchsync"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Resyncer rebuilds search collections.
type Resyncer interface {
	FullResync(ctx context.Context) (searchsync.FullResyncReport, error)
	FullResyncProducts(ctx context.Context) (searchsync.ResyncReport, error)
	FullResyncCategories(ctx context.Context) (searchsync.ResyncReport, error)
}

// SearchSyncJob applies queued catalog events.
type SearchSyncJob struct {
	Applier searchsync.Applier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSearchSyncJob wires the handler for TaskSearchSync.
func NewSearchSyncJob(applier searchsync.Applier, logger *slog.Logger, metrics *jobmetrics.Metrics) *SearchSyncJob {
	return &SearchSyncJob{Applier: applier, Logger: logger, Metrics: metrics}
}

// Handle decodes the event and applies it. Malformed payloads are not retried.
func (j *SearchSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Applier == nil {
		return errors.New("search sync: applier not configured")
	}
	var ev searchsync.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		j.logger().Warn("drop undecodable event", slog.Any("error", err))
		return fmt.Errorf("search sync: decode event: %v: %w", err, asynq.SkipRetry)
	}
	if err := ev.Validate(); err != nil {
		j.logger().Warn("drop invalid event", slog.String("event", ev.ID.String()), slog.Any("error", err))
		return fmt.Errorf("search sync: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskSearchSync)
	err := j.Applier.Apply(ctx, ev)
	if err != nil {
		j.logger().Warn("apply event",
			slog.String("event", ev.ID.String()),
			slog.String("entity", string(ev.Entity)),
			slog.String("action", string(ev.Action)),
			slog.String("target", ev.TargetID()),
			slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *SearchSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSearchSync))
	}
	return slog.Default().With(slog.String("job", TaskSearchSync))
}

func (j *SearchSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// SearchResyncJob runs scheduled or manually triggered full resyncs.
type SearchResyncJob struct {
	Service Resyncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSearchResyncJob wires the handler for TaskSearchResync.
func NewSearchResyncJob(service Resyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SearchResyncJob {
	return &SearchResyncJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle rebuilds the collections named by the payload.
func (j *SearchResyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("search resync: service not configured")
	}
	var payload SearchResyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("search resync: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	switch payload.Collection {
	case "":
		payload.Collection = ResyncAll
	case ResyncAll, ResyncProducts, ResyncCategories:
	default:
		return fmt.Errorf("search resync: unknown collection %q: %w", payload.Collection, asynq.SkipRetry)
	}

	logger := j.logger().With(slog.String("collection", payload.Collection))
	tracker := j.metrics().Track(TaskSearchResync)
	logger.Info("starting search resync")

	var reports []searchsync.ResyncReport
	var err error
	switch payload.Collection {
	case ResyncAll:
		var full searchsync.FullResyncReport
		full, err = j.Service.FullResync(ctx)
		reports = []searchsync.ResyncReport{full.Products, full.Categories}
	case ResyncProducts:
		var report searchsync.ResyncReport
		report, err = j.Service.FullResyncProducts(ctx)
		reports = []searchsync.ResyncReport{report}
	case ResyncCategories:
		var report searchsync.ResyncReport
		report, err = j.Service.FullResyncCategories(ctx)
		reports = []searchsync.ResyncReport{report}
	}
	if err != nil {
		logger.Error("search resync failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, report := range reports {
		if report.Collection == "" {
			continue
		}
		logger.Info("search collection resynced",
			slog.String("target", report.Collection),
			slog.Bool("skipped", report.Skipped),
			slog.Int("documents", report.Documents),
			slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	}
	return tracker.End(nil)
}

func (j *SearchResyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSearchResync))
	}
	return slog.Default().With(slog.String("job", TaskSearchResync))
}

func (j *SearchResyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
