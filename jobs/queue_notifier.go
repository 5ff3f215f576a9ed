package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/marche-app/marche/internal/searchsync"
)

const defaultEnqueueTimeout = 5 * time.Second

// Enqueuer submits tasks to the queue.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier hands catalog events to the worker through asynq. Enqueue
// failures are reported to OnFailure and never reach the caller.
type QueueNotifier struct {
	enqueuer  Enqueuer
	logger    *slog.Logger
	timeout   time.Duration
	onFailure searchsync.FailureHook
}

// NewQueueNotifier constructs a notifier. A nil hook logs failures.
func NewQueueNotifier(enqueuer Enqueuer, logger *slog.Logger, onFailure searchsync.FailureHook) *QueueNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &QueueNotifier{enqueuer: enqueuer, logger: logger, timeout: defaultEnqueueTimeout, onFailure: onFailure}
	if n.onFailure == nil {
		n.onFailure = func(ev searchsync.Event, err error) {
			logger.Warn("enqueue search sync failed",
				slog.String("event", ev.ID.String()),
				slog.String("entity", string(ev.Entity)),
				slog.String("target", ev.TargetID()),
				slog.Any("error", err))
		}
	}
	return n
}

// Notify enqueues ev. The request context only contributes values; the
// enqueue is bounded by its own timeout.
func (n *QueueNotifier) Notify(ctx context.Context, ev searchsync.Event) {
	task, err := NewSearchSyncTask(ev)
	if err != nil {
		n.onFailure(ev, err)
		return
	}
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	info, err := n.enqueuer.EnqueueContext(enqueueCtx, task, asynq.TaskID(ev.ID.String()))
	if err != nil {
		n.onFailure(ev, err)
		return
	}
	n.logger.Debug("search sync enqueued", slog.String("event", ev.ID.String()), slog.String("task", info.ID), slog.String("queue", info.Queue))
}
