package searchsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultApplyTimeout bounds one background sync when no timeout is set.
const DefaultApplyTimeout = time.Minute

// ErrNotifierClosed is reported for events notified after Close.
var ErrNotifierClosed = errors.New("searchsync: notifier closed")

// Applier executes one event synchronously.
type Applier interface {
	Apply(ctx context.Context, ev Event) error
}

// Notifier hands an event off for best-effort processing. Implementations
// must not block on the sync itself and never report failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// FailureHook receives events whose sync failed.
type FailureHook func(ev Event, err error)

// BackgroundOptions configures a BackgroundNotifier.
type BackgroundOptions struct {
	Timeout   time.Duration
	OnFailure FailureHook
	Logger    *slog.Logger
}

// BackgroundNotifier applies events on their own goroutine, detached from the
// caller's cancellation and bounded by a timeout.
type BackgroundNotifier struct {
	applier   Applier
	timeout   time.Duration
	onFailure FailureHook
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewBackgroundNotifier constructs the in-process notifier.
func NewBackgroundNotifier(applier Applier, opts BackgroundOptions) *BackgroundNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultApplyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &BackgroundNotifier{
		applier:   applier,
		timeout:   opts.Timeout,
		onFailure: opts.OnFailure,
		logger:    logger,
	}
	if n.onFailure == nil {
		n.onFailure = n.logFailure
	}
	return n
}

// Notify schedules ev and returns immediately.
func (n *BackgroundNotifier) Notify(ctx context.Context, ev Event) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.onFailure(ev, ErrNotifierClosed)
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go n.run(context.WithoutCancel(ctx), ev)
}

func (n *BackgroundNotifier) run(ctx context.Context, ev Event) {
	defer n.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			n.onFailure(ev, fmt.Errorf("searchsync: panic applying event: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.applier.Apply(ctx, ev); err != nil {
		n.onFailure(ev, err)
	}
}

// Wait blocks until every scheduled event has finished.
func (n *BackgroundNotifier) Wait() {
	n.wg.Wait()
}

// Close stops accepting events and waits for in-flight ones until ctx ends.
func (n *BackgroundNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *BackgroundNotifier) logFailure(ev Event, err error) {
	n.logger.Warn("search sync failed",
		slog.String("event_id", ev.ID.String()),
		slog.String("entity", string(ev.Entity)),
		slog.String("action", string(ev.Action)),
		slog.String("entity_id", ev.TargetID()),
		slog.Any("error", err),
	)
}
