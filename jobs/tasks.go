package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/marche-app/marche/internal/searchsync"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueSearch carries search index synchronisation work.
	QueueSearch = "search"

	// TaskSearchSync applies one catalog change to the search index.
	TaskSearchSync = "search:sync"
	// TaskSearchResync rebuilds one or all search collections.
	TaskSearchResync = "search:resync"
)

// Resync scopes accepted by TaskSearchResync.
const (
	ResyncAll        = "all"
	ResyncProducts   = "products"
	ResyncCategories = "categories"
)

// SearchResyncPayload selects the collections to rebuild.
type SearchResyncPayload struct {
	Collection string `json:"collection"`
}

// NewSearchSyncTask wraps a catalog event into a task. Events are retried a
// few times and dropped after a day.
func NewSearchSyncTask(ev searchsync.Event) (*asynq.Task, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSearchSync, body,
		asynq.Queue(QueueSearch),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	), nil
}

// NewSearchResyncTask builds a resync task for the given scope; an empty
// scope rebuilds every collection.
func NewSearchResyncTask(collection string) (*asynq.Task, error) {
	if collection == "" {
		collection = ResyncAll
	}
	switch collection {
	case ResyncAll, ResyncProducts, ResyncCategories:
	default:
		return nil, fmt.Errorf("jobs: unknown resync collection %q", collection)
	}
	body, err := json.Marshal(SearchResyncPayload{Collection: collection})
	if err != nil {
		return nil, err
	}
	// Unique guards against piling up resyncs while one is still queued.
	return asynq.NewTask(TaskSearchResync, body,
		asynq.Queue(QueueSearch),
		asynq.MaxRetry(2),
		asynq.Unique(10*time.Minute),
	), nil
}
