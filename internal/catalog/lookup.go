package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/marche-app/marche/internal/platform/cache"
)

// DefaultLookupTTL bounds how long a resolved name snapshot is reused.
const DefaultLookupTTL = time.Minute

// Names is a snapshot of category and brand display names keyed by id.
type Names struct {
	Categories map[string]string `json:"categories"`
	Brands     map[string]string `json:"brands"`
}

// Category returns the category name for id.
func (n Names) Category(id string) (string, bool) {
	name, ok := n.Categories[id]
	return name, ok && id != ""
}

// Brand returns the brand name for id.
func (n Names) Brand(id string) (string, bool) {
	name, ok := n.Brands[id]
	return name, ok && id != ""
}

// LookupTable resolves category and brand names for search documents. The
// snapshot is held in memory for the TTL and optionally shared with other
// processes through a versioned Redis cache.
type LookupTable struct {
	source Source
	cache  *cache.Versioned
	ttl    time.Duration
	logger *slog.Logger
	clock  func() time.Time

	mu       sync.RWMutex
	snapshot *Names
	loadedAt time.Time
}

// NewLookupTable builds a lookup table over source. cache may be nil.
func NewLookupTable(source Source, shared *cache.Versioned, ttl time.Duration, logger *slog.Logger) *LookupTable {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return &LookupTable{
		source: source,
		cache:  shared,
		ttl:    ttl,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides the time source; used by tests.
func (t *LookupTable) WithClock(clock func() time.Time) *LookupTable {
	if clock != nil {
		t.clock = clock
	}
	return t
}

func (t *LookupTable) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

// Names returns the current snapshot, loading it when stale. Collections are
// fetched concurrently and independently: a failed collection yields an empty
// map and a non-nil error, while the other collection is still returned.
// Partial snapshots are never retained.
func (t *LookupTable) Names(ctx context.Context) (Names, error) {
	if t == nil || t.source == nil {
		return Names{}, nil
	}
	t.mu.RLock()
	if t.snapshot != nil && t.clock().Sub(t.loadedAt) < t.ttl {
		names := *t.snapshot
		t.mu.RUnlock()
		return names, nil
	}
	t.mu.RUnlock()
	return t.load(ctx)
}

func (t *LookupTable) load(ctx context.Context) (Names, error) {
	names := Names{Categories: map[string]string{}, Brands: map[string]string{}}
	var categoryErr, brandErr error

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var out map[string]string
		categoryErr = t.fetch(gctx, "categories", &out, func(ctx context.Context) (interface{}, error) {
			rows, err := t.source.Categories(ctx)
			if err != nil {
				return nil, err
			}
			index := make(map[string]string, len(rows))
			for _, row := range rows {
				index[row.ID] = row.Name
			}
			return index, nil
		})
		if categoryErr == nil && out != nil {
			names.Categories = out
		}
		return nil
	})
	group.Go(func() error {
		var out map[string]string
		brandErr = t.fetch(gctx, "brands", &out, func(ctx context.Context) (interface{}, error) {
			rows, err := t.source.Brands(ctx)
			if err != nil {
				return nil, err
			}
			index := make(map[string]string, len(rows))
			for _, row := range rows {
				index[row.ID] = row.Name
			}
			return index, nil
		})
		if brandErr == nil && out != nil {
			names.Brands = out
		}
		return nil
	})
	_ = group.Wait()

	if categoryErr != nil {
		categoryErr = fmt.Errorf("catalog: lookup categories: %w", categoryErr)
	}
	if brandErr != nil {
		brandErr = fmt.Errorf("catalog: lookup brands: %w", brandErr)
	}
	if err := errors.Join(categoryErr, brandErr); err != nil {
		return names, err
	}

	t.mu.Lock()
	t.snapshot = &names
	t.loadedAt = t.clock()
	t.mu.Unlock()
	return names, nil
}

// fetch goes through the shared cache when configured. A Redis failure
// degrades to a direct source read.
func (t *LookupTable) fetch(ctx context.Context, collection string, dest *map[string]string, loader func(context.Context) (interface{}, error)) error {
	if t.cache == nil {
		return t.cacheless(ctx, dest, loader)
	}
	key, err := t.cache.BuildKey(ctx, collection)
	if err != nil {
		t.log().Warn("lookup cache key failed", slog.String("collection", collection), slog.Any("error", err))
		return t.cacheless(ctx, dest, loader)
	}
	var sourceErr error
	err = t.cache.FetchJSON(ctx, key, dest, func(ctx context.Context) (interface{}, error) {
		value, err := loader(ctx)
		sourceErr = err
		return value, err
	})
	if err != nil && sourceErr == nil {
		t.log().Warn("lookup cache read failed", slog.String("collection", collection), slog.Any("error", err))
		return t.cacheless(ctx, dest, loader)
	}
	return err
}

func (t *LookupTable) cacheless(ctx context.Context, dest *map[string]string, loader func(context.Context) (interface{}, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	index, _ := value.(map[string]string)
	*dest = index
	return nil
}

// Invalidate drops the in-memory snapshot and bumps the shared version so
// other processes reload as well.
func (t *LookupTable) Invalidate(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.reset()
	if err := t.cache.Bump(ctx); err != nil {
		return fmt.Errorf("catalog: invalidate lookup: %w", err)
	}
	return nil
}

// Refresh reloads the snapshot from the source immediately.
func (t *LookupTable) Refresh(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.reset()
	if err := t.cache.Bump(ctx); err != nil {
		t.log().Warn("lookup cache bump failed", slog.Any("error", err))
	}
	_, err := t.load(ctx)
	return err
}

// Listen drops the local snapshot whenever another process bumps the shared
// version. It returns once the subscription is established.
func (t *LookupTable) Listen(ctx context.Context) error {
	if t == nil || t.cache == nil {
		return nil
	}
	return t.cache.Subscribe(ctx, func(int64) { t.reset() })
}

func (t *LookupTable) reset() {
	t.mu.Lock()
	t.snapshot = nil
	t.loadedAt = time.Time{}
	t.mu.Unlock()
}

// ScheduleRefresh registers a periodic Refresh of table on c using a cron
// spec such as "@every 10m".
func ScheduleRefresh(c *cron.Cron, spec string, table *LookupTable, timeout time.Duration, logger *slog.Logger) (cron.EntryID, error) {
	if c == nil || table == nil {
		return 0, errors.New("catalog: schedule refresh: cron and table required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := table.Refresh(ctx); err != nil {
			logger.Warn("lookup refresh failed", slog.Any("error", err))
			return
		}
		logger.Debug("lookup refreshed")
	})
	if err != nil {
		return 0, fmt.Errorf("catalog: schedule refresh %q: %w", spec, err)
	}
	return id, nil
}
