// Package searchsync mirrors catalog changes into the search index. Per-item
// syncs are best effort and never surface errors to callers; full resyncs are
// blocking and report failures.
package searchsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marche-app/marche/internal/catalog"
	jobmetrics "github.com/marche-app/marche/internal/jobs"
	"github.com/marche-app/marche/internal/searchindex"
)

// DefaultResyncTimeout bounds one full collection resync.
const DefaultResyncTimeout = 5 * time.Minute

// Index is the subset of the search index client used by the service.
type Index interface {
	Enabled() bool
	Health(ctx context.Context) error
	AddDocuments(ctx context.Context, collection string, docs interface{}) (searchindex.TaskInfo, error)
	ReplaceDocuments(ctx context.Context, collection string, docs interface{}) (searchindex.TaskInfo, error)
	DeleteDocument(ctx context.Context, collection, id string) (searchindex.TaskInfo, error)
	DeleteAllDocuments(ctx context.Context, collection string) (searchindex.TaskInfo, error)
	WaitForTask(ctx context.Context, uid int64) (searchindex.Task, error)
}

// Options configures optional collaborators of the service.
type Options struct {
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
	Notifier      Notifier
	ApplyTimeout  time.Duration
	ResyncTimeout time.Duration
}

// ResyncReport summarises one collection resync.
type ResyncReport struct {
	Collection    string    `json:"collection"`
	Skipped       bool      `json:"skipped"`
	Documents     int       `json:"documents"`
	ClearTaskUID  int64     `json:"clearTaskUid,omitempty"`
	InsertTaskUID int64     `json:"insertTaskUid,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// FullResyncReport holds the per-collection reports of FullResync.
type FullResyncReport struct {
	Products   ResyncReport `json:"products"`
	Categories ResyncReport `json:"categories"`
}

// Service synchronises catalog entities with the search index.
type Service struct {
	index         Index
	source        catalog.Source
	lookup        *catalog.LookupTable
	notifier      Notifier
	logger        *slog.Logger
	metrics       *jobmetrics.Metrics
	resyncTimeout time.Duration
	resyncs       singleflight.Group
	now           func() time.Time
}

// NewService wires the sync service. When no notifier is supplied events are
// applied in-process by a BackgroundNotifier.
func NewService(index Index, source catalog.Source, lookup *catalog.LookupTable, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if lookup == nil && source != nil {
		lookup = catalog.NewLookupTable(source, nil, 0, logger)
	}
	if opts.ResyncTimeout <= 0 {
		opts.ResyncTimeout = DefaultResyncTimeout
	}
	s := &Service{
		index:         index,
		source:        source,
		lookup:        lookup,
		notifier:      opts.Notifier,
		logger:        logger,
		metrics:       opts.Metrics,
		resyncTimeout: opts.ResyncTimeout,
		now:           time.Now,
	}
	if s.notifier == nil {
		s.notifier = NewBackgroundNotifier(s, BackgroundOptions{Timeout: opts.ApplyTimeout, Logger: logger})
	}
	return s
}

// Enabled reports whether an index is configured. A disabled service turns
// every operation into a no-op.
func (s *Service) Enabled() bool {
	return s != nil && s.index != nil && s.index.Enabled()
}

// Notifier returns the notifier events are handed to.
func (s *Service) Notifier() Notifier {
	return s.notifier
}

// Close drains in-process notifications.
func (s *Service) Close(ctx context.Context) error {
	if closer, ok := s.notifier.(interface{ Close(context.Context) error }); ok {
		return closer.Close(ctx)
	}
	return nil
}

// Available probes the index.
func (s *Service) Available(ctx context.Context) bool {
	return s.Enabled() && s.index.Health(ctx) == nil
}

// OnProductCreate indexes a new product in the background.
func (s *Service) OnProductCreate(ctx context.Context, p catalog.Product) {
	s.notifyProduct(ctx, ActionCreate, p)
}

// OnProductUpdate replaces the product document in the background.
func (s *Service) OnProductUpdate(ctx context.Context, p catalog.Product) {
	s.notifyProduct(ctx, ActionUpdate, p)
}

// OnProductDelete removes the product document in the background.
func (s *Service) OnProductDelete(ctx context.Context, productID string) {
	if !s.Enabled() {
		return
	}
	ev := NewEvent(EntityProduct, ActionDelete)
	ev.EntityID = productID
	s.notifier.Notify(ctx, ev)
}

// OnCategoryCreate indexes a new category in the background.
func (s *Service) OnCategoryCreate(ctx context.Context, c catalog.Category) {
	s.notifyCategory(ctx, ActionCreate, c)
}

// OnCategoryUpdate replaces the category document in the background.
func (s *Service) OnCategoryUpdate(ctx context.Context, c catalog.Category) {
	s.notifyCategory(ctx, ActionUpdate, c)
}

// OnCategoryDelete removes the category document in the background.
func (s *Service) OnCategoryDelete(ctx context.Context, categoryID string) {
	if !s.Enabled() {
		return
	}
	ev := NewEvent(EntityCategory, ActionDelete)
	ev.EntityID = categoryID
	s.notifier.Notify(ctx, ev)
}

func (s *Service) notifyProduct(ctx context.Context, action Action, p catalog.Product) {
	if !s.Enabled() {
		return
	}
	ev := NewEvent(EntityProduct, action)
	ev.EntityID = p.ID
	ev.Product = &p
	s.notifier.Notify(ctx, ev)
}

func (s *Service) notifyCategory(ctx context.Context, action Action, c catalog.Category) {
	if !s.Enabled() {
		return
	}
	ev := NewEvent(EntityCategory, action)
	ev.EntityID = c.ID
	ev.Category = &c
	s.notifier.Notify(ctx, ev)
}

// Apply mirrors a single event into the index and waits for the resulting
// task. An unavailable index is not an error: the event is dropped.
func (s *Service) Apply(ctx context.Context, ev Event) error {
	if !s.Enabled() {
		return nil
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	tracker := s.metrics.Track("search_sync_" + string(ev.Entity))
	return tracker.End(s.apply(ctx, ev))
}

func (s *Service) apply(ctx context.Context, ev Event) error {
	if ev.Entity == EntityCategory {
		if err := s.lookup.Invalidate(ctx); err != nil {
			s.logger.Warn("lookup invalidation failed", slog.Any("error", err))
		}
	}
	if err := s.index.Health(ctx); err != nil {
		s.logger.Debug("search index unavailable, skipping sync",
			slog.String("entity", string(ev.Entity)),
			slog.String("entity_id", ev.TargetID()),
			slog.Any("error", err))
		return nil
	}

	collection := ev.collection()
	var (
		info searchindex.TaskInfo
		err  error
	)
	switch {
	case ev.Action == ActionDelete:
		info, err = s.index.DeleteDocument(ctx, collection, ev.TargetID())
	case ev.Entity == EntityProduct:
		docs := []ProductDocument{BuildProductDocument(*ev.Product, s.productNames(ctx, *ev.Product))}
		info, err = s.write(ctx, ev.Action, collection, docs)
	default:
		docs := []CategoryDocument{BuildCategoryDocument(*ev.Category)}
		info, err = s.write(ctx, ev.Action, collection, docs)
	}
	if err != nil {
		return fmt.Errorf("searchsync: %s %s %s: %w", ev.Action, ev.Entity, ev.TargetID(), err)
	}
	if _, err := s.index.WaitForTask(ctx, info.TaskUID); err != nil {
		return fmt.Errorf("searchsync: %s %s %s: %w", ev.Action, ev.Entity, ev.TargetID(), err)
	}
	if ev.Action != ActionDelete {
		s.metrics.AddDocuments(collection, 1)
	}
	return nil
}

func (s *Service) write(ctx context.Context, action Action, collection string, docs interface{}) (searchindex.TaskInfo, error) {
	if action == ActionCreate {
		return s.index.AddDocuments(ctx, collection, docs)
	}
	return s.index.ReplaceDocuments(ctx, collection, docs)
}

// names resolves the lookup snapshot; failures leave names unresolved.
func (s *Service) names(ctx context.Context) catalog.Names {
	names, err := s.lookup.Names(ctx)
	if err != nil {
		s.logger.Warn("name lookup failed, indexing without names", slog.Any("error", err))
	}
	return names
}

// productNames resolves the names p references. A miss on a non-empty id
// forces one reload so entities created since the last snapshot resolve.
func (s *Service) productNames(ctx context.Context, p catalog.Product) catalog.Names {
	names := s.names(ctx)
	if !unresolved(names, p) {
		return names
	}
	if err := s.lookup.Refresh(ctx); err != nil {
		s.logger.Warn("lookup refresh failed", slog.String("product", p.ID), slog.Any("error", err))
		return names
	}
	return s.names(ctx)
}

func unresolved(names catalog.Names, p catalog.Product) bool {
	if _, ok := names.Category(p.CategoryID); p.CategoryID != "" && !ok {
		return true
	}
	_, ok := names.Brand(p.BrandID)
	return p.BrandID != "" && !ok
}

// FullResyncProducts rebuilds the products collection from the catalog.
func (s *Service) FullResyncProducts(ctx context.Context) (ResyncReport, error) {
	return s.resync(ctx, searchindex.CollectionProducts, func(ctx context.Context) (interface{}, int, error) {
		products, err := s.source.Products(ctx)
		if err != nil {
			return nil, 0, err
		}
		if err := s.lookup.Invalidate(ctx); err != nil {
			s.logger.Warn("lookup invalidation failed", slog.Any("error", err))
		}
		names := s.names(ctx)
		docs := make([]ProductDocument, 0, len(products))
		for _, p := range products {
			docs = append(docs, BuildProductDocument(p, names))
		}
		return docs, len(docs), nil
	})
}

// FullResyncCategories rebuilds the categories collection from the catalog.
func (s *Service) FullResyncCategories(ctx context.Context) (ResyncReport, error) {
	return s.resync(ctx, searchindex.CollectionCategories, func(ctx context.Context) (interface{}, int, error) {
		categories, err := s.source.Categories(ctx)
		if err != nil {
			return nil, 0, err
		}
		docs := make([]CategoryDocument, 0, len(categories))
		for _, c := range categories {
			docs = append(docs, BuildCategoryDocument(c))
		}
		return docs, len(docs), nil
	})
}

// FullResync resyncs products then categories.
func (s *Service) FullResync(ctx context.Context) (FullResyncReport, error) {
	var report FullResyncReport
	var err error
	report.Products, err = s.FullResyncProducts(ctx)
	if err != nil {
		return report, err
	}
	report.Categories, err = s.FullResyncCategories(ctx)
	return report, err
}

type buildFunc func(ctx context.Context) (docs interface{}, count int, err error)

// resync runs at most one resync per collection at a time; concurrent
// callers share the in-flight result. The run is detached from the first
// caller's cancellation and bounded by the resync timeout instead.
func (s *Service) resync(ctx context.Context, collection string, build buildFunc) (ResyncReport, error) {
	if !s.Enabled() || s.source == nil {
		return ResyncReport{Collection: collection, Skipped: true}, nil
	}
	ch := s.resyncs.DoChan(collection, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.resyncTimeout)
		defer cancel()
		tracker := s.metrics.Track("search_resync_" + collection)
		report, err := s.runResync(runCtx, collection, build)
		return report, tracker.End(err)
	})
	select {
	case <-ctx.Done():
		return ResyncReport{Collection: collection}, ctx.Err()
	case res := <-ch:
		report, _ := res.Val.(ResyncReport)
		return report, res.Err
	}
}

func (s *Service) runResync(ctx context.Context, collection string, build buildFunc) (ResyncReport, error) {
	report := ResyncReport{Collection: collection, StartedAt: s.now().UTC()}
	finish := func(err error) (ResyncReport, error) {
		report.FinishedAt = s.now().UTC()
		return report, err
	}

	if err := s.index.Health(ctx); err != nil {
		s.logger.Warn("search index unavailable, resync skipped",
			slog.String("collection", collection), slog.Any("error", err))
		report.Skipped = true
		return finish(nil)
	}

	docs, count, err := build(ctx)
	if err != nil {
		return finish(fmt.Errorf("searchsync: resync %s: fetch: %w", collection, err))
	}

	clearTask, err := s.index.DeleteAllDocuments(ctx, collection)
	if err != nil {
		return finish(fmt.Errorf("searchsync: resync %s: clear: %w", collection, err))
	}
	report.ClearTaskUID = clearTask.TaskUID
	if _, err := s.index.WaitForTask(ctx, clearTask.TaskUID); err != nil {
		return finish(fmt.Errorf("searchsync: resync %s: await clear: %w", collection, err))
	}

	if count > 0 {
		insertTask, err := s.index.AddDocuments(ctx, collection, docs)
		if err != nil {
			return finish(fmt.Errorf("searchsync: resync %s: insert: %w", collection, err))
		}
		report.InsertTaskUID = insertTask.TaskUID
		if _, err := s.index.WaitForTask(ctx, insertTask.TaskUID); err != nil {
			return finish(fmt.Errorf("searchsync: resync %s: await insert: %w", collection, err))
		}
	}
	report.Documents = count
	s.metrics.AddDocuments(collection, count)
	s.logger.Info("search collection resynced",
		slog.String("collection", collection), slog.Int("documents", count))
	return finish(nil)
}

// IsUpstreamError reports whether err originated from the search index.
func IsUpstreamError(err error) bool {
	var httpErr *searchindex.HTTPError
	var taskErr *searchindex.TaskFailedError
	return errors.As(err, &httpErr) || errors.As(err, &taskErr) || errors.Is(err, context.DeadlineExceeded)
}
