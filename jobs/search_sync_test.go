package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/marche-app/marche/internal/catalog"
	jobmetrics "github.com/marche-app/marche/internal/jobs"
	"github.com/marche-app/marche/internal/searchsync"
)

type recordingApplier struct {
	mu     sync.Mutex
	events []searchsync.Event
	err    error
}

func (r *recordingApplier) Apply(_ context.Context, ev searchsync.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func productEvent() searchsync.Event {
	ev := searchsync.NewEvent(searchsync.EntityProduct, searchsync.ActionUpdate)
	ev.Product = &catalog.Product{ID: "p1", Name: "Sac cabas", Price: 79.9}
	return ev
}

func TestSearchSyncJobAppliesEvent(t *testing.T) {
	applier := &recordingApplier{}
	job := NewSearchSyncJob(applier, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewSearchSyncTask(productEvent())
	require.NoError(t, err)
	require.Equal(t, TaskSearchSync, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, applier.events, 1)
	require.Equal(t, "p1", applier.events[0].TargetID())
	require.Equal(t, "Sac cabas", applier.events[0].Product.Name)
}

func TestSearchSyncJobReturnsApplyErrorForRetry(t *testing.T) {
	applier := &recordingApplier{err: errors.New("index returned 500")}
	job := NewSearchSyncJob(applier, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewSearchSyncTask(productEvent())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestSearchSyncJobSkipsMalformedPayload(t *testing.T) {
	job := NewSearchSyncJob(&recordingApplier{}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSearchSync, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(searchsync.Event{Entity: "order", Action: searchsync.ActionCreate})
	err = job.Handle(context.Background(), asynq.NewTask(TaskSearchSync, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewSearchSyncTaskRejectsInvalidEvent(t *testing.T) {
	_, err := NewSearchSyncTask(searchsync.NewEvent(searchsync.EntityCategory, searchsync.ActionCreate))
	require.ErrorIs(t, err, searchsync.ErrMissingTarget)
}

type stubResyncer struct {
	calls []string
	err   error
}

func (s *stubResyncer) FullResync(context.Context) (searchsync.FullResyncReport, error) {
	s.calls = append(s.calls, ResyncAll)
	return searchsync.FullResyncReport{
		Products:   searchsync.ResyncReport{Collection: "products", Documents: 2},
		Categories: searchsync.ResyncReport{Collection: "categories", Documents: 1},
	}, s.err
}

func (s *stubResyncer) FullResyncProducts(context.Context) (searchsync.ResyncReport, error) {
	s.calls = append(s.calls, ResyncProducts)
	return searchsync.ResyncReport{Collection: "products"}, s.err
}

func (s *stubResyncer) FullResyncCategories(context.Context) (searchsync.ResyncReport, error) {
	s.calls = append(s.calls, ResyncCategories)
	return searchsync.ResyncReport{Collection: "categories", Skipped: true}, s.err
}

func TestSearchResyncJobDispatchesByCollection(t *testing.T) {
	svc := &stubResyncer{}
	job := NewSearchResyncJob(svc, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	for _, collection := range []string{"", ResyncProducts, ResyncCategories} {
		task, err := NewSearchResyncTask(collection)
		require.NoError(t, err)
		require.NoError(t, job.Handle(context.Background(), task))
	}
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskSearchResync, nil)))
	require.Equal(t, []string{ResyncAll, ResyncProducts, ResyncCategories, ResyncAll}, svc.calls)

	_, err := NewSearchResyncTask("orders")
	require.Error(t, err)
	err = job.Handle(context.Background(), asynq.NewTask(TaskSearchResync, []byte(`{"collection":"orders"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSearchResyncJobPropagatesFailure(t *testing.T) {
	svc := &stubResyncer{err: errors.New("clear failed")}
	job := NewSearchResyncJob(svc, nil, nil)
	task, err := NewSearchResyncTask(ResyncProducts)
	require.NoError(t, err)
	require.EqualError(t, job.Handle(context.Background(), task), "clear failed")
}

type stubEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	s.opts = append(s.opts, opts)
	return &asynq.TaskInfo{ID: "t1", Queue: QueueSearch, Type: task.Type()}, nil
}

func TestQueueNotifierEnqueuesDetachedFromCaller(t *testing.T) {
	enq := &stubEnqueuer{}
	n := NewQueueNotifier(enq, nil, func(ev searchsync.Event, err error) {
		t.Fatalf("unexpected failure: %v", err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev := productEvent()
	n.Notify(ctx, ev)

	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskSearchSync, enq.tasks[0].Type())
	var decoded searchsync.Event
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &decoded))
	require.Equal(t, ev.ID, decoded.ID)
	require.Len(t, enq.opts[0], 1)
}

func TestQueueNotifierReportsFailures(t *testing.T) {
	var failures []error
	hook := func(_ searchsync.Event, err error) { failures = append(failures, err) }

	n := NewQueueNotifier(&stubEnqueuer{err: errors.New("redis down")}, nil, hook)
	n.Notify(context.Background(), productEvent())
	n.Notify(context.Background(), searchsync.NewEvent(searchsync.EntityProduct, searchsync.ActionCreate))

	require.Len(t, failures, 2)
	require.EqualError(t, failures[0], "redis down")
	require.ErrorIs(t, failures[1], searchsync.ErrMissingTarget)
}

func TestQueueNotifierDefaultHookDoesNotPanic(t *testing.T) {
	n := NewQueueNotifier(&stubEnqueuer{err: errors.New("redis down")}, nil, nil)
	require.NotPanics(t, func() { n.Notify(context.Background(), productEvent()) })
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestJobsHealth(t *testing.T) {
	h := NewHandler(stubInspector{infos: map[string]*asynq.QueueInfo{
		QueueSearch: {Queue: QueueSearch, Pending: 4, Retry: 1},
	}}, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queues":[
		{"queue":"search","pending":4,"active":0,"retry":1,"archived":0,"scheduled":0},
		{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"scheduled":0}
	]}`, rec.Body.String())

	h = NewHandler(stubInspector{err: errors.New("dial tcp: refused")}, nil)
	rec = httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
