package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/marche-app/marche/internal/store"
	"github.com/marche-app/marche/jobs"
)

type stubClient struct {
	tasks []*asynq.Task
}

func (s *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "abc", Type: task.Type(), Queue: jobs.QueueSearch}, nil
}

func (s *stubClient) Close() error { return nil }

type stubInspector struct {
	info      *asynq.QueueInfo
	err       error
	scheduled []*asynq.TaskInfo
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, s.err
}

func (s stubInspector) Close() error { return nil }

func TestTriggerSearchResync(t *testing.T) {
	client := &stubClient{}
	c := &JobsCLI{client: client, inspector: stubInspector{}}

	var out bytes.Buffer
	code := c.JobsCommand(context.Background(), JobsOptions{Action: "trigger", Name: jobs.TaskSearchResync, Arg: jobs.ResyncProducts, JSONOutput: true, Stdout: &out})
	require.Equal(t, 0, code)
	require.JSONEq(t, `{"id":"abc","type":"search:resync","queue":"search"}`, out.String())

	var payload jobs.SearchResyncPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, jobs.ResyncProducts, payload.Collection)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &stubClient{}, inspector: stubInspector{}}
	var errOut bytes.Buffer
	require.Equal(t, 1, c.JobsCommand(context.Background(), JobsOptions{Action: "trigger", Name: "mail:send", Stderr: &errOut}))
	require.Contains(t, errOut.String(), "unsupported job")
	require.Equal(t, 2, c.JobsCommand(context.Background(), JobsOptions{Action: "purge", Stderr: &errOut}))
}

func TestStatsCommand(t *testing.T) {
	c := &JobsCLI{client: &stubClient{}, inspector: stubInspector{info: &asynq.QueueInfo{Queue: "search", Pending: 3, Retry: 1}}}
	var out bytes.Buffer
	require.Equal(t, 0, c.JobsCommand(context.Background(), JobsOptions{Action: "stats", Stdout: &out}))
	require.True(t, strings.HasPrefix(out.String(), "QUEUE"))
	require.Contains(t, out.String(), "search")

	c.inspector = stubInspector{err: asynq.ErrQueueNotFound}
	stats, err := c.InspectQueue(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueSearch}, stats)

	c.inspector = stubInspector{err: errors.New("redis down")}
	var errOut bytes.Buffer
	require.Equal(t, 1, c.JobsCommand(context.Background(), JobsOptions{Action: "stats", Stderr: &errOut}))
}

func TestScheduledCommand(t *testing.T) {
	at := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
	c := &JobsCLI{client: &stubClient{}, inspector: stubInspector{scheduled: []*asynq.TaskInfo{{ID: "t1", Type: jobs.TaskSearchResync, NextProcessAt: at}}}}
	var out bytes.Buffer
	require.Equal(t, 0, c.JobsCommand(context.Background(), JobsOptions{Action: "scheduled", JSONOutput: true, Stdout: &out}))
	require.JSONEq(t, `[{"id":"t1","type":"search:resync","nextProcessAt":"2025-03-01T03:00:00Z"}]`, out.String())
}

func TestSeedCommand(t *testing.T) {
	s, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"categories":[{"id":"c1","name":"Maroquinerie","slug":"maroquinerie"}],
		"products":[{"id":"p1","name":"Sac","price":20,"categoryId":"c1"}]
	}`), 0o600))

	var out, errOut bytes.Buffer
	require.Equal(t, 0, SeedCommand(context.Background(), s, SeedOptions{Path: path, Stdout: &out, Stderr: &errOut}), errOut.String())
	require.Contains(t, out.String(), "1 categories")

	products, err := s.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)

	require.Equal(t, 2, SeedCommand(context.Background(), s, SeedOptions{Stderr: &errOut}))
	require.Equal(t, 1, SeedCommand(context.Background(), s, SeedOptions{Path: filepath.Join(t.TempDir(), "missing.json"), Stderr: &errOut}))
}
