package searchsync

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marche-app/marche/internal/searchindex"
)

// fakeIndex is an in-memory Meilisearch stand-in. Every mutation completes
// its task immediately unless failTasks is set.
type fakeIndex struct {
	mu         sync.Mutex
	healthy    bool
	failTasks  bool
	failStatus int
	nextUID    int64
	calls      []string
	docs       map[string]map[string]map[string]any
}

func newFakeIndex(t *testing.T) (*fakeIndex, *searchindex.Client) {
	t.Helper()
	f := &fakeIndex{healthy: true, docs: map[string]map[string]map[string]any{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client := searchindex.New(searchindex.Config{
		URL:          srv.URL,
		APIKey:       "test-key",
		Timeout:      2 * time.Second,
		PollInterval: time.Millisecond,
		TaskTimeout:  time.Second,
	})
	return f, client
}

func (f *fakeIndex) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	if r.URL.Path == "/health" {
		if !f.healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeFakeJSON(w, http.StatusOK, map[string]string{"status": "available"})
		return
	}
	if strings.HasPrefix(r.URL.Path, "/tasks/") {
		uid, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/tasks/"), 10, 64)
		status := "succeeded"
		var taskErr map[string]string
		if f.failTasks {
			status = "failed"
			taskErr = map[string]string{"message": "index rejected documents", "code": "internal", "type": "internal"}
		}
		writeFakeJSON(w, http.StatusOK, map[string]any{"uid": uid, "status": status, "error": taskErr})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "indexes" || parts[2] != "documents" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if f.failStatus != 0 {
		writeFakeJSON(w, f.failStatus, map[string]string{"message": "boom"})
		return
	}
	collection := parts[1]
	if f.docs[collection] == nil {
		f.docs[collection] = map[string]map[string]any{}
	}
	switch {
	case r.Method == http.MethodDelete && len(parts) == 4:
		delete(f.docs[collection], parts[3])
	case r.Method == http.MethodDelete:
		f.docs[collection] = map[string]map[string]any{}
	case r.Method == http.MethodPost || r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		var docs []map[string]any
		if err := json.Unmarshal(body, &docs); err != nil {
			writeFakeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		for _, doc := range docs {
			f.docs[collection][fmt.Sprint(doc["id"])] = doc
		}
	}
	f.nextUID++
	writeFakeJSON(w, http.StatusAccepted, map[string]any{
		"taskUid":    f.nextUID,
		"indexUid":   collection,
		"status":     "enqueued",
		"enqueuedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

func (f *fakeIndex) setHealthy(v bool) {
	f.mu.Lock()
	f.healthy = v
	f.mu.Unlock()
}

func (f *fakeIndex) setFailures(failTasks bool, status int) {
	f.mu.Lock()
	f.failTasks = failTasks
	f.failStatus = status
	f.mu.Unlock()
}

func (f *fakeIndex) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeIndex) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeIndex) mutations() []string {
	var out []string
	for _, call := range f.callLog() {
		if strings.HasPrefix(call, "GET ") {
			continue
		}
		out = append(out, call)
	}
	return out
}

func (f *fakeIndex) doc(collection, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[collection][id]
}

func (f *fakeIndex) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[collection])
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
