package searchindex

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxErrorBody = 512

var (
	// ErrUnavailable reports a failed health probe.
	ErrUnavailable = errors.New("searchindex: unavailable")
	// ErrNotConfigured is returned by a client built without URL or API key.
	ErrNotConfigured = errors.New("searchindex: not configured")
)

// HTTPError captures a non-2xx response from the search index.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d", e.StatusCode)
	}
	body := strings.TrimSpace(e.Body)
	body = truncate(body, maxErrorBody)
	if body == "" {
		return fmt.Sprintf("searchindex: %s %s: %s", e.Method, e.Path, status)
	}
	return fmt.Sprintf("searchindex: %s %s: %s: %s", e.Method, e.Path, status, body)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// TaskFailedError is returned when an index task ends in failed or canceled.
type TaskFailedError struct {
	UID    int64
	Status TaskStatus
	Err    *TaskError
}

func (e *TaskFailedError) Error() string {
	if e.Err == nil || e.Err.Message == "" {
		return fmt.Sprintf("searchindex: task %d %s", e.UID, e.Status)
	}
	return fmt.Sprintf("searchindex: task %d %s: %s (%s)", e.UID, e.Status, e.Err.Message, e.Err.Code)
}
