package searchindex

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// TaskStatus is the lifecycle state of an asynchronous index task.
type TaskStatus string

const (
	TaskEnqueued   TaskStatus = "enqueued"
	TaskProcessing TaskStatus = "processing"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
	TaskCanceled   TaskStatus = "canceled"
)

// Pending reports whether the task has not reached a terminal state.
func (s TaskStatus) Pending() bool {
	return s == TaskEnqueued || s == TaskProcessing
}

// TaskInfo is the handle returned when a mutation is accepted.
type TaskInfo struct {
	TaskUID    int64      `json:"taskUid"`
	IndexUID   string     `json:"indexUid"`
	Status     TaskStatus `json:"status"`
	Type       string     `json:"type"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
}

// TaskError is the failure payload attached to a failed task.
type TaskError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link"`
}

// Task is the full status of an index task.
type Task struct {
	UID        int64      `json:"uid"`
	IndexUID   string     `json:"indexUid"`
	Status     TaskStatus `json:"status"`
	Type       string     `json:"type"`
	Error      *TaskError `json:"error,omitempty"`
	Duration   string     `json:"duration,omitempty"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// GetTask fetches the current status of a task.
func (c *Client) GetTask(ctx context.Context, uid int64) (Task, error) {
	if !c.Enabled() {
		return Task{}, ErrNotConfigured
	}
	var task Task
	resp, err := c.request(ctx).
		SetPathParam("uid", strconv.FormatInt(uid, 10)).
		SetResult(&task).
		Get("/tasks/{uid}")
	if err := c.check(resp, err, "GET", "/tasks/"+strconv.FormatInt(uid, 10)); err != nil {
		return Task{}, err
	}
	return task, nil
}

// WaitForTask polls the task at a fixed interval until it reaches a terminal
// state. The wait is bounded by ctx and by the client's task timeout.
func (c *Client) WaitForTask(ctx context.Context, uid int64) (Task, error) {
	if c.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.taskTimeout)
		defer cancel()
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return Task{}, fmt.Errorf("searchindex: wait task %d: %w", uid, ctx.Err())
		case <-timer.C:
		}

		task, err := c.GetTask(ctx, uid)
		if err != nil {
			if ctx.Err() != nil {
				return Task{}, fmt.Errorf("searchindex: wait task %d: %w", uid, ctx.Err())
			}
			return Task{}, err
		}
		switch {
		case task.Status == TaskSucceeded:
			return task, nil
		case task.Status == TaskFailed || task.Status == TaskCanceled:
			return task, &TaskFailedError{UID: uid, Status: task.Status, Err: task.Error}
		}
		timer.Reset(c.pollInterval)
	}
}
