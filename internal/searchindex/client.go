// Package searchindex is a small client for the document and task endpoints
// of a Meilisearch-compatible search index.
package searchindex

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Collections kept in the index.
const (
	CollectionProducts   = "products"
	CollectionCategories = "categories"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultTaskTimeout  = 30 * time.Second
)

// Config describes how to reach the index.
type Config struct {
	URL          string
	APIKey       string
	Timeout      time.Duration
	RetryCount   int
	PollInterval time.Duration
	TaskTimeout  time.Duration
	// RateLimit caps outgoing requests per second; zero disables limiting.
	RateLimit float64
}

// Client wraps interactions with the search index API.
type Client struct {
	rc           *resty.Client
	enabled      bool
	pollInterval time.Duration
	taskTimeout  time.Duration
}

// New constructs a client. A client missing URL or API key is disabled and
// every call returns ErrNotConfigured.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "marche-searchsync/1.0")
	if cfg.RetryCount > 0 {
		rc.SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second)
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
		rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	return &Client{
		rc:           rc,
		enabled:      cfg.URL != "" && cfg.APIKey != "",
		pollInterval: cfg.PollInterval,
		taskTimeout:  cfg.TaskTimeout,
	}
}

// Enabled reports whether the client was configured with a URL and key.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.rc.R().SetContext(ctx).ForceContentType("application/json")
}

func (c *Client) check(resp *resty.Response, err error, method, path string) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       resp.String(),
		}
	}
	return nil
}

// Health probes the index and returns nil when it is available.
func (c *Client) Health(ctx context.Context) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	resp, err := c.request(ctx).Get("/health")
	if err := c.check(resp, err, http.MethodGet, "/health"); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Healthy is the boolean form of Health.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.Health(ctx) == nil
}

// AddDocuments adds documents to a collection.
func (c *Client) AddDocuments(ctx context.Context, collection string, docs interface{}) (TaskInfo, error) {
	return c.writeDocuments(ctx, http.MethodPost, collection, docs)
}

// ReplaceDocuments upserts documents by primary key.
func (c *Client) ReplaceDocuments(ctx context.Context, collection string, docs interface{}) (TaskInfo, error) {
	return c.writeDocuments(ctx, http.MethodPut, collection, docs)
}

func (c *Client) writeDocuments(ctx context.Context, method, collection string, docs interface{}) (TaskInfo, error) {
	if !c.Enabled() {
		return TaskInfo{}, ErrNotConfigured
	}
	var info TaskInfo
	resp, err := c.request(ctx).
		SetPathParam("collection", collection).
		SetQueryParam("primaryKey", "id").
		SetHeader("Content-Type", "application/json").
		SetBody(docs).
		SetResult(&info).
		Execute(method, "/indexes/{collection}/documents")
	if err := c.check(resp, err, method, "/indexes/"+collection+"/documents"); err != nil {
		return TaskInfo{}, err
	}
	return info, nil
}

// DeleteDocument removes one document by id.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) (TaskInfo, error) {
	if !c.Enabled() {
		return TaskInfo{}, ErrNotConfigured
	}
	var info TaskInfo
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"collection": collection, "id": id}).
		SetResult(&info).
		Delete("/indexes/{collection}/documents/{id}")
	if err := c.check(resp, err, http.MethodDelete, "/indexes/"+collection+"/documents/"+id); err != nil {
		return TaskInfo{}, err
	}
	return info, nil
}

// DeleteAllDocuments clears a collection.
func (c *Client) DeleteAllDocuments(ctx context.Context, collection string) (TaskInfo, error) {
	if !c.Enabled() {
		return TaskInfo{}, ErrNotConfigured
	}
	var info TaskInfo
	resp, err := c.request(ctx).
		SetPathParam("collection", collection).
		SetResult(&info).
		Delete("/indexes/{collection}/documents")
	if err := c.check(resp, err, http.MethodDelete, "/indexes/"+collection+"/documents"); err != nil {
		return TaskInfo{}, err
	}
	return info, nil
}
