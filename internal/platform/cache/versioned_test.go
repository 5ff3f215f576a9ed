package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type lookupPayload struct {
	Names map[string]string `json:"names"`
}

func newTestVersioned(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "lookup", time.Minute), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newTestVersioned(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return lookupPayload{Names: map[string]string{"c1": "Shoes"}}, nil
	}

	key, err := c.BuildKey(ctx, "categories")
	if err != nil {
		t.Fatalf("build key: %v", err)
	}
	if key != "lookup:categories:1" {
		t.Fatalf("unexpected key %q", key)
	}

	var out lookupPayload
	if err := c.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if out.Names["c1"] != "Shoes" {
		t.Fatalf("expected Shoes got %q", out.Names["c1"])
	}
	if err := c.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("fetch cached: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cached result, loader called %d times", calls)
	}

	if err := c.Bump(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	key, err = c.BuildKey(ctx, "categories")
	if err != nil {
		t.Fatalf("build key: %v", err)
	}
	if key != "lookup:categories:2" {
		t.Fatalf("expected bumped key, got %q", key)
	}
	if err := c.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("fetch after bump: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected reload after bump, loader called %d times", calls)
	}
}

func TestFetchJSONWithoutClientAlwaysLoads(t *testing.T) {
	var c *Versioned
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return lookupPayload{Names: map[string]string{"b1": "Acme"}}, nil
	}
	for i := 0; i < 2; i++ {
		var out lookupPayload
		if err := c.FetchJSON(ctx, "brands", &out, loader); err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if out.Names["b1"] != "Acme" {
			t.Fatalf("unexpected payload %+v", out)
		}
	}
	if calls != 2 {
		t.Fatalf("expected loader per call, got %d", calls)
	}
	if err := c.Bump(ctx); err != nil {
		t.Fatalf("bump on nil cache: %v", err)
	}
}

func TestFetchJSONLoaderErrorNotCached(t *testing.T) {
	c, mr := newTestVersioned(t)
	ctx := context.Background()
	boom := errors.New("boom")

	key, err := c.BuildKey(ctx, "brands")
	if err != nil {
		t.Fatalf("build key: %v", err)
	}
	var out lookupPayload
	err = c.FetchJSON(ctx, key, &out, func(context.Context) (interface{}, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if mr.Exists(key) {
		t.Fatalf("failed load must not be cached")
	}
}

func TestSubscribeReceivesBump(t *testing.T) {
	c, _ := newTestVersioned(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int64, 1)
	if err := c.Subscribe(ctx, func(v int64) { got <- v }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.Bump(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	select {
	case v := <-got:
		if v != 1 {
			t.Fatalf("expected version 1 got %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bump notification not received")
	}
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	if _, err := New(context.Background(), addr); err == nil {
		t.Fatal("expected ping failure against a stopped server")
	}
}
