package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProblemContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusBadGateway, "Search Index Error", "503 Service Unavailable")
	if got := rec.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), `"status":502`) {
		t.Fatalf("missing status in %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		ID string `json:"id"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"p1"}`))
	if err := DecodeJSON(req, &v); err != nil || v.ID != "p1" {
		t.Fatalf("decode: %v %+v", err, v)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":"p1"}{"id":"p2"}`))
	if err := DecodeJSON(req, &v); err == nil {
		t.Fatal("expected trailing data to be rejected")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"id":`))
	if err := DecodeJSON(req, &v); err == nil {
		t.Fatal("expected truncated body to fail")
	}
}
