package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	l := newMemoryLimiter(time.Minute, 0, nil)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		allowed, _, err := l.Hit(ctx, "k", 60)
		if err != nil {
			t.Fatal(err)
		}
		if !allowed {
			t.Fatalf("request %d denied under the limit", i+1)
		}
	}
	allowed, retryAfter, err := l.Hit(ctx, "k", 60)
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Fatal("61st request allowed")
	}
	if retryAfter <= 0 || retryAfter > 61 {
		t.Fatalf("implausible retryAfter %d", retryAfter)
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := newMemoryLimiter(time.Minute, 0, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if allowed, _, _ := l.Hit(ctx, "a", 5); !allowed {
			t.Fatal("key a throttled early")
		}
	}
	if allowed, _, _ := l.Hit(ctx, "a", 5); allowed {
		t.Fatal("key a over limit not throttled")
	}
	if allowed, _, _ := l.Hit(ctx, "b", 5); !allowed {
		t.Fatal("key b throttled by key a's window")
	}
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	l := newMemoryLimiter(20*time.Millisecond, 0, nil)
	ctx := context.Background()
	if allowed, _, _ := l.Hit(ctx, "k", 1); !allowed {
		t.Fatal("first request denied")
	}
	if allowed, _, _ := l.Hit(ctx, "k", 1); allowed {
		t.Fatal("second request allowed inside window")
	}
	time.Sleep(30 * time.Millisecond)
	if allowed, _, _ := l.Hit(ctx, "k", 1); !allowed {
		t.Fatal("request denied after window reset")
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	e := echo.New()
	logger := log.New(io.Discard, "", 0)
	l := newMemoryLimiter(time.Minute, 0, nil)
	mw := RateLimitMiddleware(l, "global", 2, nil, logger)
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	var lastRec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/signals", nil)
		req.RemoteAddr = "203.0.113.9:4242"
		lastRec = httptest.NewRecorder()
		if err := mw(next)(e.NewContext(req, lastRec)); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if lastRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", lastRec.Code)
	}
	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	if err := json.Unmarshal(lastRec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "Too Many Requests" {
		t.Fatalf("unexpected error field: %q", body.Error)
	}
	if body.RetryAfter <= 0 {
		t.Fatalf("expected positive retryAfter, got %d", body.RetryAfter)
	}
}

func TestRateLimitMiddlewareZeroMaxDisabled(t *testing.T) {
	e := echo.New()
	logger := log.New(io.Discard, "", 0)
	l := newMemoryLimiter(time.Minute, 0, nil)
	mw := RateLimitMiddleware(l, "global", 0, nil, logger)
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		if err := mw(next)(e.NewContext(req, rec)); err != nil {
			t.Fatal(err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d throttled with limiter disabled", i+1)
		}
	}
}
