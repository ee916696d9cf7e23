package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            rate.Limit(1.0 / 60.0),
		Burst:           burst,
		CleanupInterval: time.Hour,
	})
	return rl
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/provider", nil)
	req.RemoteAddr = addr
	req.Header.Set("Accept", "application/json")
	return req
}

// TestRateLimiter_AllowsWithinBurst はバースト内のリクエストが通過することを検証する。
func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(t, 3)
	boundary, _ := newTestBoundary(nil)
	handler := rl.Middleware(boundary)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("192.0.2.1:1234"))
		if rec.Code != http.StatusFound {
			t.Fatalf("request %d: status = %d, want 302", i+1, rec.Code)
		}
	}
}

// TestRateLimiter_RejectsOverLimit は超過時に429とRetry-Afterが返ることを検証する。
func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rl := newTestRateLimiter(t, 2)
	boundary, _ := newTestBoundary(nil)
	handler := rl.Middleware(boundary)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1:1234"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("192.0.2.1:5678"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	body := decodeErrorBody(t, rec)
	if body.Code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", body.Code)
	}
}

// TestRateLimiter_IndependentPerIP はIPごとに独立して制限されることを検証する。
func TestRateLimiter_IndependentPerIP(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	boundary, _ := newTestBoundary(nil)
	handler := rl.Middleware(boundary)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1:1"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("192.0.2.2:1"))
	if rec.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", rec.Code)
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

// TestRateLimiter_SweepsStaleEntries は古いエントリが次のリクエスト時に削除されることを検証する。
func TestRateLimiter_SweepsStaleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, 5)
	now := time.Now()
	rl.limiter("192.0.2.1", now)
	rl.limiter("192.0.2.2", now)

	// 掃除間隔に満たない間は削除しない
	rl.limiter("192.0.2.3", now.Add(30*time.Minute))
	if rl.LimiterCount() != 3 {
		t.Errorf("count = %d, want 3 before the sweep interval", rl.LimiterCount())
	}

	// 2時間超アクセスのないエントリは掃除される
	rl.limiter("192.0.2.3", now.Add(2*time.Hour+time.Minute))
	if rl.LimiterCount() != 1 {
		t.Errorf("count = %d, want only the active entry", rl.LimiterCount())
	}
}

// TestRateLimiter_SweepKeepsBucketState は掃除されなかったエントリの残量が保たれることを検証する。
func TestRateLimiter_SweepKeepsBucketState(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	now := time.Now()

	if !rl.limiter("192.0.2.1", now).Allow() {
		t.Fatal("first request should be allowed")
	}
	if rl.limiter("192.0.2.1", now.Add(time.Hour)).Allow() {
		t.Error("bucket should still be empty after a sweep that kept the entry")
	}
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := RateLimiterConfigPerMinute(30)
	if cfg.Burst != 30 {
		t.Errorf("Burst = %d, want 30", cfg.Burst)
	}
	if cfg.Rate != rate.Limit(0.5) {
		t.Errorf("Rate = %v, want 0.5", cfg.Rate)
	}
	if retryAfterSeconds(cfg.Rate) != 2 {
		t.Errorf("retryAfterSeconds = %d, want 2", retryAfterSeconds(cfg.Rate))
	}

	if RateLimiterConfigPerMinute(0).Burst != 1 {
		t.Error("non-positive rate should be clamped to 1")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := clientIP(req); got != "2001:db8::1" {
		t.Errorf("clientIP = %q, want 2001:db8::1", got)
	}

	req.RemoteAddr = "no-port"
	if got := clientIP(req); got != "no-port" {
		t.Errorf("clientIP = %q, want no-port", got)
	}

	req.RemoteAddr = "192.0.2.1:80"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("clientIP = %q, want 192.0.2.1 (forwarded headers ignored)", got)
	}
}
