package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func limited(t *testing.T, r rate.Limit, burst int) (http.Handler, *RateLimiter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rl := NewRateLimiter(ctx, r, burst)
	h := ClientIP(rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	return h, rl
}

func post(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	h, _ := limited(t, rate.Limit(1), 1)

	assert.Equal(t, http.StatusOK, post(h, "10.0.0.1:1000").Code)
	rec := post(h, "10.0.0.1:1001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())
}

func TestRateLimiter_PerClient(t *testing.T) {
	h, _ := limited(t, rate.Limit(1), 1)
	assert.Equal(t, http.StatusOK, post(h, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, post(h, "10.0.0.2:1000").Code)
}

func TestRateLimiter_RetryAfterForSlowRate(t *testing.T) {
	h, _ := limited(t, rate.Limit(0.1), 1)
	post(h, "10.0.0.1:1000")
	assert.Equal(t, "10", post(h, "10.0.0.1:1000").Header().Get("Retry-After"))
}

func TestRateLimiter_SweepForgetsIdleClients(t *testing.T) {
	_, rl := limited(t, rate.Limit(1), 1)
	now := time.Now()
	rl.nowF = func() time.Time { return now }
	rl.get("10.0.0.1")

	now = now.Add(limiterIdleTimeout + time.Second)
	rl.get("10.0.0.2")
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	_, stale := rl.limiters["10.0.0.1"]
	_, fresh := rl.limiters["10.0.0.2"]
	assert.False(t, stale)
	assert.True(t, fresh)
}
