// Package handler serves liveness and readiness probes over HTTP and reports readiness to
// the gRPC health service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"pikacloud/backend/internal/server/respond"
)

const checkTimeout = 2 * time.Second

// Pinger is a dependency whose reachability gates readiness (store, cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker verifies the policy engine can evaluate.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker runs named readiness checks.
type Checker struct {
	checks map[string]Pinger
}

// NewChecker returns a checker. Nil entries are skipped.
func NewChecker(checks map[string]Pinger) *Checker {
	c := &Checker{checks: make(map[string]Pinger, len(checks))}
	for name, p := range checks {
		if p != nil {
			c.checks[name] = p
		}
	}
	return c
}

// WithPolicy adds the policy engine as a readiness check.
func (c *Checker) WithPolicy(p PolicyChecker) *Checker {
	if p != nil {
		c.checks["policy"] = PingFunc(p.HealthCheck)
	}
	return c
}

// Check runs every check concurrently, each under its own timeout. The map holds nil for
// passing checks.
func (c *Checker) Check(ctx context.Context) map[string]error {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]error, len(c.checks))
	)
	for name, p := range c.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := p.Ping(cctx)
			mu.Lock()
			out[name] = err
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// Ready reports whether every check passes.
func (c *Checker) Ready(ctx context.Context) bool {
	for _, err := range c.Check(ctx) {
		if err != nil {
			return false
		}
	}
	return true
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Liveness handles GET /healthz. It never touches dependencies.
func (c *Checker) Liveness(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness handles GET /readyz: 200 when all checks pass, else 503. Failure causes are
// logged, not returned.
func (c *Checker) Readiness(w http.ResponseWriter, r *http.Request) {
	results := c.Check(r.Context())
	resp := readinessResponse{Status: "ok", Checks: make(map[string]string, len(results))}
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := results[name]; err != nil {
			slog.WarnContext(r.Context(), "health: check failed", "check", name, "error", err)
			resp.Status = "unavailable"
			resp.Checks[name] = "error"
			continue
		}
		resp.Checks[name] = "ok"
	}
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respond.JSON(w, status, resp)
}
