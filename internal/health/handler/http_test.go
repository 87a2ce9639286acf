package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type okPolicy struct{}

func (okPolicy) HealthCheck(context.Context) error { return nil }

func ok(context.Context) error { return nil }

func TestReadiness_AllHealthy(t *testing.T) {
	c := NewChecker(map[string]Pinger{"store": PingFunc(ok), "cache": PingFunc(ok), "skipped": nil}).WithPolicy(okPolicy{})
	rec := httptest.NewRecorder()
	c.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"store":"ok","cache":"ok","policy":"ok"}}`, rec.Body.String())
}

func TestReadiness_FailingDependency(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("dial tcp 10.0.0.5:5432: refused") })
	c := NewChecker(map[string]Pinger{"store": down, "cache": PingFunc(ok)})
	rec := httptest.NewRecorder()
	c.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"store":"error","cache":"ok"}}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.False(t, c.Ready(context.Background()))
}

func TestLiveness(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("down") })
	rec := httptest.NewRecorder()
	NewChecker(map[string]Pinger{"store": down}).Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
