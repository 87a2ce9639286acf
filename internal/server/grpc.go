package server

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ReadinessChecker reports whether the process can serve traffic.
type ReadinessChecker interface {
	Ready(ctx context.Context) bool
}

// HealthServer is a gRPC server exposing grpc.health.v1, whose overall status follows a ReadinessChecker.
type HealthServer struct {
	*grpc.Server
	health  *health.Server
	checker ReadinessChecker
}

// NewHealthServer registers the standard health service on a new instrumented gRPC server.
// The status starts at NOT_SERVING until the first readiness update.
func NewHealthServer(checker ReadinessChecker, opts ...grpc.ServerOption) *HealthServer {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, h)
	return &HealthServer{Server: s, health: h, checker: checker}
}

// UpdateReadiness runs the readiness checks once and publishes the result.
func (s *HealthServer) UpdateReadiness(ctx context.Context) bool {
	ready := s.checker.Ready(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if !ready {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	return ready
}

// WatchReadiness updates the status every interval until ctx is done, then marks the server
// as shutting down.
func (s *HealthServer) WatchReadiness(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	prev := s.UpdateReadiness(ctx)
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			if ready := s.UpdateReadiness(ctx); ready != prev {
				slog.InfoContext(ctx, "grpc: readiness changed", "ready", ready)
				prev = ready
			}
		}
	}
}
