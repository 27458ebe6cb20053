// Package grpcapi exposes the standard gRPC health service, driven by the
// same readiness probe as the HTTP /readyz endpoint.
package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"authcore.org/internal/obs"
)

// ServiceName is the health entry reported next to the overall status.
const ServiceName = "authcore"

// ReadyProbe reports whether backing services are reachable.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// Health keeps the gRPC health status in line with a readiness probe.
type Health struct {
	srv     *health.Server
	probe   ReadyProbe
	timeout time.Duration
}

// NewHealth starts in NOT_SERVING until the first Check.
func NewHealth(probe ReadyProbe) *Health {
	h := &Health{srv: health.NewServer(), probe: probe, timeout: 2 * time.Second}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Check pings the probe once and publishes the result.
func (h *Health) Check(ctx context.Context) error {
	var err error
	if h.probe != nil {
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		err = h.probe.Ping(ctx)
		cancel()
	}
	if err != nil {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		obs.Log("warn", "readiness_failed", map[string]any{"error": err.Error()})
		return err
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run checks every interval until ctx is done, then marks every service
// as NOT_SERVING.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	_ = h.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			_ = h.Check(ctx)
		}
	}
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
}

// NewServer builds a gRPC server carrying the health and reflection
// services.
func NewServer(h *Health, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(logUnary)}, opts...)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.srv)
	reflection.Register(s)
	return s
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := map[string]any{
		"method":      info.FullMethod,
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
	}
	level := "info"
	if err != nil {
		level = "error"
		fields["error"] = err.Error()
	}
	obs.Log(level, "grpc_request", fields)
	return resp, err
}
