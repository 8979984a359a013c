package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/salonpos/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer returns a gRPC server with tracing, request ids and call logging installed.
func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryRequestID(), UnaryAccessLog(logger)),
	}
	return grpc.NewServer(append(opts, extra...)...)
}

// HealthReporter mirrors the /readyz checks onto the standard gRPC health service so
// orchestrators probing over gRPC see the same answer as HTTP probes.
type HealthReporter struct {
	health   *health.Server
	service  string
	checks   []runtime.ReadyCheck
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthReporter(srv *grpc.Server, service string, logger *slog.Logger, interval time.Duration, checks ...runtime.ReadyCheck) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	h.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{health: h, service: service, checks: checks, interval: interval, logger: logger}
}

// Refresh runs the checks once and publishes the result for both the named service
// and the empty (server-wide) service.
func (h *HealthReporter) Refresh(ctx context.Context) bool {
	status, ok := runtime.RunChecks(ctx, h.checks...)
	serving := healthpb.HealthCheckResponse_SERVING
	if !ok {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("grpc health degraded", "checks", status.Checks)
	}
	h.health.SetServingStatus(h.service, serving)
	h.health.SetServingStatus("", serving)
	return ok
}

func (h *HealthReporter) Run(ctx context.Context) {
	h.Refresh(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Serve listens on addr until ctx is cancelled, then stops gracefully.
func Serve(ctx context.Context, logger *slog.Logger, addr string, srv *grpc.Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	logger.Info("grpc server starting", "addr", addr)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
