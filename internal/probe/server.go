// Package probe exposes the service's readiness over the standard gRPC
// health protocol and provides a client for it.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service name of the dialogue service. The empty
// name reports overall server health and follows it.
const ServiceName = "aicare.Dialogue"

// DefaultInterval is how often Watch re-evaluates readiness.
const DefaultInterval = 5 * time.Second

// Checker reports whether the generation service can take work.
type Checker interface {
	Ready() bool
	Ping(ctx context.Context) error
}

// NewServer creates a gRPC server with keepalive enforcement and a health
// service registered on it. Both start as NOT_SERVING.
func NewServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
		}),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// Serve runs srv on lis until ctx is done, then stops it gracefully.
func Serve(ctx context.Context, srv *grpc.Server, lis net.Listener, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC health server listening", "addr", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	}
}

// Watch updates hs from checker every interval until ctx is done. On return
// every service is marked NOT_SERVING.
func Watch(ctx context.Context, hs *health.Server, checker Checker, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	last := healthpb.HealthCheckResponse_UNKNOWN
	update := func() {
		status := evaluate(ctx, checker, interval)
		if status == last {
			return
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
		logger.Info("Serving status changed", "from", last.String(), "to", status.String())
		last = status
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}

func evaluate(ctx context.Context, checker Checker, timeout time.Duration) healthpb.HealthCheckResponse_ServingStatus {
	if !checker.Ready() {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := checker.Ping(pctx); err != nil {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
