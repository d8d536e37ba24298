package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "parish.auth.v1.Auth"

type pinger interface {
	PingContext(ctx context.Context) error
}

// HealthReporter keeps the gRPC health status in line with database reachability.
type HealthReporter struct {
	db     pinger
	server *health.Server
}

func NewHealthReporter(db pinger) *HealthReporter {
	return &HealthReporter{
		db:     db,
		server: health.NewServer(),
	}
}

// Server exposes the underlying health server for registration and tests.
func (h *HealthReporter) Server() healthpb.HealthServer {
	return h.server
}

// Check pings the database once and publishes the result.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.db.PingContext(ctx); err != nil {
		logrus.WithError(err).Warn("Database ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
	return status
}

// Run checks every interval until ctx is done, then marks everything NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	h.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// NewServer builds the gRPC server carrying the health service and request logging.
func NewServer(reporter *HealthReporter) *gogrpc.Server {
	srv := gogrpc.NewServer(
		gogrpc.ChainUnaryInterceptor(RecoveryUnaryInterceptor(), LoggingUnaryInterceptor()),
		gogrpc.ChainStreamInterceptor(LoggingStreamInterceptor()),
	)
	healthpb.RegisterHealthServer(srv, reporter.Server())
	return srv
}
