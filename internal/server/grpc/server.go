// Package grpc runs the gRPC endpoint that reports service health to
// orchestrators and load balancers.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/scribe/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "scribe.API"

const defaultProbeInterval = 15 * time.Second

// Pinger reports metadata store liveness; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type GRPCServer struct {
	address       string
	logger        logging.Logger
	db            Pinger
	health        *health.Server
	probeInterval time.Duration
}

func NewGRPCServer(a string, l logging.Logger, db Pinger) *GRPCServer {
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		db:            db,
		health:        health.NewServer(),
		probeInterval: defaultProbeInterval,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.probe(ctx)
	go s.probeLoop(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	return srv.Serve(lis)
}

func (s *GRPCServer) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

// probe maps a database ping onto the serving status of both the overall
// server and ServiceName.
func (s *GRPCServer) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.PingContext(pingCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn(ctx, "database ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
