package grpc

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wekeepgrowing/academy-payments/internal/config"
	"github.com/wekeepgrowing/academy-payments/pkg/logger"
)

// Server exposes the standard gRPC health service so orchestrators can check
// the payment service.
type Server struct {
	config   *config.Config
	logger   *zap.Logger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(logger.NewGrpcUnaryServerInterceptor(log)),
		grpc.ChainStreamInterceptor(logger.NewGrpcStreamServerInterceptor(log)),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(cfg.Service.Name, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		config: cfg,
		logger: log,
		server: s,
		health: hs,
	}
}

func (s *Server) Start() error {
	addr := s.config.Server.GRPC.Address()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.listener = listener
	s.logger.Info("Starting gRPC server", zap.String("address", listener.Addr().String()))
	return s.server.Serve(listener)
}

// Shutdown marks every service NOT_SERVING before draining connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}
