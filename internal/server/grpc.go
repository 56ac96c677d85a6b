package server

import (
	"log/slog"
	"net"

	conf "github.com/webitel/datum-exporter/config"
	"github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/internal/server/interceptor"
	"github.com/webitel/datum-exporter/registry"
	"github.com/webitel/datum-exporter/registry/consul"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

type Server struct {
	Server   *grpc.Server
	listener net.Listener
	config   *conf.ConsulConfig
	exitChan chan error
	registry registry.ServiceRegistrator
}

// BuildServer constructs and configures a new gRPC server with interceptors.
func BuildServer(config *conf.ConsulConfig, exitChan chan error) (*Server, error) {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.OuterInterceptor(),
		),
	)

	// Open a TCP listener on the configured address
	listener, err := net.Listen("tcp", config.PublicAddress)
	if err != nil {
		return nil, errors.Internal(
			err.Error(),
			errors.WithID("server.build.listen.error"),
		)
	}

	// Initialize Consul service registry
	reg, err := consul.NewConsulRegistry(config)
	if err != nil {
		_ = listener.Close()
		return nil, errors.Internal(
			err.Error(),
			errors.WithID("server.build.consul_registry.error"),
		)
	}

	// Register gRPC reflection for debugging
	reflection.Register(s)

	return &Server{
		Server:   s,
		listener: listener,
		exitChan: exitChan,
		config:   config,
		registry: reg,
	}, nil
}

// Start registers and starts the gRPC server
func (s *Server) Start() {
	if err := s.registry.Register(); err != nil {
		s.exitChan <- err
		return
	}
	if err := s.Server.Serve(s.listener); err != nil {
		s.exitChan <- errors.Internal(
			err.Error(),
			errors.WithID("server.start.serve.error"),
		)
	}
}

// Stop deregisters the service and gracefully stops the gRPC server
func (s *Server) Stop() {
	if err := s.registry.Deregister(); err != nil {
		slog.Warn("datum_exporter.server.deregister_error", slog.String("error", errors.Details(err)))
	}
	s.Server.GracefulStop()
}
