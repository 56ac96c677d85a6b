package app

import (
	"log/slog"

	"github.com/webitel/datum-exporter/registry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// serviceRegistration holds information for initializing and registering a gRPC service.
type serviceRegistration struct {
	init     func(*App) (any, error)                    // Initialization function for *App
	register func(grpcServer *grpc.Server, service any) // Registration function for gRPC server
	name     string                                     // Service name for logging
}

// RegisterServices initializes and registers all necessary gRPC services.
func RegisterServices(grpcServer *grpc.Server, appInstance *App) {
	services := []serviceRegistration{
		{
			init: func(a *App) (any, error) { return newHealthServer(a), nil },
			register: func(s *grpc.Server, svc any) {
				healthpb.RegisterHealthServer(s, svc.(healthpb.HealthServer))
			},
			name: "Health",
		},
	}

	// Initialize and register each service
	for _, service := range services {
		svc, err := service.init(appInstance)
		if err != nil {
			slog.Error("datum_exporter.app.service_init_error", slog.String("service", service.name), slog.String("error", err.Error()))
			continue
		}
		service.register(grpcServer, svc)
		slog.Info("datum_exporter.app.service_registered", slog.String("service", service.name))
	}
}

// newHealthServer reports SERVING for the process and the export service name until Stop.
func newHealthServer(a *App) *health.Server {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(registry.ServiceName, healthpb.HealthCheckResponse_SERVING)
	a.health = h
	return h
}
