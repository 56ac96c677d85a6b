package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	conf "github.com/webitel/datum-exporter/config"
	"github.com/webitel/datum-exporter/internal/app"
	"github.com/webitel/datum-exporter/internal/domain/model"
	logging "github.com/webitel/datum-exporter/internal/otel"
	"go.uber.org/automaxprocs/maxprocs"

	// ------------ logging ------------ //
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	// -------------------- plugin(s) -------------------- //
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/stdout"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/metric/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/metric/stdout"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/trace/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/trace/stdout"
)

func Run() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		slog.Debug("datum_exporter.main.maxprocs", slog.String("message", format), slog.Any("args", args))
	})); err != nil {
		slog.Warn("datum_exporter.main.maxprocs_error", slog.String("error", err.Error()))
	}

	// Load configuration
	config, appErr := conf.LoadConfig()
	if appErr != nil {
		slog.Error("datum_exporter.main.configuration_error", slog.String("error", appErr.Error()))
		os.Exit(1)
	}

	// slog + OTEL logging
	service := resource.NewSchemaless(
		semconv.ServiceName(model.AppServiceName),
		semconv.ServiceVersion(model.CurrentVersion),
		semconv.ServiceInstanceID(config.Consul.Id),
		semconv.ServiceNamespace(model.NamespaceName),
	)
	shutdown, err := logging.Setup(service)
	if err != nil {
		slog.Error("datum_exporter.main.otel_setup_error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the application
	application, appErr := app.New(config, shutdown)
	if appErr != nil {
		slog.Error("datum_exporter.main.application_initialization_error", slog.String("error", appErr.Error()))
		os.Exit(1)
	}

	// Initialize signal handling for graceful shutdown
	initSignals(application)

	slog.Debug("datum_exporter.main.configuration_loaded",
		slog.String("consul", config.Consul.Address),
		slog.String("grpc_address", config.Consul.PublicAddress),
		slog.String("consul_id", config.Consul.Id),
		slog.Int("workers", config.Export.Workers),
	)

	// Start the application
	slog.Info("datum_exporter.main.starting_application")
	if startErr := application.Start(); startErr != nil {
		slog.Error("datum_exporter.main.application_start_error", slog.String("error", startErr.Error()))
		_ = application.Stop()
		os.Exit(1)
	}
}

func initSignals(application *app.App) {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s := <-sigch
		_ = application.Stop()
		slog.Info("datum_exporter.main.received_kill_signal",
			slog.String("signal", s.String()),
			slog.String("status", "service gracefully stopped"),
		)
		os.Exit(0)
	}()
}
