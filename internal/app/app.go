package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	cfg "github.com/webitel/datum-exporter/config"
	"github.com/webitel/datum-exporter/internal/auth"
	cache "github.com/webitel/datum-exporter/internal/cache/redis"
	"github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/internal/export"
	"github.com/webitel/datum-exporter/internal/server"
	"github.com/webitel/datum-exporter/internal/service"
	"github.com/webitel/datum-exporter/internal/service/destination"
	"github.com/webitel/datum-exporter/internal/service/output"
	"github.com/webitel/datum-exporter/internal/store"
	"github.com/webitel/datum-exporter/internal/store/postgres"
	"google.golang.org/grpc/health"
)

const stopTimeout = 30 * time.Second

type App struct {
	Config   *cfg.AppConfig
	log      *slog.Logger
	exitCh   chan error
	shutdown func(ctx context.Context) error
	Store    store.Store
	Cache    *cache.RedisCache
	Engine   *export.Engine
	server   *server.Server
	health   *health.Server

	outputs      *service.Registry[service.OutputFormatService]
	destinations *service.Registry[service.DestinationService]
	producer     sarama.SyncProducer
}

// New creates a fully initialized App.
func New(config *cfg.AppConfig, shutdown func(ctx context.Context) error) (*App, error) {
	app := &App{
		Config:   config,
		log:      slog.Default(),
		shutdown: shutdown,
		exitCh:   make(chan error),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initRedis(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		return nil, err
	}
	if err := app.initEngine(); err != nil {
		return nil, err
	}
	if err := app.initServer(); err != nil {
		return nil, err
	}

	// --------- Service Registration (GRPC) ---------
	RegisterServices(app.server.Server, app)

	return app, nil
}

// --------- Private init methods ---------

func (app *App) initStore() error {
	if app.Config.Database == nil {
		return errors.New("database config is nil")
	}
	app.Store = postgres.New(app.Config.Database)
	return nil
}

func (app *App) initRedis() error {
	redisCache, err := cache.NewRedisCache(app.Config.Redis.Addr, app.Config.Redis.Password, app.Config.Redis.DB)
	if err != nil {
		return errors.New("unable to initialize Redis", errors.WithCause(err))
	}
	app.Cache = redisCache
	return nil
}

// initServices registers the output formats and destinations available to export configurations.
func (app *App) initServices() error {
	tempDir := app.Config.Export.TempDir
	app.outputs = service.NewRegistry[service.OutputFormatService](
		output.NewCSVService(tempDir, app.log),
		output.NewJSONService(tempDir, app.log),
		output.NewPDFService(app.log),
	)

	destinations := []service.DestinationService{
		destination.NewNullService(),
		destination.NewRedisService(app.Cache.Client(), app.log),
	}
	if app.Config.Local != nil && app.Config.Local.Dir != "" {
		destinations = append(destinations, destination.NewLocalDirService(app.Config.Local.Dir, app.log))
	}
	if app.Config.Kafka.Enabled() {
		producer, err := destination.NewSyncProducer(destination.KafkaConfig{
			Brokers:  app.Config.Kafka.Brokers,
			ClientID: app.Config.Kafka.ClientID,
		})
		if err != nil {
			return errors.New("unable to create kafka producer", errors.WithID("app.init.kafka"), errors.WithCause(err))
		}
		app.producer = producer
		destinations = append(destinations, destination.NewKafkaService(producer, app.Config.Kafka.Topic, app.log))
	}
	app.destinations = service.NewRegistry(destinations...)

	app.log.Info("datum_exporter.app.services_registered",
		slog.Any("outputs", app.outputs.IDs()), slog.Any("destinations", app.destinations.IDs()))
	return nil
}

func (app *App) initEngine() error {
	tr, err := translations()
	if err != nil {
		app.log.Warn("datum_exporter.app.translations_unavailable", slog.String("error", err.Error()))
	}

	exp := app.Config.Export
	engine, err := export.NewEngine(export.Options{
		Tasks:            app.Store.Tasks(),
		Datum:            auth.NewDatumStore(app.Store.Datum(), tr),
		Transactor:       app.Store.Transactor(),
		Outputs:          app.outputs,
		Destinations:     app.destinations,
		Publisher:        app.Cache,
		Workers:          exp.Workers,
		PurgeInterval:    exp.PurgeInterval,
		MinRetention:     exp.MinRetention,
		TaskRetention:    exp.TaskRetention,
		ProgressInterval: exp.ProgressInterval,
		Location:         exp.Location(),
		Logger:           app.log,
	})
	if err != nil {
		return errors.New("failed to init export engine", errors.WithCause(err))
	}
	app.Engine = engine
	return nil
}

func (app *App) initServer() error {
	srv, err := server.BuildServer(app.Config.Consul, app.exitCh)
	if err != nil {
		return errors.New("failed to build server", errors.WithCause(err))
	}
	app.server = srv
	return nil
}

// Start runs DB, gRPC server and the export engine
func (app *App) Start() error {
	if err := app.Store.Open(); err != nil {
		return errors.New("failed to open store", errors.WithCause(err))
	}
	if err := app.Engine.Init(); err != nil {
		return errors.New("failed to start export engine", errors.WithCause(err))
	}

	go app.server.Start()

	return <-app.exitCh
}

// Stop gracefully shuts down all services
func (app *App) Stop() error {
	app.log.Info("datum_exporter.main.stop_starting")

	if app.health != nil {
		app.health.Shutdown()
	}
	if app.server != nil {
		app.server.Stop()
		app.log.Info("datum_exporter.main.server_stopped")
	}

	if app.Engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := app.Engine.Shutdown(ctx); err != nil {
			app.log.Error("datum_exporter.main.engine_shutdown_error", slog.String("error", err.Error()))
		}
		cancel()
	}

	if app.producer != nil {
		if err := app.producer.Close(); err != nil {
			app.log.Error("datum_exporter.main.kafka_close_error", slog.String("error", err.Error()))
		}
	}
	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			app.log.Error("datum_exporter.main.redis_close_error", slog.String("error", err.Error()))
		}
	}
	if app.Store != nil {
		_ = app.Store.Close()
	}

	if app.shutdown != nil {
		if err := app.shutdown(context.Background()); err != nil {
			app.log.Error("datum_exporter.main.shutdown_hook_error", slog.String("error", err.Error()))
		}
	}

	app.log.Info("datum_exporter.main.stop_complete")
	return nil
}
