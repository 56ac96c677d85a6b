package postgres

import (
	"context"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	conf "github.com/webitel/datum-exporter/config"
	"github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/internal/store"
	otelpgx "github.com/webitel/webitel-go-kit/infra/otel/instrumentation/pgx"
)

const schema = "datum_exporter"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store is the struct implementing the Store interface.
type Store struct {
	taskStore  store.TaskStore
	datumStore store.DatumStore
	config     *conf.DatabaseConfig
	conn       *pgxpool.Pool
}

// New creates a new Store instance.
func New(config *conf.DatabaseConfig) *Store {
	return &Store{config: config}
}

func (s *Store) Tasks() store.TaskStore {
	if s.taskStore == nil {
		s.taskStore = &TaskStore{storage: s}
	}
	return s.taskStore
}

func (s *Store) Datum() store.DatumStore {
	if s.datumStore == nil {
		s.datumStore = &DatumStore{storage: s}
	}
	return s.datumStore
}

func (s *Store) Transactor() store.Transactor {
	return &Transactor{storage: s}
}

// Database returns the database connection or a custom error if it is not opened.
func (s *Store) Database() (*pgxpool.Pool, error) { // Return custom DB error
	if s.conn == nil {
		return nil, errors.New("database connection is not opened")
	}
	return s.conn, nil
}

// querier returns the transaction bound to ctx, or the pool.
func (s *Store) querier(ctx context.Context) (Querier, error) {
	if tx, ok := txFromContext(ctx); ok {
		return tx, nil
	}
	return s.Database()
}

// Open establishes a connection to the database and returns a custom error if it fails.
func (s *Store) Open() error {
	config, err := pgxpool.ParseConfig(s.config.Url)
	if err != nil {
		return errors.InvalidArgument("invalid data source", errors.WithID("store.open"), errors.WithCause(err))
	}

	// Attach the OpenTelemetry tracer for pgx
	config.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())

	conn, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return errors.Internal("unable to open store", errors.WithID("store.open"), errors.WithCause(err))
	}
	s.conn = conn
	slog.Debug("datum_exporter.store.connection_opened", slog.String("message", "postgres: connection opened"))
	return nil
}

// Close closes the database connection and returns a custom error if it fails.
func (s *Store) Close() error {
	if s.conn != nil {
		s.conn.Close()
		slog.Debug("datum_exporter.store.connection_closed", slog.String("message", "postgres: connection closed"))
		s.conn = nil
	}
	return nil
}
