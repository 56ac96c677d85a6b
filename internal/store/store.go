package store

import (
	"context"
	"time"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
)

type Store interface {
	Tasks() TaskStore
	Datum() DatumStore
	Transactor() Transactor

	// ------------ Database Management ------------ //
	Open() error  // Return custom DB error
	Close() error // Return custom DB error
}

// TaskStore persists export job records.
type TaskStore interface {
	// Store inserts or replaces the record with the same ID.
	Store(ctx context.Context, info *export.TaskInfo) error
	// Get returns nil when no record exists.
	Get(ctx context.Context, jobID string) (*export.TaskInfo, error)
	// DeleteCompleted removes completed records finished before the given time.
	DeleteCompleted(ctx context.Context, before time.Time) (int64, error)
}

// HandleResult tells the store whether to keep streaming.
type HandleResult int

const (
	Continue HandleResult = iota
	Stop
)

// DatumHandler receives the records of a bulk export.
type DatumHandler interface {
	// DidBegin is called once before the first record. A nil estimate means the total is unknown.
	DidBegin(estimatedCount *int64)
	Handle(ctx context.Context, d *export.Datum) (HandleResult, error)
}

type BulkExportOptions struct {
	Filter *export.DatumFilter
}

type BulkExportResult struct {
	Processed int64
}

// DatumStore streams time-series records.
type DatumStore interface {
	BulkExport(ctx context.Context, handler DatumHandler, opts BulkExportOptions) (*BulkExportResult, error)
}

// Transactor runs fn inside a unit of work that is committed when fn returns nil
// and rolled back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
