package service

import (
	"context"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
)

// ProgressListener receives the fraction of a phase completed since the previous call.
type ProgressListener func(increment float64)

// Identified is implemented by services looked up by configuration identifier.
type Identified interface {
	ID() string
}

// ExportContext encodes a stream of datum into resources.
// Close must be called on every exit path, after Finish too.
type ExportContext interface {
	// Start is called once before any record. A nil estimate means the total is unknown.
	Start(ctx context.Context, estimatedCount *int64) error
	AppendRecords(ctx context.Context, records []*export.Datum, progress ProgressListener) error
	// Finish hands over ownership of the produced resources to the caller.
	Finish(ctx context.Context) ([]export.Resource, error)
	Close() error
}

type OutputFormatService interface {
	Identified
	DisplayName() string
	ContentType() string
	Extension() string
	CreateExportContext(ctx context.Context, cfg *export.OutputConfiguration) (ExportContext, error)
}

type DestinationService interface {
	Identified
	DisplayName() string
	Export(
		ctx context.Context,
		cfg *export.DestinationConfiguration,
		resources []export.Resource,
		props RuntimeProperties,
		progress ProgressListener,
	) error
}
