package cache

import (
	"context"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
)

// Cache holds the latest status snapshot of each export job for fast polling
// by other service instances.
type Cache interface {
	// PostEvent stores the snapshot and notifies subscribers.
	PostEvent(ctx context.Context, ev *export.JobStatusChanged) error
	// GetJobStatus returns nil when no snapshot is cached.
	GetJobStatus(ctx context.Context, jobID string) (*export.JobStatusChanged, error)
	DeleteJobStatus(ctx context.Context, jobID string) error
	Close() error
}
