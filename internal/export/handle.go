package export

import (
	"context"
	"time"

	domain "github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/errors"
	"google.golang.org/grpc/codes"
)

// ErrJobCancelled is returned by JobHandle.Result for a cancelled job.
var ErrJobCancelled = errors.New("export job cancelled", errors.WithID("export.job.cancelled"), errors.WithCode(codes.Canceled))

// UnknownProgress is reported while the total amount of work is not known.
const UnknownProgress = -1.0

// Snapshot is a point in time copy of a job's status.
type Snapshot struct {
	JobID           string
	State           domain.TaskStatus
	PercentComplete float64
	Success         *bool
	Message         string
	Completed       *time.Time
}

// JobHandle is the caller's view of a submitted job. It never exposes the job's mutable state.
type JobHandle struct {
	w *worker
}

func (h *JobHandle) ID() string { return h.w.id }

func (h *JobHandle) Snapshot() Snapshot { return h.w.snapshot() }

// Done is closed once the result is available or the job was cancelled.
func (h *JobHandle) Done() <-chan struct{} { return h.w.done }

func (h *JobHandle) IsDone() bool {
	select {
	case <-h.w.done:
		return true
	default:
		return false
	}
}

// Result blocks until the job resolves or ctx ends. Business failures come back as a
// result with Success false, never as an error. The error is ErrJobCancelled after
// Cancel, or the ctx error when waiting was abandoned.
func (h *JobHandle) Result(ctx context.Context) (*domain.ExportResult, error) {
	select {
	case <-h.w.done:
		return h.w.result, h.w.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel resolves the handle with ErrJobCancelled and signals the job to stop.
// A running job stops at the next point its store or services check the context.
// It returns false if the job had already resolved.
func (h *JobHandle) Cancel() bool {
	resolved := h.w.resolve(nil, ErrJobCancelled)
	h.w.cancel()
	return resolved
}
