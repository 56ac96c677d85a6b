package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domain "github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/internal/service"
	"github.com/webitel/datum-exporter/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/webitel/datum-exporter/internal/export"

// panicError carries a value recovered from a panicking job.
type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("export job panicked: %v", e.value) }

// worker executes one export job and owns its TaskInfo.
type worker struct {
	id     string
	engine *Engine
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	info     *domain.TaskInfo
	finished bool

	progress  progress
	throttle  *rate.Sometimes
	processed int64

	once   sync.Once
	done   chan struct{}
	result *domain.ExportResult
	err    error
}

// plan is everything resolved from the configuration before any external call.
type plan struct {
	output      service.OutputFormatService
	destination service.DestinationService
	filter      *domain.DatumFilter
	props       service.RuntimeProperties
}

func (w *worker) snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Snapshot{
		JobID:           w.id,
		State:           w.info.Status,
		PercentComplete: w.progress.percent(),
		Message:         w.info.Message,
	}
	if w.info.Success != nil {
		ok := *w.info.Success
		s.Success = &ok
	}
	if w.info.Completed != nil {
		c := *w.info.Completed
		s.Completed = &c
	}
	return s
}

// completedAt reports when the job reached its terminal state.
func (w *worker) completedAt() (time.Time, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.finished || w.info.Status != domain.TaskStatusCompleted || w.info.Completed == nil {
		return time.Time{}, false
	}
	return *w.info.Completed, true
}

// resolve sets the handle outcome once. It returns false if already resolved.
func (w *worker) resolve(result *domain.ExportResult, err error) bool {
	resolved := false
	w.once.Do(func() {
		w.result, w.err = result, err
		close(w.done)
		resolved = true
	})
	return resolved
}

// run is the executor entry point. It never panics and always resolves the handle.
func (w *worker) run() {
	result := w.execute()
	w.mu.Lock()
	w.finished = true
	w.mu.Unlock()
	w.resolve(result, nil)
}

func (w *worker) execute() (result *domain.ExportResult) {
	ctx := w.ctx
	defer func() {
		if r := recover(); r != nil {
			w.log.ErrorContext(ctx, "datum_exporter.export.job_panicked", slog.Any("panic", r))
			result = w.fail(ctx, &panicError{value: r})
		}
		w.ensureCompleted(ctx)
	}()

	w.progress.reset()
	w.update(ctx, func(info *domain.TaskInfo) { info.Status = domain.TaskStatusExecuting })
	w.log.InfoContext(ctx, "datum_exporter.export.job_started")

	if ctx.Err() != nil {
		return w.fail(ctx, ErrJobCancelled)
	}
	p, err := w.prepare()
	if err != nil {
		return w.fail(ctx, err)
	}
	if err = w.exportAndUpload(ctx, p); err != nil {
		return w.fail(ctx, err)
	}
	return w.succeed(ctx)
}

// prepare validates the configuration and resolves services and the time window.
func (w *worker) prepare() (*plan, error) {
	w.mu.RLock()
	cfg, exportDate := w.info.Config, w.info.ExportDate
	w.mu.RUnlock()

	if cfg == nil {
		return nil, errors.NewConfigurationError("export.config.data_missing", "Configuration not provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location(w.engine.location)
	if err != nil {
		return nil, err
	}

	output, ok := w.engine.outputs.Resolve(cfg.Output)
	if !ok {
		return nil, errors.NewConfigurationError("export.config.output_service_unavailable",
			fmt.Sprintf("Output service %q not available", cfg.Output.ServiceIdentifier))
	}
	destination, ok := w.engine.destinations.Resolve(cfg.Destination)
	if !ok {
		return nil, errors.NewConfigurationError("export.config.destination_service_unavailable",
			fmt.Sprintf("Destination service %q not available", cfg.Destination.ServiceIdentifier))
	}

	var filter *domain.DatumFilter
	if cfg.Schedule == domain.ScheduleAdhoc {
		if !cfg.Data.Filter.HasDateRange() {
			return nil, errors.NewConfigurationError("export.config.date_range_missing",
				"Datum filter date range (start and end date) is required for an ADHOC export")
		}
		filter = cfg.Data.Filter.Clone()
	} else {
		end, err := cfg.Schedule.NextBoundary(exportDate, loc)
		if err != nil {
			return nil, err
		}
		filter = cfg.Data.Filter.WithDateRange(exportDate, end)
	}

	return &plan{
		output:      output,
		destination: destination,
		filter:      filter,
		props: service.NewRuntimeProperties(service.RuntimeInput{
			JobID:       w.id,
			Name:        cfg.Name,
			Schedule:    cfg.Schedule,
			ExportDate:  exportDate,
			Location:    loc,
			Output:      output,
			Compression: cfg.Output.CompressionType,
		}),
	}, nil
}

func (w *worker) exportAndUpload(ctx context.Context, p *plan) error {
	resources, err := w.extract(ctx, p)
	defer func() { w.release(ctx, resources) }()
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		w.log.InfoContext(ctx, "datum_exporter.export.nothing_to_upload")
		return nil
	}

	w.progress.beginUpload()
	w.postProgress(ctx)
	return w.trace(ctx, "export.upload", func(ctx context.Context) error {
		return p.destination.Export(ctx, w.config().Destination, resources, p.props, w.onUploadProgress)
	})
}

// extract streams matching datum through an export context and returns the produced resources.
func (w *worker) extract(ctx context.Context, p *plan) ([]domain.Resource, error) {
	var resources []domain.Resource
	err := w.trace(ctx, "export.extract", func(ctx context.Context) error {
		ec, err := p.output.CreateExportContext(ctx, w.config().Output)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := ec.Close(); cerr != nil {
				w.log.WarnContext(ctx, "datum_exporter.export.context_close_failed", slog.String("error", cerr.Error()))
			}
		}()

		h := &datumHandler{w: w, ec: ec, ctx: ctx}
		res, err := w.engine.datum.BulkExport(ctx, h, store.BulkExportOptions{Filter: p.filter})
		if err != nil {
			return err
		}
		if err = h.begin(ctx, nil); err != nil {
			return err
		}
		w.mu.Lock()
		w.processed = res.Processed
		w.mu.Unlock()

		resources, err = ec.Finish(ctx)
		return err
	})
	return resources, err
}

func (w *worker) release(ctx context.Context, resources []domain.Resource) {
	if err := domain.CloseResources(resources); err != nil {
		w.log.WarnContext(ctx, "datum_exporter.export.resource_close_failed", slog.String("error", err.Error()))
	}
}

func (w *worker) onExtractionProgress(increment float64) {
	w.progress.addExtraction(increment)
	w.postProgress(w.ctx)
}

func (w *worker) onUploadProgress(increment float64) {
	w.progress.addUpload(increment)
	w.postProgress(w.ctx)
}

func (w *worker) succeed(ctx context.Context) *domain.ExportResult {
	now := w.engine.now()
	ok := true
	w.progress.complete()
	w.update(ctx, func(info *domain.TaskInfo) {
		info.Status = domain.TaskStatusCompleted
		info.Success = &ok
		info.Message = ""
		info.Completed = &now
	})
	processed := w.processedCount()
	w.log.InfoContext(ctx, "datum_exporter.export.job_completed", slog.Int64("processed", processed))
	return &domain.ExportResult{Success: true, Completed: now, Processed: processed}
}

// fail records err as the job outcome. The message comes from the root cause.
func (w *worker) fail(ctx context.Context, err error) *domain.ExportResult {
	now := w.engine.now()
	ok := false
	msg := errors.FailureMessage(err)
	w.update(ctx, func(info *domain.TaskInfo) {
		info.Status = domain.TaskStatusCompleted
		info.Success = &ok
		info.Message = msg
		info.Completed = &now
	})
	processed := w.processedCount()
	w.log.WarnContext(ctx, "datum_exporter.export.job_failed",
		slog.String("error", errors.Details(err)), slog.String("message", msg))
	return &domain.ExportResult{Success: false, Message: msg, Completed: now, Processed: processed}
}

// ensureCompleted forces the terminal state without touching success or message.
func (w *worker) ensureCompleted(ctx context.Context) {
	w.mu.RLock()
	status := w.info.Status
	w.mu.RUnlock()
	if status == domain.TaskStatusCompleted {
		return
	}
	now := w.engine.now()
	w.update(ctx, func(info *domain.TaskInfo) {
		info.Status = domain.TaskStatusCompleted
		if info.Completed == nil {
			info.Completed = &now
		}
	})
	w.log.WarnContext(ctx, "datum_exporter.export.job_force_completed")
}

// update mutates the TaskInfo, persists it and posts a status event.
// Writes outlive job cancellation so the store still sees the terminal state.
func (w *worker) update(ctx context.Context, fn func(info *domain.TaskInfo)) {
	w.mu.Lock()
	fn(w.info)
	info := w.info.Clone()
	w.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	if err := w.engine.persist(ctx, info); err != nil {
		w.log.ErrorContext(ctx, "datum_exporter.export.status_store_failed",
			slog.String("state", info.Status.String()), slog.String("error", err.Error()))
	}
	w.post(ctx)
}

func (w *worker) postProgress(ctx context.Context) {
	if w.throttle == nil {
		w.post(ctx)
		return
	}
	w.throttle.Do(func() { w.post(ctx) })
}

func (w *worker) post(ctx context.Context) {
	if w.engine.publisher == nil {
		return
	}
	s := w.snapshot()
	ev := &domain.JobStatusChanged{
		JobID:           s.JobID,
		State:           s.State,
		Success:         s.Success,
		Message:         s.Message,
		PercentComplete: s.PercentComplete,
		Completed:       s.Completed,
	}
	if err := w.engine.publisher.PostEvent(context.WithoutCancel(ctx), ev); err != nil {
		w.log.WarnContext(ctx, "datum_exporter.export.event_post_failed", slog.String("error", err.Error()))
	}
}

func (w *worker) config() *domain.Configuration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.info.Config
}

func (w *worker) processedCount() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processed
}

func (w *worker) trace(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attribute.String("job_id", w.id)))
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// datumHandler feeds records from the store into an export context.
type datumHandler struct {
	w       *worker
	ec      service.ExportContext
	ctx     context.Context // context of the enclosing stream call
	started bool
	err     error
}

func (h *datumHandler) DidBegin(estimatedCount *int64) {
	_ = h.begin(h.ctx, estimatedCount)
}

// begin starts the export context once and remembers the outcome.
func (h *datumHandler) begin(ctx context.Context, estimatedCount *int64) error {
	if !h.started {
		h.started = true
		h.w.progress.setKnown(estimatedCount != nil && *estimatedCount > 0)
		h.err = h.ec.Start(ctx, estimatedCount)
	}
	return h.err
}

func (h *datumHandler) Handle(ctx context.Context, d *domain.Datum) (store.HandleResult, error) {
	if err := h.begin(ctx, nil); err != nil {
		return store.Stop, err
	}
	if err := h.ec.AppendRecords(ctx, []*domain.Datum{d}, h.w.onExtractionProgress); err != nil {
		return store.Stop, err
	}
	return store.Continue, nil
}
