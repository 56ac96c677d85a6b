// Package export runs datum export jobs in the background and tracks their status.
package export

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/datum-exporter/internal/auth"
	domain "github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/internal/service"
	"github.com/webitel/datum-exporter/internal/store"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
)

// EventPublisher receives job status changes.
type EventPublisher interface {
	PostEvent(ctx context.Context, ev *domain.JobStatusChanged) error
}

type Options struct {
	Tasks      store.TaskStore
	Datum      store.DatumStore
	Transactor store.Transactor

	Outputs      *service.Registry[service.OutputFormatService]
	Destinations *service.Registry[service.DestinationService]
	Publisher    EventPublisher
	Registry     *TaskRegistry

	Workers          int
	PurgeInterval    time.Duration
	MinRetention     time.Duration
	TaskRetention    time.Duration
	ProgressInterval time.Duration
	Location         *time.Location

	Clock  func() time.Time
	Logger *slog.Logger
}

// Engine accepts export requests and answers status lookups.
type Engine struct {
	tasks        store.TaskStore
	datum        store.DatumStore
	tx           store.Transactor
	outputs      *service.Registry[service.OutputFormatService]
	destinations *service.Registry[service.DestinationService]
	publisher    EventPublisher
	registry     *TaskRegistry
	executor     *Executor
	purger       *Purger

	progressInterval time.Duration
	location         *time.Location
	now              func() time.Time
	log              *slog.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc
	initOnce   sync.Once
	// submitMu orders submissions against Shutdown
	submitMu sync.Mutex
	closed   bool
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Tasks == nil || opts.Datum == nil {
		return nil, errors.InvalidArgument("task and datum stores are required", errors.WithID("export.engine.new"))
	}
	if opts.Registry == nil {
		opts.Registry = NewTaskRegistry()
	}
	if opts.PurgeInterval <= 0 {
		opts.PurgeInterval = DefaultPurgeInterval
	}
	if opts.MinRetention <= 0 {
		opts.MinRetention = DefaultMinRetention
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		tasks:            opts.Tasks,
		datum:            opts.Datum,
		tx:               opts.Transactor,
		outputs:          opts.Outputs,
		destinations:     opts.Destinations,
		publisher:        opts.Publisher,
		registry:         opts.Registry,
		executor:         NewExecutor(opts.Workers),
		progressInterval: opts.ProgressInterval,
		location:         opts.Location,
		now:              opts.Clock,
		log:              opts.Logger,
		baseCtx:          ctx,
		cancelBase:       cancel,
	}
	e.purger = &Purger{
		registry:      e.registry,
		tasks:         e.tasks,
		interval:      opts.PurgeInterval,
		minRetention:  opts.MinRetention,
		taskRetention: opts.TaskRetention,
		now:           e.now,
		log:           e.log,
	}
	if ev, ok := opts.Publisher.(StatusEvicter); ok {
		e.purger.statuses = ev
	}
	return e, nil
}

// Init starts the periodic purge.
func (e *Engine) Init() error {
	var err error
	e.initOnce.Do(func() { err = e.purger.Start() })
	return err
}

// Shutdown stops the purger and waits for running jobs until ctx ends.
// Jobs still running then are cancelled.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.submitMu.Lock()
	e.closed = true
	e.submitMu.Unlock()

	e.purger.Stop()
	if e.executor.WaitAll(ctx) {
		e.cancelBase()
		return nil
	}
	e.cancelBase()
	e.log.WarnContext(ctx, "datum_exporter.export.shutdown_timeout", slog.Int("jobs", e.registry.Len()))
	return ctx.Err()
}

// PerformExport submits a job and returns its handle without waiting for it.
// Submitting an ID that is already registered returns the existing handle.
func (e *Engine) PerformExport(ctx context.Context, req *domain.ExportRequest) (*JobHandle, error) {
	if req == nil {
		return nil, errors.InvalidArgument("export request is required", errors.WithID("export.request.nil"))
	}
	if req.Config == nil {
		return nil, errors.InvalidArgument("export configuration is required", errors.WithID("export.request.config_nil"))
	}
	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	if e.closed {
		return nil, errors.New("export engine is shut down", errors.WithID("export.engine.closed"), errors.WithCode(codes.Unavailable))
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	if h, ok := e.registry.Get(id); ok {
		return h, nil
	}

	cfg := req.Config.Clone()
	now := e.now()
	info := &domain.TaskInfo{
		ID:          id,
		Config:      cfg,
		ExportDate:  e.exportDate(req, cfg, now),
		RequesterID: req.RequesterID,
		Status:      domain.TaskStatusClaimed,
		Created:     now,
	}

	log := e.log.With(slog.String("job_id", id))
	jobCtx, cancel := context.WithCancel(auth.WithPolicy(e.baseCtx, req.Policy))
	w := &worker{
		id:     id,
		engine: e,
		log:    log,
		ctx:    jobCtx,
		cancel: cancel,
		info:   info,
		done:   make(chan struct{}),
	}
	if e.progressInterval > 0 {
		w.throttle = &rate.Sometimes{Interval: e.progressInterval}
	}

	h, loaded := e.registry.PutIfAbsent(id, &JobHandle{w: w})
	if loaded {
		cancel()
		return h, nil
	}

	if err := e.persist(ctx, info.Clone()); err != nil {
		log.WarnContext(ctx, "datum_exporter.export.claim_store_failed", slog.String("error", err.Error()))
	}
	e.executor.Submit(jobCtx, w.run)
	log.InfoContext(ctx, "datum_exporter.export.job_submitted",
		slog.String("schedule", cfg.Schedule.String()), slog.Time("export_date", info.ExportDate))
	return h, nil
}

// exportDate defaults to the last complete period for periodic schedules.
func (e *Engine) exportDate(req *domain.ExportRequest, cfg *domain.Configuration, now time.Time) time.Time {
	if !req.ExportDate.IsZero() {
		return req.ExportDate
	}
	if cfg.Schedule.IsPeriodic() {
		loc, err := cfg.Location(e.location)
		if err == nil {
			if d, err := cfg.Schedule.ExportDate(now, loc, cfg.HourDelayOffset); err == nil {
				return d
			}
		}
	}
	return now
}

// StatusForJob returns the handle of a registered job. Unknown and purged jobs are absent.
func (e *Engine) StatusForJob(id string) (*JobHandle, bool) {
	return e.registry.Get(id)
}

// LoadStatus reads the durable record of a job, nil when it does not exist.
func (e *Engine) LoadStatus(ctx context.Context, id string) (*domain.TaskInfo, error) {
	return e.tasks.Get(ctx, id)
}

// Purge runs one purge sweep immediately.
func (e *Engine) Purge(ctx context.Context) int {
	return e.purger.Purge(ctx)
}

func (e *Engine) persist(ctx context.Context, info *domain.TaskInfo) error {
	if e.tx == nil {
		return e.tasks.Store(ctx, info)
	}
	return e.tx.WithinTx(ctx, func(ctx context.Context) error {
		return e.tasks.Store(ctx, info)
	})
}
