package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/datum-exporter/internal/auth"
	domain "github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/internal/service"
	"github.com/webitel/datum-exporter/internal/service/destination"
	"github.com/webitel/datum-exporter/internal/service/output"
	"github.com/webitel/datum-exporter/internal/store"
	"github.com/webitel/datum-exporter/internal/store/memory"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
)

var exportDay = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu      sync.Mutex
	events  []domain.JobStatusChanged
	evicted []string
}

func (p *recordingPublisher) PostEvent(_ context.Context, ev *domain.JobStatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return nil
}

func (p *recordingPublisher) DeleteJobStatus(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evicted = append(p.evicted, jobID)
	return nil
}

func (p *recordingPublisher) Evicted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evicted...)
}

func (p *recordingPublisher) Events() []domain.JobStatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.JobStatusChanged(nil), p.events...)
}

// funcDestination adapts a function to service.DestinationService.
type funcDestination struct {
	id string
	fn func(ctx context.Context, resources []domain.Resource) error
}

func (d *funcDestination) ID() string          { return d.id }
func (d *funcDestination) DisplayName() string { return d.id }

func (d *funcDestination) Export(ctx context.Context, _ *domain.DestinationConfiguration, resources []domain.Resource,
	_ service.RuntimeProperties, _ service.ProgressListener) error {
	return d.fn(ctx, resources)
}

// failingOutput fails appending after failAfter records and remembers whether its context was closed.
type failingOutput struct {
	failAfter int
	appended  int
	closed    atomic.Bool
}

func (o *failingOutput) ID() string          { return "failing" }
func (o *failingOutput) DisplayName() string { return "Failing" }
func (o *failingOutput) ContentType() string { return "text/plain" }
func (o *failingOutput) Extension() string   { return ".txt" }

func (o *failingOutput) CreateExportContext(context.Context, *domain.OutputConfiguration) (service.ExportContext, error) {
	return o, nil
}

func (o *failingOutput) Start(context.Context, *int64) error { return nil }

func (o *failingOutput) AppendRecords(_ context.Context, records []*domain.Datum, _ service.ProgressListener) error {
	o.appended += len(records)
	if o.appended > o.failAfter {
		return fmt.Errorf("append: %w", io.ErrShortWrite)
	}
	return nil
}

func (o *failingOutput) Finish(context.Context) ([]domain.Resource, error) { return nil, nil }

func (o *failingOutput) Close() error {
	o.closed.Store(true)
	return nil
}

// spanOutput remembers the span active when its context was started.
type spanOutput struct {
	mu      sync.Mutex
	started trace.SpanContext
}

func (o *spanOutput) ID() string          { return "span" }
func (o *spanOutput) DisplayName() string { return "Span" }
func (o *spanOutput) ContentType() string { return "text/plain" }
func (o *spanOutput) Extension() string   { return ".txt" }

func (o *spanOutput) CreateExportContext(context.Context, *domain.OutputConfiguration) (service.ExportContext, error) {
	return o, nil
}

func (o *spanOutput) Start(ctx context.Context, _ *int64) error {
	o.mu.Lock()
	o.started = trace.SpanContextFromContext(ctx)
	o.mu.Unlock()
	return nil
}

func (o *spanOutput) AppendRecords(context.Context, []*domain.Datum, service.ProgressListener) error {
	return nil
}

func (o *spanOutput) Finish(context.Context) ([]domain.Resource, error) { return nil, nil }

func (o *spanOutput) Close() error { return nil }

func (o *spanOutput) StartedIn() trace.SpanContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

type diskFullError struct{}

func (diskFullError) Error() string { return "no space left on device" }

type fixture struct {
	engine    *Engine
	tasks     *memory.TaskStore
	datum     *memory.DatumStore
	null      *destination.NullService
	publisher *recordingPublisher
	clock     *fakeClock
}

func newFixture(t *testing.T, extra ...service.DestinationService) *fixture {
	t.Helper()
	f := &fixture{
		tasks: memory.NewTaskStore(),
		datum: memory.NewDatumStore(
			&domain.Datum{NodeID: 1, SourceID: "s1", Created: exportDay.Add(time.Hour), Samples: map[string]any{"watts": 10}},
			&domain.Datum{NodeID: 1, SourceID: "s1", Created: exportDay.Add(2 * time.Hour), Samples: map[string]any{"watts": 12}},
			&domain.Datum{NodeID: 2, SourceID: "s2", Created: exportDay.Add(3 * time.Hour), Samples: map[string]any{"watts": 7}},
			&domain.Datum{NodeID: 1, SourceID: "s1", Created: exportDay.Add(30 * time.Hour), Samples: map[string]any{"watts": 1}},
		),
		null:      destination.NewNullService(),
		publisher: &recordingPublisher{},
		clock:     &fakeClock{now: exportDay.Add(36 * time.Hour)},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	destinations := append([]service.DestinationService{f.null}, extra...)
	e, err := NewEngine(Options{
		Tasks:        f.tasks,
		Datum:        auth.NewDatumStore(f.datum, nil),
		Transactor:   memory.Transactor{},
		Outputs:      service.NewRegistry[service.OutputFormatService](output.NewCSVService(t.TempDir(), log), &failingOutput{failAfter: 1}, &spanOutput{}),
		Destinations: service.NewRegistry(destinations...),
		Publisher:    f.publisher,
		Workers:      2,
		Clock:        f.clock.Now,
		Logger:       log,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	f.engine = e
	return f
}

func dailyConfig(outputID, destinationID string) *domain.Configuration {
	return &domain.Configuration{
		Name:        "meters",
		Data:        &domain.DataConfiguration{Filter: &domain.DatumFilter{NodeIDs: []int64{1}}},
		Output:      &domain.OutputConfiguration{ServiceIdentifier: outputID},
		Destination: &domain.DestinationConfiguration{ServiceIdentifier: destinationID},
		Schedule:    domain.ScheduleDaily,
	}
}

func (f *fixture) run(t *testing.T, req *domain.ExportRequest) (*JobHandle, *domain.ExportResult) {
	t.Helper()
	h, err := f.engine.PerformExport(context.Background(), req)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := h.Result(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	return h, res
}

func TestPerformExportCSV(t *testing.T) {
	f := newFixture(t)

	h, res := f.run(t, &domain.ExportRequest{Config: dailyConfig("csv", "null"), ExportDate: exportDay})

	assert.True(t, res.Success, res.Message)
	assert.EqualValues(t, 2, res.Processed)
	assert.Equal(t, []string{"datum-export.csv"}, f.null.Exported())

	s := h.Snapshot()
	assert.Equal(t, domain.TaskStatusCompleted, s.State)
	assert.Equal(t, 100.0, s.PercentComplete)
	require.NotNil(t, s.Success)
	assert.True(t, *s.Success)

	info, err := f.engine.LoadStatus(context.Background(), h.ID())
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, domain.TaskStatusCompleted, info.Status)
	assert.Equal(t, exportDay, info.ExportDate)
}

func TestSingleRecordProducesOneCSVResource(t *testing.T) {
	var contentTypes []string
	capture := &funcDestination{id: "capture", fn: func(_ context.Context, resources []domain.Resource) error {
		for _, r := range resources {
			contentTypes = append(contentTypes, r.ContentType())
		}
		return nil
	}}
	f := newFixture(t, capture)
	cfg := dailyConfig("csv", "capture")
	cfg.Data.Filter = &domain.DatumFilter{NodeIDs: []int64{2}, SourceIDs: []string{"s2"}}

	_, res := f.run(t, &domain.ExportRequest{Config: cfg, ExportDate: exportDay})

	assert.True(t, res.Success, res.Message)
	assert.EqualValues(t, 1, res.Processed)
	assert.Equal(t, []string{"text/csv"}, contentTypes)
}

func TestProgressIsMonotonic(t *testing.T) {
	f := newFixture(t)

	_, res := f.run(t, &domain.ExportRequest{Config: dailyConfig("csv", "null"), ExportDate: exportDay})
	require.True(t, res.Success, res.Message)

	events := f.publisher.Events()
	require.NotEmpty(t, events)
	last := -1.0
	for _, ev := range events {
		if ev.PercentComplete == UnknownProgress {
			continue
		}
		assert.GreaterOrEqual(t, ev.PercentComplete, last)
		last = ev.PercentComplete
	}
	final := events[len(events)-1]
	assert.Equal(t, domain.TaskStatusCompleted, final.State)
	assert.Equal(t, 100.0, final.PercentComplete)
}

func TestPerformExportDefaultsExportDate(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))

	h, _ := f.run(t, &domain.ExportRequest{Config: dailyConfig("csv", "null")})

	info, err := f.engine.LoadStatus(context.Background(), h.ID())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), info.ExportDate)
}

func TestAdhocWithoutDateRangeFailsBeforeExtraction(t *testing.T) {
	f := newFixture(t)
	cfg := dailyConfig("csv", "null")
	cfg.Schedule = domain.ScheduleAdhoc

	h, res := f.run(t, &domain.ExportRequest{Config: cfg})

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "date range")
	assert.Zero(t, f.datum.Calls())
	assert.Zero(t, f.null.Calls())
	assert.Equal(t, domain.TaskStatusCompleted, h.Snapshot().State)
}

func TestAdhocWithDateRange(t *testing.T) {
	f := newFixture(t)
	cfg := dailyConfig("csv", "null")
	cfg.Schedule = domain.ScheduleAdhoc
	cfg.Data.Filter = cfg.Data.Filter.WithDateRange(exportDay, exportDay.Add(48*time.Hour))

	_, res := f.run(t, &domain.ExportRequest{Config: cfg})

	assert.True(t, res.Success, res.Message)
	assert.EqualValues(t, 3, res.Processed)
}

func TestMissingServicesFail(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		destination string
		want        string
	}{
		{name: "output", output: "xlsx", destination: "null", want: `Output service "xlsx" not available`},
		{name: "destination", output: "csv", destination: "s3", want: `Destination service "s3" not available`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, res := f.run(t, &domain.ExportRequest{Config: dailyConfig(tt.output, tt.destination), ExportDate: exportDay})

			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Message)
			assert.Zero(t, f.datum.Calls())
		})
	}
}

func TestEveryJobReachesCompleted(t *testing.T) {
	configs := map[string]*domain.Configuration{
		"no data":        {Output: &domain.OutputConfiguration{ServiceIdentifier: "csv"}},
		"no schedule":    {Data: &domain.DataConfiguration{Filter: &domain.DatumFilter{}}, Output: &domain.OutputConfiguration{ServiceIdentifier: "csv"}, Destination: &domain.DestinationConfiguration{ServiceIdentifier: "null"}},
		"bad zone":       func() *domain.Configuration { c := dailyConfig("csv", "null"); c.TimeZone = "Mars/Olympus"; return c }(),
		"bad schedule":   func() *domain.Configuration { c := dailyConfig("csv", "null"); c.Schedule = "YEARLY"; return c }(),
		"bad compressor": func() *domain.Configuration { c := dailyConfig("csv", "null"); c.Output.CompressionType = "LZ4"; return c }(),
		"valid":          dailyConfig("csv", "null"),
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			h, res := f.run(t, &domain.ExportRequest{Config: cfg, ExportDate: exportDay})

			s := h.Snapshot()
			assert.Equal(t, domain.TaskStatusCompleted, s.State)
			require.NotNil(t, s.Success)
			assert.Equal(t, res.Success, *s.Success)
			assert.NotNil(t, s.Completed)
			if !res.Success {
				assert.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestPolicyExclusionFailsWithAuthError(t *testing.T) {
	f := newFixture(t)

	_, res := f.run(t, &domain.ExportRequest{
		Config:     dailyConfig("csv", "null"),
		ExportDate: exportDay,
		Policy:     &domain.SecurityPolicy{NodeIDs: []int64{2}},
	})

	assert.False(t, res.Success)
	assert.True(t, errors.IsAuthorizationMessage(res.Message), res.Message)
	assert.Empty(t, f.null.Exported())
}

func TestPolicyNarrowsFilter(t *testing.T) {
	f := newFixture(t)
	cfg := dailyConfig("csv", "null")
	cfg.Data.Filter.NodeIDs = nil

	_, res := f.run(t, &domain.ExportRequest{
		Config:     cfg,
		ExportDate: exportDay,
		Policy:     &domain.SecurityPolicy{NodeIDs: []int64{2}},
	})

	assert.True(t, res.Success, res.Message)
	assert.EqualValues(t, 1, res.Processed)
}

func TestFailureMessageUsesRootCause(t *testing.T) {
	failing := &funcDestination{id: "disk", fn: func(context.Context, []domain.Resource) error {
		return fmt.Errorf("upload: %w", fmt.Errorf("write file: %w", fmt.Errorf("flush: %w", diskFullError{})))
	}}
	f := newFixture(t, failing)

	_, res := f.run(t, &domain.ExportRequest{Config: dailyConfig("csv", "disk"), ExportDate: exportDay})

	assert.False(t, res.Success)
	assert.Equal(t, "diskFullError: no space left on device", res.Message)
}

func TestExportContextClosedOnFailure(t *testing.T) {
	f := newFixture(t)
	out, ok := f.engine.outputs.Resolve(&domain.OutputConfiguration{ServiceIdentifier: "failing"})
	require.True(t, ok)

	_, res := f.run(t, &domain.ExportRequest{Config: dailyConfig("failing", "null"), ExportDate: exportDay})

	assert.False(t, res.Success)
	assert.Equal(t, "short write", res.Message)
	assert.True(t, out.(*failingOutput).closed.Load())
	assert.Zero(t, f.null.Calls())
}

func TestPanicBecomesFailure(t *testing.T) {
	panicking := &funcDestination{id: "panic", fn: func(context.Context, []domain.Resource) error {
		panic("boom")
	}}
	f := newFixture(t, panicking)

	h, res := f.run(t, &domain.ExportRequest{Config: dailyConfig("csv", "panic"), ExportDate: exportDay})

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "boom")
	assert.Equal(t, domain.TaskStatusCompleted, h.Snapshot().State)
}

func TestDuplicateSubmissionReturnsSameHandle(t *testing.T) {
	f := newFixture(t)
	req := &domain.ExportRequest{ID: "job-1", Config: dailyConfig("csv", "null"), ExportDate: exportDay}

	first, _ := f.run(t, req)
	second, err := f.engine.PerformExport(context.Background(), req)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.datum.Calls())
}

func blockingDestination(started chan<- struct{}, release <-chan struct{}) *funcDestination {
	return &funcDestination{id: "block", fn: func(ctx context.Context, _ []domain.Resource) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
}

func TestPurgeRetention(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	f := newFixture(t, blockingDestination(started, release))

	done, _ := f.run(t, &domain.ExportRequest{ID: "done", Config: dailyConfig("csv", "null"), ExportDate: exportDay})
	completed := *done.Snapshot().Completed

	running, err := f.engine.PerformExport(context.Background(),
		&domain.ExportRequest{ID: "running", Config: dailyConfig("csv", "block"), ExportDate: exportDay})
	require.NoError(t, err)
	<-started

	f.clock.Set(completed.Add(time.Hour))
	assert.Zero(t, f.engine.Purge(context.Background()))
	_, ok := f.engine.StatusForJob("done")
	assert.True(t, ok)

	f.clock.Set(completed.Add(DefaultMinRetention + time.Minute))
	assert.Equal(t, 1, f.engine.Purge(context.Background()))
	_, ok = f.engine.StatusForJob("done")
	assert.False(t, ok)
	assert.Equal(t, []string{"done"}, f.publisher.Evicted())
	_, ok = f.engine.StatusForJob("running")
	assert.True(t, ok)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := running.Result(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success, res.Message)
}

func TestCancelRunningJob(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	defer close(release)
	f := newFixture(t, blockingDestination(started, release))

	h, err := f.engine.PerformExport(context.Background(),
		&domain.ExportRequest{ID: "cancel-me", Config: dailyConfig("csv", "block"), ExportDate: exportDay})
	require.NoError(t, err)
	<-started

	assert.True(t, h.Cancel())
	res, err := h.Result(context.Background())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrJobCancelled)
	assert.Equal(t, codes.Canceled, errors.Code(err))

	require.Eventually(t, func() bool {
		info, err := f.tasks.Get(context.Background(), "cancel-me")
		return err == nil && info != nil && info.Status == domain.TaskStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	info, _ := f.tasks.Get(context.Background(), "cancel-me")
	require.NotNil(t, info.Success)
	assert.False(t, *info.Success)
	assert.Equal(t, "context canceled", info.Message)
}

func TestPerformExportRejects(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.PerformExport(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, errors.Code(err))

	_, err = f.engine.PerformExport(context.Background(), &domain.ExportRequest{})
	assert.Equal(t, codes.InvalidArgument, errors.Code(err))

	require.NoError(t, f.engine.Shutdown(context.Background()))
	_, err = f.engine.PerformExport(context.Background(), &domain.ExportRequest{Config: dailyConfig("csv", "null")})
	assert.Equal(t, codes.Unavailable, errors.Code(err))
}

func TestNewEngineRequiresStores(t *testing.T) {
	_, err := NewEngine(Options{Tasks: memory.NewTaskStore()})
	assert.Error(t, err)
}

var _ store.DatumStore = (*auth.DatumStore)(nil)

func TestExportContextStartsInsideExtractSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(context.Background())
	})

	f := newFixture(t)
	out, ok := f.engine.outputs.Resolve(&domain.OutputConfiguration{ServiceIdentifier: "span"})
	require.True(t, ok)

	_, res := f.run(t, &domain.ExportRequest{Config: dailyConfig("span", "null"), ExportDate: exportDay})
	require.True(t, res.Success, res.Message)

	var extract sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() == "export.extract" {
			extract = span
		}
	}
	require.NotNil(t, extract)
	started := out.(*spanOutput).StartedIn()
	assert.Equal(t, extract.SpanContext().SpanID(), started.SpanID())
	assert.Equal(t, extract.SpanContext().TraceID(), started.TraceID())
}

func TestSubmitRacingShutdown(t *testing.T) {
	f := newFixture(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		handles []*JobHandle
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := f.engine.PerformExport(context.Background(), &domain.ExportRequest{
				ID:         fmt.Sprintf("race-%d", i),
				Config:     dailyConfig("csv", "null"),
				ExportDate: exportDay,
			})
			if err != nil {
				assert.Equal(t, codes.Unavailable, errors.Code(err))
				return
			}
			mu.Lock()
			handles = append(handles, h)
			mu.Unlock()
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Shutdown(ctx))
	wg.Wait()

	// every accepted job was submitted before Shutdown began waiting
	for _, h := range handles {
		assert.True(t, h.IsDone(), h.ID())
	}
	_, err := f.engine.PerformExport(context.Background(), &domain.ExportRequest{Config: dailyConfig("csv", "null")})
	assert.Equal(t, codes.Unavailable, errors.Code(err))
}
