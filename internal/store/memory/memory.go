// Package memory keeps export tasks and datum in process memory.
// It backs tests and single node runs without a database.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/webitel/datum-exporter/internal/domain/model/export"
	"github.com/webitel/datum-exporter/internal/store"
)

type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*export.TaskInfo
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*export.TaskInfo)}
}

func (s *TaskStore) Store(ctx context.Context, info *export.TaskInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[info.ID] = info.Clone()
	return nil
}

func (s *TaskStore) Get(ctx context.Context, jobID string) (*export.TaskInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[jobID].Clone(), nil
}

func (s *TaskStore) DeleteCompleted(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tasks {
		if t.Status == export.TaskStatusCompleted && t.Completed != nil && t.Completed.Before(before) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// DatumStore serves datum from a slice kept in creation order.
type DatumStore struct {
	mu    sync.RWMutex
	datum []*export.Datum
	calls int
}

func NewDatumStore(datum ...*export.Datum) *DatumStore {
	s := &DatumStore{}
	s.Add(datum...)
	return s
}

func (s *DatumStore) Add(datum ...*export.Datum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datum = append(s.datum, datum...)
	slices.SortStableFunc(s.datum, func(a, b *export.Datum) int { return a.Created.Compare(b.Created) })
}

// Calls returns how many bulk exports were started.
func (s *DatumStore) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *DatumStore) BulkExport(ctx context.Context, handler store.DatumHandler, opts store.BulkExportOptions) (*store.BulkExportResult, error) {
	s.mu.Lock()
	s.calls++
	matched := make([]*export.Datum, 0, len(s.datum))
	for _, d := range s.datum {
		if opts.Filter.Matches(d) {
			matched = append(matched, d)
		}
	}
	s.mu.Unlock()

	total := int64(len(matched))
	handler.DidBegin(&total)

	result := &store.BulkExportResult{}
	for _, d := range matched {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := handler.Handle(ctx, d)
		if err != nil {
			return nil, err
		}
		result.Processed++
		if res == store.Stop {
			break
		}
	}
	return result, nil
}

// Transactor runs fn directly; memory stores need no unit of work.
type Transactor struct{}

func (Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
