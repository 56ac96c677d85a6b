package export

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs submitted work on goroutines, at most workers at a time.
type Executor struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewExecutor(workers int) *Executor {
	if workers <= 0 {
		workers = 1
	}
	return &Executor{sem: semaphore.NewWeighted(int64(workers))}
}

// Submit never blocks. When ctx ends before a slot frees up, fn still runs so it can
// record its own cancellation.
func (x *Executor) Submit(ctx context.Context, fn func()) {
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		if err := x.sem.Acquire(ctx, 1); err == nil {
			defer x.sem.Release(1)
		}
		fn()
	}()
}

// WaitAll blocks until all submitted work finishes or the context is done.
// Returns true if all work finished, false if timed out.
func (x *Executor) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		x.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
