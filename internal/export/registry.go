package export

import "sync"

// TaskRegistry is a concurrent map from job ID to handle.
type TaskRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*JobHandle
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{jobs: make(map[string]*JobHandle)}
}

// PutIfAbsent stores h unless the ID is taken. It returns the handle held by the
// registry and whether it was already present.
func (r *TaskRegistry) PutIfAbsent(id string, h *JobHandle) (*JobHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.jobs[id]; ok {
		return existing, true
	}
	r.jobs[id] = h
	return h, false
}

func (r *TaskRegistry) Get(id string) (*JobHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.jobs[id]
	return h, ok
}

// RemoveIf deletes every entry matching pred and returns the removed IDs.
func (r *TaskRegistry) RemoveIf(pred func(h *JobHandle) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, h := range r.jobs {
		if pred(h) {
			delete(r.jobs, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
