package nport

import (
	"context"
	"sync"
)

// TaskRegistry tracks in-flight streams by task id so a separate
// request can cancel them. A cancelled task is removed immediately;
// cancelling an unknown id is reported, not an error.
type TaskRegistry struct {
	mu    sync.Mutex
	tasks map[string]context.CancelFunc
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]context.CancelFunc)}
}

// Register derives a cancellable context for a stream and records its
// cancel function under id. The caller must Remove the id when the
// stream ends.
func (r *TaskRegistry) Register(ctx context.Context, id string) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.tasks[id] = cancel
	r.mu.Unlock()
	return ctx
}

// Cancel signals the stream registered under id and removes it.
// Returns false when no such task exists.
func (r *TaskRegistry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.tasks[id]
	if ok {
		delete(r.tasks, id)
	}
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Remove drops a finished task without cancelling it.
func (r *TaskRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
}

// CancelAll cancels every registered task. Called on shutdown.
func (r *TaskRegistry) CancelAll() {
	r.mu.Lock()
	for id, cancel := range r.tasks {
		cancel()
		delete(r.tasks, id)
	}
	r.mu.Unlock()
}

// Len returns the number of registered tasks.
func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
