package job

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Factory rebuilds a job of one type from its persisted payload.
type Factory func(id uuid.UUID, payload []byte) (Job, error)

// Registry maps job types to the factories that rebuild them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates jobType with f, replacing any previous factory.
func (r *Registry) Register(jobType string, f Factory) {
	if f == nil {
		panic("job factory cannot be nil") // ALLOW-PANIC
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[jobType] = f
}

// Build rebuilds the job stored in rec.
func (r *Registry) Build(rec *Record) (Job, error) {
	r.mu.RLock()
	f, ok := r.factories[rec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, rec.Type)
	}

	j, err := f(rec.ID, rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild %s job %s: %w", rec.Type, rec.ID, err)
	}
	return j, nil
}
