package client

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/talkvault/talkvault/internal/constants"
	"golang.org/x/sync/semaphore"
)

// DoneFunc reports the outcome of a job. nil means success; an error marks the job Failed and keeps its row.
type DoneFunc func(err error)

// Handler runs one job. It must either call done or return a non-nil error on every path.
// A returned error or a panic marks the job Failed and deletes its row.
// Returning nil without ever calling done leaves the job Active.
type Handler func(ctx context.Context, job *JobRecord, done DoneFunc) error

type worker struct {
	name    string
	handler Handler
	limit   int
	slots   *semaphore.Weighted
}

type workerRegistry struct {
	mu      sync.RWMutex
	workers map[string]*worker
}

func newWorkerRegistry() *workerRegistry {
	return &workerRegistry{
		workers: make(map[string]*worker),
	}
}

func (r *workerRegistry) register(name string, handler Handler, limit int) error {
	if name == "" || handler == nil {
		return fmt.Errorf("worker must have a name and a handler")
	}
	if limit < 1 {
		return fmt.Errorf("%w: %q got %d", ErrInvalidConcurrency, name, limit)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[name]; exists {
		return fmt.Errorf("%w: %q", ErrWorkerAlreadyRegistered, name)
	}
	r.workers[name] = &worker{
		name:    name,
		handler: handler,
		limit:   limit,
		slots:   semaphore.NewWeighted(int64(limit)),
	}
	return nil
}

func (r *workerRegistry) get(name string) (*worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	return w, ok
}

func (r *workerRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func concurrencyOrDefault(concurrency []int) int {
	if len(concurrency) == 0 {
		return constants.DefaultWorkerLimit
	}
	return concurrency[0]
}
