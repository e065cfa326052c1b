package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/talkvault/talkvault/internal/eventbus"
	"github.com/talkvault/talkvault/internal/lock"
	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/internal/store"
	"github.com/talkvault/talkvault/internal/store/memory"
	"github.com/talkvault/talkvault/types"
)

const (
	waitFor = 2 * time.Second
	poll    = 5 * time.Millisecond
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

// newTestManager returns a manager over an in-memory store whose loop only runs on wake-ups.
func newTestManager(t *testing.T, opts ...Option) (*JobManager, *memory.MemoryStore) {
	t.Helper()
	s := memory.NewMemoryStore()
	return newManagerOver(s, s, opts...), s
}

func newManagerOver(jobs store.JobStore, locks store.LockStore, opts ...Option) *JobManager {
	base := []Option{WithTickInterval(time.Hour), WithLogger(zerolog.Nop())}
	return NewJobManager(jobs, lock.NewStoreLockManager(locks, zerolog.Nop()), append(base, opts...)...)
}

func start(t *testing.T, m *JobManager) {
	t.Helper()
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = m.Stop(ctx)
	})
}

// gate blocks handlers until released, one channel per job id.
type gate struct {
	mu    sync.Mutex
	chans map[int64]chan struct{}
}

func newGate(t *testing.T) *gate {
	g := &gate{chans: make(map[int64]chan struct{})}
	t.Cleanup(g.releaseAll)
	return g
}

func (g *gate) ch(id int64) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.chans[id]
	if !ok {
		c = make(chan struct{})
		g.chans[id] = c
	}
	return c
}

func (g *gate) release(id int64) {
	c := g.ch(id)
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-c:
	default:
		close(c)
	}
}

func (g *gate) releaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.chans {
		select {
		case <-c:
		default:
			close(c)
		}
	}
}

// handler waits for the job's gate and then reports success.
func (g *gate) handler() Handler {
	return func(ctx context.Context, job *JobRecord, done DoneFunc) error {
		select {
		case <-g.ch(job.ID):
		case <-ctx.Done():
		}
		done(nil)
		return nil
	}
}

func succeed(ctx context.Context, job *JobRecord, done DoneFunc) error {
	done(nil)
	return nil
}

func statusOf(m *JobManager, id int64) state.JobStatus {
	for _, j := range m.GetJobs() {
		if j.ID == id {
			return j.Status
		}
	}
	return ""
}

func countStatus(m *JobManager, name string, status state.JobStatus) int {
	n := 0
	for _, j := range m.GetJobs() {
		if j.Name == name && j.Status == status {
			n++
		}
	}
	return n
}

// recorder collects events by kind.
type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func record(m *JobManager, kinds ...eventbus.Kind) *recorder {
	r := &recorder{}
	if len(kinds) == 0 {
		kinds = eventbus.AllKinds
	}
	for _, k := range kinds {
		m.On(k, func(e eventbus.Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) of(kind eventbus.Kind) []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) statusesOf(id int64) []state.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []state.JobStatus
	for _, e := range r.events {
		if e.Job.ID != id {
			continue
		}
		if n := len(out); n == 0 || out[n-1] != e.Job.Status {
			out = append(out, e.Job.Status)
		}
	}
	return out
}

// failingStore rejects writes selected by its flags and delegates everything else.
type failingStore struct {
	*memory.MemoryStore
	mu           sync.Mutex
	failCreate   bool
	failProgress bool
}

var errStoreDown = errors.New("store unreachable")

func (f *failingStore) CreateJob(ctx context.Context, name string, data json.RawMessage, keep bool) (*types.Job, error) {
	f.mu.Lock()
	fail := f.failCreate
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.MemoryStore.CreateJob(ctx, name, data, keep)
}

func (f *failingStore) UpdateJob(ctx context.Context, job types.Job) error {
	f.mu.Lock()
	fail := f.failProgress && job.Status == state.StatusActive && job.Progress > 0
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.MemoryStore.UpdateJob(ctx, job)
}
