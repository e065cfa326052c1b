// Package client is the background job scheduler: it persists named jobs, dispatches them to registered
// workers within per-task concurrency limits, fires repeating triggers and reports every lifecycle step on
// an event bus.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/internal/constants"
	"github.com/talkvault/talkvault/internal/eventbus"
	"github.com/talkvault/talkvault/internal/lock"
	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/internal/store"
	"github.com/talkvault/talkvault/types"
)

const (
	resultsBuffer  = 1000
	persistTimeout = 10 * time.Second
)

// trackedJob is one entry of the working set. persist serializes the store writes of the job.
// Events are queued while persist is held and delivered after it is released, in queue order,
// by whichever goroutine finds the outbox idle.
type trackedJob struct {
	job             types.Job
	persist         sync.Mutex
	stallReported   bool
	missingReported bool

	outMu    sync.Mutex
	outbox   []eventbus.Event
	draining bool
}

type JobManager struct {
	store   store.JobStore
	locks   lock.Manager
	bus     *eventbus.Bus
	workers *workerRegistry
	log     zerolog.Logger
	now     func() time.Time

	tickInterval time.Duration
	stallTimeout time.Duration

	mu       sync.Mutex
	order    []int64
	jobs     map[int64]*trackedJob
	triggers []*types.RepeatingTrigger

	tickMu      sync.Mutex
	paused      atomic.Bool
	initialized atomic.Bool
	started     atomic.Bool
	stopped     atomic.Bool

	wake     chan struct{}
	results  chan types.JobResult
	inflight sync.WaitGroup

	runCtx        context.Context
	cancelRun     context.CancelFunc
	cancelLoop    context.CancelFunc
	loopDone      chan struct{}
	stopProcessor chan struct{}
	processorDone chan struct{}
}

// NewJobManager builds a scheduler over jobStore. locks may be nil when no lock backend is configured;
// otherwise every held lock is released when Start runs.
func NewJobManager(jobStore store.JobStore, locks lock.Manager, opts ...Option) *JobManager {
	m := &JobManager{
		store:         jobStore,
		locks:         locks,
		workers:       newWorkerRegistry(),
		log:           zerolog.Nop(),
		now:           time.Now,
		tickInterval:  constants.DefaultTickInterval,
		jobs:          make(map[int64]*trackedJob),
		wake:          make(chan struct{}, 1),
		results:       make(chan types.JobResult, resultsBuffer),
		stopProcessor: make(chan struct{}),
		processorDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = eventbus.New(m.log)
	}
	return m
}

// AddWorker registers handler for name. The concurrency limit defaults to 1.
func (m *JobManager) AddWorker(name string, handler Handler, concurrency ...int) error {
	if err := m.workers.register(name, handler, concurrencyOrDefault(concurrency)); err != nil {
		return err
	}
	m.log.Debug().Str("worker", name).Int("concurrency", concurrencyOrDefault(concurrency)).Msg("worker registered")
	return nil
}

// Workers lists registered task names.
func (m *JobManager) Workers() []string {
	return m.workers.names()
}

// Start recovers persisted state and begins the scheduling loop:
// held locks are released, Active rows are reset to Waiting (each raising a stalled event),
// Waiting rows are loaded into the working set, and the loop starts ticking.
func (m *JobManager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if m.locks != nil {
		if _, err := m.locks.ReleaseAll(ctx); err != nil {
			m.started.Store(false)
			return fmt.Errorf("failed to release leftover locks: %w", err)
		}
	}

	if err := m.restore(ctx); err != nil {
		m.started.Store(false)
		return err
	}
	m.initialized.Store(true)

	m.runCtx, m.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	loopCtx, cancelLoop := context.WithCancel(ctx)
	m.cancelLoop = cancelLoop
	m.loopDone = make(chan struct{})

	m.startResultProcessor()
	go m.loop(loopCtx)
	m.signal()

	m.log.Info().
		Dur("tick", m.tickInterval).
		Int("pending", len(m.GetJobs())).
		Strs("workers", m.workers.names()).
		Msg("scheduler started")
	return nil
}

func (m *JobManager) restore(ctx context.Context) error {
	stale, err := m.store.FindByStatus(ctx, state.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to load active jobs: %w", err)
	}
	if len(stale) > 0 {
		if _, err := m.store.ResetStatus(ctx, state.StatusActive, state.StatusWaiting); err != nil {
			return fmt.Errorf("failed to reset active jobs: %w", err)
		}
		for _, job := range stale {
			job.Status = state.StatusWaiting
			job.StartedAt = nil
			m.log.Warn().Int64("job_id", job.ID).Str("name", job.Name).Msg("job was active at shutdown, requeued")
			m.emit(eventbus.Event{Kind: eventbus.Stalled, Job: job})
		}
	}

	pending, err := m.store.FindByStatus(ctx, state.PendingStatuses...)
	if err != nil {
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}

	m.mu.Lock()
	for _, job := range pending {
		m.track(&trackedJob{job: job})
	}
	m.mu.Unlock()
	return nil
}

func (m *JobManager) loop(ctx context.Context) {
	defer close(m.loopDone)

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-m.wake:
		}
		m.Tick(ctx, m.now())
	}
}

// Stop halts the loop and waits for in-flight jobs to finish until ctx is done.
// Jobs still running at the deadline see their context cancelled and keep their Active status.
func (m *JobManager) Stop(ctx context.Context) error {
	if !m.started.Load() || m.cancelLoop == nil {
		return ErrNotStarted
	}
	if !m.stopped.CompareAndSwap(false, true) {
		return nil
	}

	m.cancelLoop()
	<-m.loopDone

	drained := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
		m.log.Warn().Err(err).Msg("stopping with in-flight jobs")
	}

	m.cancelRun()
	close(m.stopProcessor)
	<-m.processorDone

	m.log.Info().Msg("scheduler stopped")
	return err
}

// Pause halts dispatch and trigger evaluation. Running handlers are not affected and EnqueueJob still persists.
func (m *JobManager) Pause() {
	if !m.paused.Swap(true) {
		m.log.Info().Msg("scheduler paused")
	}
}

func (m *JobManager) Resume() {
	if m.paused.Swap(false) {
		m.log.Info().Msg("scheduler resumed")
		m.signal()
	}
}

func (m *JobManager) IsPaused() bool {
	return m.paused.Load()
}

// IsInitialized reports whether persisted jobs have been loaded.
func (m *JobManager) IsInitialized() bool {
	return m.initialized.Load()
}

// GetJobs returns the working set in dispatch order, without payloads.
func (m *JobManager) GetJobs() []types.JobSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.JobSummary, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.jobs[id].job.Summary())
	}
	return out
}

// On registers a listener that runs synchronously on the scheduler goroutine that emitted the event.
// No scheduler lock is held while it runs, so it may call back into the manager, including
// UpdateJobProgress for the job being reported. Events raised by such a call are delivered after the
// listener returns.
func (m *JobManager) On(kind eventbus.Kind, listener eventbus.Listener) eventbus.ListenerID {
	return m.bus.On(kind, listener)
}

func (m *JobManager) Off(kind eventbus.Kind, id eventbus.ListenerID) bool {
	return m.bus.Off(kind, id)
}

func (m *JobManager) Bus() *eventbus.Bus {
	return m.bus
}

// track adds tj to the working set unless its id is already there. Caller holds m.mu.
func (m *JobManager) track(tj *trackedJob) bool {
	if _, ok := m.jobs[tj.job.ID]; ok {
		return false
	}
	m.jobs[tj.job.ID] = tj
	m.order = append(m.order, tj.job.ID)
	return true
}

// untrack removes id from the working set. Caller holds m.mu.
func (m *JobManager) untrack(id int64) {
	if _, ok := m.jobs[id]; !ok {
		return
	}
	delete(m.jobs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *JobManager) lookup(id int64) (*trackedJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tj, ok := m.jobs[id]
	return tj, ok
}

// signal wakes the loop without blocking; one pending wake-up is enough.
func (m *JobManager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *JobManager) emit(e eventbus.Event) {
	if e.Time.IsZero() {
		e.Time = m.now()
	}
	m.bus.Emit(e)
}

func (m *JobManager) reportError(job types.Job, err error) {
	m.emit(eventbus.Event{Kind: eventbus.Error, Job: job, Err: err})
}

// queue appends e to the outbox of tj. Caller holds tj.persist, which fixes the delivery order.
func (m *JobManager) queue(tj *trackedJob, e eventbus.Event) {
	if e.Time.IsZero() {
		e.Time = m.now()
	}
	tj.outMu.Lock()
	tj.outbox = append(tj.outbox, e)
	tj.outMu.Unlock()
}

func (m *JobManager) queueError(tj *trackedJob, job types.Job, err error) {
	m.queue(tj, eventbus.Event{Kind: eventbus.Error, Job: job, Err: err})
}

// flush delivers the queued events of tj. Caller must not hold tj.persist. When another goroutine
// is already delivering, including a listener further up this goroutine's stack, it picks up the
// new events before it stops.
func (m *JobManager) flush(tj *trackedJob) {
	tj.outMu.Lock()
	if tj.draining {
		tj.outMu.Unlock()
		return
	}
	tj.draining = true
	for len(tj.outbox) > 0 {
		e := tj.outbox[0]
		tj.outbox = tj.outbox[1:]
		tj.outMu.Unlock()
		m.bus.Emit(e)
		tj.outMu.Lock()
	}
	tj.outbox = nil
	tj.draining = false
	tj.outMu.Unlock()
}

func persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), persistTimeout)
}
