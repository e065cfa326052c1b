package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/talkvault/talkvault/internal/eventbus"
	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/types"
)

// Tick runs one scheduling pass at now: due repeating triggers are enqueued, Waiting jobs are dispatched
// while their task has free slots, and long-running jobs are checked for stalls. Ticks never overlap.
// Nothing happens while the manager is paused or before Start has loaded persisted jobs.
func (m *JobManager) Tick(ctx context.Context, now time.Time) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if m.IsPaused() || !m.IsInitialized() {
		return
	}

	m.evaluateTriggers(ctx, now)
	m.dispatchWaiting(ctx, now)
	m.checkStalled(now)
}

func (m *JobManager) waitingJobs() []*trackedJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*trackedJob, 0, len(m.order))
	for _, id := range m.order {
		if tj := m.jobs[id]; tj.job.Status == state.StatusWaiting {
			out = append(out, tj)
		}
	}
	return out
}

func (m *JobManager) dispatchWaiting(ctx context.Context, now time.Time) {
	for _, tj := range m.waitingJobs() {
		if ctx.Err() != nil {
			return
		}

		w, ok := m.workers.get(tj.job.Name)
		if !ok {
			m.reportMissingWorker(tj)
			continue
		}

		// the slot is held until the job's outcome has been applied
		if !w.slots.TryAcquire(1) {
			continue
		}

		record, ok := m.activate(ctx, tj, now)
		if !ok {
			w.slots.Release(1)
			continue
		}

		m.inflight.Add(1)
		go m.runHandler(w, record)
	}
}

func (m *JobManager) reportMissingWorker(tj *trackedJob) {
	m.mu.Lock()
	first := !tj.missingReported
	tj.missingReported = true
	job := tj.job
	m.mu.Unlock()

	if !first {
		return
	}
	err := fmt.Errorf("%w: %q", ErrWorkerNotFound, job.Name)
	m.log.Error().Err(err).Int64("job_id", job.ID).Msg("job cannot be dispatched and stays waiting")
	m.reportError(job, err)
}

// activate moves tj from Waiting to Active and persists it. On a store error the job is left Waiting
// and retried on a later tick.
func (m *JobManager) activate(ctx context.Context, tj *trackedJob, now time.Time) (*JobRecord, bool) {
	defer m.flush(tj)
	tj.persist.Lock()
	defer tj.persist.Unlock()

	m.mu.Lock()
	if tj.job.Status != state.StatusWaiting || !state.IsValidTransition(tj.job.Status, state.StatusActive) {
		m.mu.Unlock()
		return nil, false
	}
	previous := tj.job
	startedAt := now
	tj.job.Status = state.StatusActive
	tj.job.StartedAt = &startedAt
	tj.stallReported = false
	snapshot := tj.job
	m.mu.Unlock()

	if err := m.store.UpdateJob(ctx, snapshot); err != nil {
		m.mu.Lock()
		tj.job = previous
		m.mu.Unlock()
		m.log.Error().Err(err).Int64("job_id", snapshot.ID).Msg("failed to mark job active")
		m.queueError(tj, previous, err)
		return nil, false
	}

	m.log.Debug().Int64("job_id", snapshot.ID).Str("name", snapshot.Name).Msg("job dispatched")
	m.queue(tj, eventbus.Event{Kind: eventbus.Processing, Job: snapshot})
	return &JobRecord{Job: snapshot, manager: m}, true
}

func (m *JobManager) runHandler(w *worker, record *JobRecord) {
	var once sync.Once
	finish := func(err error, thrown bool) {
		once.Do(func() {
			m.submitResult(types.JobResult{
				JobID:      record.ID,
				Name:       record.Name,
				Err:        err,
				Thrown:     thrown,
				Status:     outcomeStatus(err),
				FinishedAt: m.now(),
			})
		})
	}

	defer func() {
		if r := recover(); r != nil {
			finish(fmt.Errorf("handler %q panicked: %v", w.name, r), true)
		}
	}()

	if err := w.handler(m.runCtx, record, func(err error) { finish(err, false) }); err != nil {
		finish(err, true)
	}
}

func outcomeStatus(err error) state.JobStatus {
	if err != nil {
		return state.StatusFailed
	}
	return state.StatusCompleted
}

func (m *JobManager) submitResult(res types.JobResult) {
	select {
	case m.results <- res:
	case <-m.processorDone:
		m.log.Warn().Int64("job_id", res.JobID).Str("status", res.Status.String()).Msg("scheduler stopped, job outcome dropped")
	}
}

func (m *JobManager) startResultProcessor() {
	go func() {
		defer close(m.processorDone)
		for {
			select {
			case res := <-m.results:
				m.applyResult(res)
			case <-m.stopProcessor:
				for {
					select {
					case res := <-m.results:
						m.applyResult(res)
					default:
						return
					}
				}
			}
		}
	}()
}

// applyResult persists the terminal state of a finished job, emits its event and frees its slot.
func (m *JobManager) applyResult(res types.JobResult) {
	defer m.signal()
	defer m.inflight.Done()

	if w, ok := m.workers.get(res.Name); ok {
		defer w.slots.Release(1)
	}

	tj, ok := m.lookup(res.JobID)
	if !ok {
		m.log.Warn().Int64("job_id", res.JobID).Msg("outcome for a job that is no longer tracked")
		return
	}

	defer m.flush(tj)
	tj.persist.Lock()
	defer tj.persist.Unlock()

	m.mu.Lock()
	if !state.IsValidTransition(tj.job.Status, res.Status) {
		from := tj.job.Status
		m.mu.Unlock()
		m.log.Warn().Int64("job_id", res.JobID).Str("from", from.String()).Str("to", res.Status.String()).Msg("ignoring invalid transition")
		return
	}
	tj.job.Status = res.Status
	if res.Status == state.StatusCompleted {
		tj.job.Progress = 100
	} else {
		tj.job.Progress = 0
	}
	snapshot := tj.job
	m.mu.Unlock()

	ctx, cancel := persistContext()
	defer cancel()

	if err := m.store.UpdateJob(ctx, snapshot); err != nil {
		m.log.Error().Err(err).Int64("job_id", snapshot.ID).Str("status", snapshot.Status.String()).Msg("failed to persist job outcome")
		m.queueError(tj, snapshot, err)
	}

	switch res.Status {
	case state.StatusCompleted:
		m.completeJob(ctx, tj, snapshot)
	case state.StatusFailed:
		m.failJob(ctx, tj, snapshot, res)
	}
}

// completeJob drops a finished job from the working set. The row is deleted unless the job was
// enqueued with keepAfterSuccess, in which case it stays in the store as Completed.
func (m *JobManager) completeJob(ctx context.Context, tj *trackedJob, job types.Job) {
	m.log.Info().Int64("job_id", job.ID).Str("name", job.Name).Msg("job completed")
	m.queue(tj, eventbus.Event{Kind: eventbus.Completed, Job: job, Progress: job.Progress})

	m.mu.Lock()
	m.untrack(job.ID)
	m.mu.Unlock()

	if job.KeepAfterSuccess {
		return
	}

	if err := m.store.DeleteJob(ctx, job.ID); err != nil {
		m.log.Error().Err(err).Int64("job_id", job.ID).Msg("failed to delete completed job")
		m.queueError(tj, job, err)
	}
}

// failJob handles both failure paths. A failure reported through done keeps the row for inspection;
// a returned error or panic also deletes it.
func (m *JobManager) failJob(ctx context.Context, tj *trackedJob, job types.Job, res types.JobResult) {
	m.log.Error().Err(res.Err).Int64("job_id", job.ID).Str("name", job.Name).Bool("thrown", res.Thrown).Msg("job failed")
	m.queue(tj, eventbus.Event{Kind: eventbus.Failed, Job: job, Err: res.Err})

	m.mu.Lock()
	m.untrack(job.ID)
	m.mu.Unlock()

	if !res.Thrown {
		return
	}

	m.queueError(tj, job, res.Err)
	if err := m.store.DeleteJob(ctx, job.ID); err != nil {
		m.log.Error().Err(err).Int64("job_id", job.ID).Msg("failed to delete failed job")
		m.queueError(tj, job, err)
	}
}

// checkStalled emits one stalled event per job that has been Active longer than the stall timeout.
func (m *JobManager) checkStalled(now time.Time) {
	if m.stallTimeout <= 0 {
		return
	}

	var stalled []types.Job
	m.mu.Lock()
	for _, id := range m.order {
		tj := m.jobs[id]
		if tj.job.Status != state.StatusActive || tj.job.StartedAt == nil || tj.stallReported {
			continue
		}
		if now.Sub(*tj.job.StartedAt) > m.stallTimeout {
			tj.stallReported = true
			stalled = append(stalled, tj.job)
		}
	}
	m.mu.Unlock()

	for _, job := range stalled {
		m.log.Warn().Int64("job_id", job.ID).Str("name", job.Name).Time("started_at", *job.StartedAt).Msg("job stalled")
		m.emit(eventbus.Event{Kind: eventbus.Stalled, Job: job, Progress: job.Progress})
	}
}
