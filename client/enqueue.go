package client

import (
	"context"
	"fmt"

	"github.com/talkvault/talkvault/internal/constants"
	"github.com/talkvault/talkvault/internal/eventbus"
	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/types"
)

// EnqueueJob persists a Waiting job for the registered worker name.
//
// An unknown name or an unencodable payload is returned as an error and nothing is persisted.
// A nil record with a nil error means the job was not scheduled: either the task already has as many
// pending jobs as its concurrency limit and WithAddIfOverConcurrencyLimit(false) was given, or the store
// failed (logged and emitted as an error event).
func (m *JobManager) EnqueueJob(ctx context.Context, name string, data any, opts ...EnqueueOption) (*JobRecord, error) {
	w, ok := m.workers.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrWorkerNotFound, name)
	}

	payload, err := types.MarshalPayload(data)
	if err != nil {
		return nil, err
	}

	options := enqueueOptions{addIfOverConcurrencyLimit: true}
	for _, opt := range opts {
		opt(&options)
	}

	if pending := m.pendingCount(name); pending >= w.limit && !options.addIfOverConcurrencyLimit {
		m.log.Debug().Str("name", name).Int("pending", pending).Int("limit", w.limit).Msg("concurrency limit reached, job not enqueued")
		return nil, nil
	}

	job, err := m.store.CreateJob(ctx, name, payload, options.keepAfterSuccess)
	if err != nil {
		m.log.Error().Err(err).Str("name", name).Msg("failed to persist job")
		m.reportError(types.Job{Name: name, Data: payload, Status: state.StatusWaiting}, err)
		return nil, nil
	}

	// enqueued is queued before the job becomes visible to the loop, so it precedes processing
	tj := &trackedJob{job: *job}
	tj.persist.Lock()
	m.queue(tj, eventbus.Event{Kind: eventbus.Enqueued, Job: *job})
	m.mu.Lock()
	m.track(tj)
	m.mu.Unlock()
	tj.persist.Unlock()

	m.log.Debug().Int64("job_id", job.ID).Str("name", name).Msg("job enqueued")
	m.flush(tj)
	m.signal()

	return &JobRecord{Job: *job, manager: m}, nil
}

// pendingCount is the number of Waiting or Active jobs of name in the working set.
func (m *JobManager) pendingCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range m.order {
		job := m.jobs[id].job
		if job.Name == name && (job.Status == state.StatusWaiting || job.Status == state.StatusActive) {
			n++
		}
	}
	return n
}

// UpdateJobProgress records progress for an Active job. It returns false when progress is outside
// [0, 100], when the job is not in the working set or not Active, or when the store rejects the write.
func (m *JobManager) UpdateJobProgress(ctx context.Context, id int64, progress int) bool {
	if progress < constants.MinProgress || progress > constants.MaxProgress {
		return false
	}

	tj, ok := m.lookup(id)
	if !ok {
		return false
	}

	defer m.flush(tj)
	tj.persist.Lock()
	defer tj.persist.Unlock()

	m.mu.Lock()
	if tj.job.Status != state.StatusActive {
		m.mu.Unlock()
		return false
	}
	tj.job.Progress = progress
	snapshot := tj.job
	m.mu.Unlock()

	if err := m.store.UpdateJob(ctx, snapshot); err != nil {
		m.log.Error().Err(err).Int64("job_id", id).Int("progress", progress).Msg("failed to persist progress")
		m.queueError(tj, snapshot, err)
		return false
	}

	m.queue(tj, eventbus.Event{Kind: eventbus.Progress, Job: snapshot, Progress: progress})
	return true
}
