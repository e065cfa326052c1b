package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/talkvault/talkvault/internal/trigger"
	"github.com/talkvault/talkvault/types"
)

// AddRepeatingJob registers a trigger that enqueues name with data whenever opts is due.
// The worker must already be registered and the same (name, opts) pair may be added only once.
// Cron expressions are parsed on every tick, so a bad expression is reported as an error event there.
func (m *JobManager) AddRepeatingJob(name string, data any, opts types.TriggerOptions) error {
	if _, ok := m.workers.get(name); !ok {
		return fmt.Errorf("%w: %q", ErrWorkerNotFound, name)
	}
	if err := trigger.Validate(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}

	payload, err := types.MarshalPayload(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.triggers {
		if t.Name == name && t.Options == opts {
			return fmt.Errorf("%w: %q %s", ErrDuplicateTrigger, name, opts)
		}
	}
	m.triggers = append(m.triggers, &types.RepeatingTrigger{
		Name:    name,
		Options: opts,
		Data:    payload,
	})

	m.log.Debug().Str("name", name).Str("trigger", opts.String()).Msg("repeating job registered")
	return nil
}

// Triggers returns a copy of the registered repeating triggers.
func (m *JobManager) Triggers() []types.RepeatingTrigger {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.RepeatingTrigger, 0, len(m.triggers))
	for _, t := range m.triggers {
		c := *t
		if t.LastRunAt != nil {
			last := *t.LastRunAt
			c.LastRunAt = &last
		}
		out = append(out, c)
	}
	return out
}

type firing struct {
	name string
	data json.RawMessage
	err  error
}

// evaluateTriggers enqueues every due trigger. lastRunAt moves to now even when the enqueue fails,
// so a broken store does not turn into a re-trigger on every tick.
func (m *JobManager) evaluateTriggers(ctx context.Context, now time.Time) {
	var firings []firing

	m.mu.Lock()
	for _, t := range m.triggers {
		ok, err := trigger.IsDue(t.Options, t.LastRunAt, now)
		if err != nil {
			firings = append(firings, firing{name: t.Name, err: fmt.Errorf("repeating job %q: %w", t.Name, err)})
			continue
		}
		if !ok {
			continue
		}
		fired := now
		t.LastRunAt = &fired
		firings = append(firings, firing{name: t.Name, data: t.Data})
	}
	m.mu.Unlock()

	for _, f := range firings {
		if f.err != nil {
			m.log.Error().Err(f.err).Msg("skipping repeating job for this tick")
			m.reportError(types.Job{Name: f.name}, f.err)
			continue
		}
		if _, err := m.EnqueueJob(ctx, f.name, f.data); err != nil {
			m.log.Error().Err(err).Str("name", f.name).Msg("failed to enqueue repeating job")
		}
	}
}
