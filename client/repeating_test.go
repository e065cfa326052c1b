package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkvault/talkvault/internal/eventbus"
	"github.com/talkvault/talkvault/types"
)

func TestAddRepeatingJob_Errors(t *testing.T) {
	m, _ := newTestManager(t)

	assert.ErrorIs(t, m.AddRepeatingJob("reconcile", nil, types.Every(time.Minute)), ErrWorkerNotFound)

	require.NoError(t, m.AddWorker("reconcile", succeed))
	assert.ErrorIs(t, m.AddRepeatingJob("reconcile", nil, types.Every(0)), ErrInvalidTrigger)
	assert.ErrorIs(t, m.AddRepeatingJob("reconcile", nil, types.Every(-time.Second)), ErrInvalidTrigger)
	assert.ErrorIs(t, m.AddRepeatingJob("reconcile", nil, types.Cron("")), ErrInvalidTrigger)
	assert.ErrorIs(t, m.AddRepeatingJob("reconcile", nil, types.TriggerOptions{Mode: "weekly"}), ErrInvalidTrigger)

	require.NoError(t, m.AddRepeatingJob("reconcile", nil, types.Every(15*time.Minute)))
	assert.ErrorIs(t, m.AddRepeatingJob("reconcile", map[string]bool{"full": true}, types.Every(15*time.Minute)), ErrDuplicateTrigger)
	require.NoError(t, m.AddRepeatingJob("reconcile", nil, types.Cron("0 3 * * *")))

	triggers := m.Triggers()
	require.Len(t, triggers, 2)
	assert.Equal(t, types.Every(15*time.Minute), triggers[0].Options)
	assert.Nil(t, triggers[0].LastRunAt)
}

func TestRepeatingJob_FiresOnInterval(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m, _ := newTestManager(t, WithClock(clock.Now))
	require.NoError(t, m.AddWorker("ping", succeed))
	require.NoError(t, m.AddRepeatingJob("ping", map[string]string{"msg": "hi"}, types.Every(time.Second)))
	events := record(m, eventbus.Enqueued)

	t0 := clock.Now()
	start(t, m)
	require.Eventually(t, func() bool { return len(events.of(eventbus.Enqueued)) == 1 }, waitFor, poll)

	for elapsed := 100 * time.Millisecond; elapsed <= 3500*time.Millisecond; elapsed += 100 * time.Millisecond {
		now := t0.Add(elapsed)
		clock.Set(now)
		m.Tick(ctx, now)
	}

	enqueued := events.of(eventbus.Enqueued)
	require.Len(t, enqueued, 4)
	assert.Len(t, enqueued[1:], 3, "exactly one fire per elapsed second after the first")
	for _, e := range enqueued {
		assert.Equal(t, "ping", e.Job.Name)
		assert.JSONEq(t, `{"msg":"hi"}`, string(e.Job.Data))
	}

	last := m.Triggers()[0].LastRunAt
	require.NotNil(t, last)
	assert.Equal(t, t0.Add(3*time.Second), *last)
}

func TestRepeatingJob_Cron(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m, _ := newTestManager(t, WithClock(clock.Now))
	require.NoError(t, m.AddWorker("reconcile", succeed))
	require.NoError(t, m.AddRepeatingJob("reconcile", nil, types.Cron("0 3 * * *")))
	events := record(m, eventbus.Enqueued)
	start(t, m)

	// never ran, so the most recent 03:00 already counts as due
	require.Eventually(t, func() bool { return len(events.of(eventbus.Enqueued)) == 1 }, waitFor, poll)

	day := clock.Now()
	m.Tick(ctx, day.Add(time.Hour))
	assert.Len(t, events.of(eventbus.Enqueued), 1)

	next := time.Date(day.Year(), day.Month(), day.Day()+1, 3, 0, 0, 0, day.Location())
	m.Tick(ctx, next)
	assert.Len(t, events.of(eventbus.Enqueued), 2)
}

func TestRepeatingJob_BadCronReportsAndOthersFire(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m, _ := newTestManager(t, WithClock(clock.Now))
	require.NoError(t, m.AddWorker("metadata", succeed))
	require.NoError(t, m.AddWorker("thumbnail-hash", succeed))
	require.NoError(t, m.AddRepeatingJob("metadata", nil, types.Cron("every tuesday")))
	require.NoError(t, m.AddRepeatingJob("thumbnail-hash", nil, types.Every(time.Minute)))
	events := record(m, eventbus.Enqueued, eventbus.Error)

	start(t, m)
	require.Eventually(t, func() bool { return len(events.of(eventbus.Enqueued)) == 1 }, waitFor, poll)
	m.Tick(ctx, clock.Now().Add(time.Minute))

	enqueued := events.of(eventbus.Enqueued)
	require.Len(t, enqueued, 2)
	for _, e := range enqueued {
		assert.Equal(t, "thumbnail-hash", e.Job.Name)
	}

	errs := events.of(eventbus.Error)
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Equal(t, "metadata", e.Job.Name)
		assert.Contains(t, e.Err.Error(), "every tuesday")
	}

	for _, tr := range m.Triggers() {
		if tr.Name == "metadata" {
			assert.Nil(t, tr.LastRunAt)
		}
	}
}
