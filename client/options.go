package client

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/internal/eventbus"
)

type Option func(*JobManager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *JobManager) {
		m.log = log.With().Str("component", "scheduler").Logger()
	}
}

// WithEventBus shares an existing bus, e.g. one the metrics collector is already attached to.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(m *JobManager) {
		m.bus = bus
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(m *JobManager) {
		if d > 0 {
			m.tickInterval = d
		}
	}
}

// WithStallTimeout emits a stalled event for jobs Active longer than d. Zero disables the check.
func WithStallTimeout(d time.Duration) Option {
	return func(m *JobManager) {
		m.stallTimeout = d
	}
}

// WithClock replaces time.Now for every timestamp the manager takes.
func WithClock(now func() time.Time) Option {
	return func(m *JobManager) {
		if now != nil {
			m.now = now
		}
	}
}

type enqueueOptions struct {
	addIfOverConcurrencyLimit bool
	keepAfterSuccess          bool
}

type EnqueueOption func(*enqueueOptions)

// WithAddIfOverConcurrencyLimit controls whether a job is persisted when its task already has as many
// pending jobs as its concurrency limit. Defaults to true.
func WithAddIfOverConcurrencyLimit(add bool) EnqueueOption {
	return func(o *enqueueOptions) {
		o.addIfOverConcurrencyLimit = add
	}
}

// WithKeepAfterSuccess retains the row of a successful job instead of deleting it. Defaults to false.
func WithKeepAfterSuccess(keep bool) EnqueueOption {
	return func(o *enqueueOptions) {
		o.keepAfterSuccess = keep
	}
}
