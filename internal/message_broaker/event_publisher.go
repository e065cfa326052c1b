package message_broaker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/internal/eventbus"
	"github.com/talkvault/talkvault/internal/state"
)

const publishTimeout = 5 * time.Second

// EventMessage is the JSON body published for every lifecycle event.
type EventMessage struct {
	Instance string          `json:"instance"`
	Kind     string          `json:"kind"`
	JobID    int64           `json:"job_id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Status   state.JobStatus `json:"status,omitempty"`
	Progress int             `json:"progress"`
	Error    string          `json:"error,omitempty"`
	Time     time.Time       `json:"time"`
}

// RoutingKey is the topic an event of kind is published under, e.g. "jobs.completed".
func RoutingKey(kind eventbus.Kind) string {
	return "jobs." + kind.String()
}

// EventPublisher forwards bus events to a broker from its own goroutine. It reads from a buffered
// subscription, so a slow broker drops events instead of stalling the scheduler.
type EventPublisher struct {
	broker   MessageBroker
	bus      *eventbus.Bus
	instance string
	buffer   int
	log      zerolog.Logger

	unsubscribe func()
	wg          sync.WaitGroup
}

func NewEventPublisher(broker MessageBroker, bus *eventbus.Bus, instance string, buffer int, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		broker:   broker,
		bus:      bus,
		instance: instance,
		buffer:   buffer,
		log:      log.With().Str("component", "event-publisher").Logger(),
	}
}

func (p *EventPublisher) Start(ctx context.Context) {
	events, unsubscribe := p.bus.Subscribe(p.buffer)
	p.unsubscribe = unsubscribe

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for e := range events {
			p.publish(ctx, e)
		}
	}()
}

// Stop unsubscribes and waits until events already buffered have been published.
func (p *EventPublisher) Stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.wg.Wait()
}

func (p *EventPublisher) publish(ctx context.Context, e eventbus.Event) {
	msg := EventMessage{
		Instance: p.instance,
		Kind:     e.Kind.String(),
		JobID:    e.Job.ID,
		Name:     e.Job.Name,
		Status:   e.Job.Status,
		Progress: e.Progress,
		Time:     e.Time,
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		p.log.Error().Err(err).Str("event", msg.Kind).Msg("failed to encode event")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.broker.Publish(pubCtx, RoutingKey(e.Kind), body); err != nil {
		p.log.Warn().Err(err).Str("event", msg.Kind).Int64("job_id", msg.JobID).Msg("failed to publish event")
	}
}
