// Package eventbus is the typed publish/subscribe channel for job lifecycle events.
//
// Listeners registered with On run synchronously on the emitting goroutine, in
// registration order, so the events of one job are observed in the order the
// scheduler persisted them. The bus holds no lock while a listener runs, so a
// listener may call On, Off, Emit or the scheduler that emitted the event. Subscribe offers a buffered channel for consumers
// that must never slow the scheduler down; slow subscribers drop events.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/types"
)

type Kind int

const (
	Enqueued Kind = iota + 1
	Processing
	Progress
	Completed
	Failed
	Stalled
	Error
)

var AllKinds = []Kind{Enqueued, Processing, Progress, Completed, Failed, Stalled, Error}

func (k Kind) String() string {
	switch k {
	case Enqueued:
		return "enqueued"
	case Processing:
		return "processing"
	case Progress:
		return "progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Stalled:
		return "stalled"
	case Error:
		return "error"
	}
	return "unknown"
}

// Event describes one lifecycle step. Job is a snapshot taken when the event was emitted;
// it is the zero value for errors that are not tied to a job.
type Event struct {
	Kind     Kind
	Job      types.Job
	Progress int
	Err      error
	Time     time.Time
}

type Listener func(Event)

type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

type subscriber struct {
	ch    chan Event
	kinds map[Kind]struct{}
}

type Bus struct {
	mu        sync.RWMutex
	listeners map[Kind][]listenerEntry
	subs      map[uint64]*subscriber
	seq       atomic.Uint64
	log       zerolog.Logger
}

func New(log zerolog.Logger) *Bus {
	return &Bus{
		listeners: make(map[Kind][]listenerEntry),
		subs:      make(map[uint64]*subscriber),
		log:       log.With().Str("component", "eventbus").Logger(),
	}
}

// On registers fn for events of kind and returns the id needed to remove it.
func (b *Bus) On(kind Kind, fn Listener) ListenerID {
	id := ListenerID(b.seq.Add(1))
	b.mu.Lock()
	b.listeners[kind] = append(b.listeners[kind], listenerEntry{id: id, fn: fn})
	b.mu.Unlock()
	return id
}

// Off removes a listener. It reports false when id is not registered for kind.
func (b *Bus) Off(kind Kind, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.listeners[kind]
	for i, entry := range entries {
		if entry.id == id {
			next := make([]listenerEntry, 0, len(entries)-1)
			next = append(next, entries[:i]...)
			next = append(next, entries[i+1:]...)
			b.listeners[kind] = next
			return true
		}
	}
	return false
}

// Emit delivers e to every listener of its kind and to matching subscribers.
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	entries := b.listeners[e.Kind]
	b.mu.RUnlock()

	for _, entry := range entries {
		b.call(entry, e)
	}

	// unsubscribe closes under the write lock, so no channel closes mid-send
	b.mu.RLock()
	for _, sub := range b.subs {
		if _, ok := sub.kinds[e.Kind]; ok || len(sub.kinds) == 0 {
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
	b.mu.RUnlock()
}

func (b *Bus) call(entry listenerEntry, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event", e.Kind.String()).
				Uint64("listener", uint64(entry.id)).
				Msg("event listener panicked")
		}
	}()
	entry.fn(e)
}

// Subscribe returns a buffered channel receiving events of the given kinds (all kinds when none are given).
func (b *Bus) Subscribe(buffer int, kinds ...Kind) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &subscriber{ch: make(chan Event, buffer), kinds: make(map[Kind]struct{}, len(kinds))}
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}
