// Package bus provides the in-process event hub announcing completed
// inventory effects to other subsystems. Delivery is fire-and-forget: no
// acknowledgement, no replay.
package bus

import (
	"context"
	"sync"
	"time"

	"stocksync/internal/core/id"
	"stocksync/pkg/logger"
)

// EventType identifies the kind of inventory effect.
type EventType string

const (
	EventStockChanged       EventType = "stock_changed"
	EventUnitStatusChanged  EventType = "unit_status_changed"
	EventTransactionUpdated EventType = "transaction_updated"
)

// Event is the envelope published to subscribers.
type Event struct {
	Type       EventType      `json:"type"`
	Module     string         `json:"module"`
	Operation  string         `json:"operation"`
	EntityID   string         `json:"entityId"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// subscriber is one registered consumer.
type subscriber struct {
	id    id.ID
	types map[EventType]bool // empty means all types
	ch    chan Event
}

// Bus fans events out to subscribers. It is an explicitly constructed
// instance with Start/Stop lifecycle; there is no package-level state, so
// tests and multiple isolated instances work cleanly.
type Bus struct {
	log *logger.Logger

	queue chan Event
	done  chan struct{}

	mu          sync.RWMutex
	subscribers map[id.ID]*subscriber
	started     bool
	stopped     bool

	wg sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize bounds the internal dispatch queue (default 256).
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan Event, n)
		}
	}
}

// New creates a stopped Bus. Call Start before emitting.
func New(log *logger.Logger, opts ...Option) *Bus {
	b := &Bus{
		log:         log.WithComponent("bus"),
		queue:       make(chan Event, 256),
		done:        make(chan struct{}),
		subscribers: make(map[id.ID]*subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the dispatch loop.
func (b *Bus) Start() {
	b.mu.Lock()
	if b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run()
}

// Stop tears the bus down. Pending queued events are dropped; subscriber
// channels are closed so consumers can range over them.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()

	b.mu.Lock()
	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = make(map[id.ID]*subscriber)
	b.mu.Unlock()
}

// Subscribe registers a consumer for the given event types (all types when
// none are given). The returned cancel function unregisters it.
func (b *Bus) Subscribe(buffer int, types ...EventType) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	sub := &subscriber{
		id:    id.New(),
		types: make(map[EventType]bool, len(types)),
		ch:    make(chan Event, buffer),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subscribers[sub.id]; ok {
			delete(b.subscribers, sub.id)
			close(s.ch)
		}
		b.mu.Unlock()
	}

	return sub.ch, cancel
}

// Emit enqueues an event for dispatch. Never blocks the caller: when the
// queue is full the event is dropped with a warning, matching the
// no-replay contract.
func (b *Bus) Emit(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	stopped := b.stopped
	started := b.started
	b.mu.RUnlock()
	if stopped || !started {
		return
	}

	select {
	case b.queue <- event:
	default:
		b.log.Warnw("event queue full, dropping event",
			"type", event.Type,
			"entity_id", event.EntityID,
		)
	}
}

// run is the dispatch loop.
func (b *Bus) run() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case event := <-b.queue:
			b.dispatch(event)
		}
	}
}

// dispatch fans one event out to matching subscribers.
func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if len(sub.types) > 0 && !sub.types[event.Type] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.log.Warnw("subscriber buffer full, dropping event",
				"type", event.Type,
				"subscriber", sub.id,
			)
		}
	}
}
