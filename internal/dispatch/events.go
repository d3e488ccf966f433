package dispatch

import (
	"sync"
	"time"

	"github.com/memogarden/memogarden/internal/ids"
)

// Event is one fan-out record delivered to subscribers after a successful
// commit.
type Event struct {
	Kind      string
	Scope     string
	Payload   any
	At        time.Time
}

// EventBufferSize is the bounded per-subscriber queue depth. Delivery is
// best-effort; sizing beyond this only trades memory for tolerance of a
// slow consumer.
const EventBufferSize = 256

// Subscriber is one registered event listener.
type Subscriber struct {
	ID     string
	Kinds  map[string]bool // empty = all kinds
	Scopes map[string]bool // empty = all scopes
	ch     chan Event
}

// Events returns the channel to range over for delivered events. Closed
// when the subscriber unregisters.
func (s *Subscriber) Events() <-chan Event { return s.ch }

func (s *Subscriber) interested(e Event) bool {
	if len(s.Kinds) > 0 && !s.Kinds[e.Kind] {
		return false
	}
	if len(s.Scopes) > 0 && !s.Scopes[e.Scope] {
		return false
	}
	return true
}

// EventBus fans events out to registered subscribers. Delivery is
// best-effort: a full subscriber queue drops the oldest event rather than
// blocking the publisher.
type EventBus struct {
	mu          sync.Mutex
	subscribers map[string]*Subscriber
	onDrop      func(sub string, e Event)
}

// NewEventBus builds an EventBus. onDrop, if non-nil, is called whenever
// an overflowing subscriber queue drops an event, so the caller can
// record a SystemEvent fact documenting the drop.
func NewEventBus(onDrop func(sub string, e Event)) *EventBus {
	return &EventBus{subscribers: map[string]*Subscriber{}, onDrop: onDrop}
}

// Subscribe registers a new subscriber and returns it; callers must
// eventually call Unsubscribe.
func (b *EventBus) Subscribe(id string, kinds, scopes []string) *Subscriber {
	sub := &Subscriber{
		ID:     id,
		Kinds:  toSet(kinds),
		Scopes: toSet(scopes),
		ch:     make(chan Event, EventBufferSize),
	}
	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Publish fans e out to every interested subscriber, dropping the oldest
// buffered event for any subscriber whose queue is full rather than
// blocking.
func (b *EventBus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = ids.NowFunc().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		if !sub.interested(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			select {
			case old := <-sub.ch:
				if b.onDrop != nil {
					b.onDrop(sub.ID, old)
				}
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
}

func toSet(vals []string) map[string]bool {
	if len(vals) == 0 {
		return nil
	}
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}
