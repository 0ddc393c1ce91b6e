// Package notify carries best-effort side-channel notifications: an
// in-process event bus for UI subscribers and a webhook dispatcher.
// Neither is ever awaited for correctness.
package notify

import (
	"sync"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// Event is one named notification with its payload.
type Event struct {
	Name      string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

const subscriberBuffer = 32

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than blocking publishers.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	log    waLog.Logger
}

// NewBus creates a new Bus.
func NewBus(log waLog.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		log:  log.Sub("Bus"),
	}
}

// Publish broadcasts an event to all subscribers without blocking.
func (b *Bus) Publish(name string, payload interface{}) {
	evt := Event{Name: name, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.log.Debugf("Subscriber %d full, dropping %s", id, name)
		}
	}
}

// Subscribe registers a new subscriber and returns its channel and an
// unsubscribe function.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
