// Package events carries execution lifecycle notifications between the
// engine and arbitrary observers.
package events

import (
	"sync"
)

// Publisher is the engine-facing side of the bus. Publishing is best-effort:
// implementations must never block the engine and must never surface errors
// into a run.
type Publisher interface {
	Publish(topic string, event Event)
}

// Bus is a channel-based pub-sub bus with topic subscriptions.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]chan Event
	closed bool
}

var _ Publisher = (*Bus)(nil)

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]chan Event),
	}
}

// Subscribe creates a subscription to a topic. Returns a read-only channel
// that receives events published to it. bufSize defaults to 256 if <= 0.
func (b *Bus) Subscribe(topic string, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}

	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// Publish sends an event to all subscribers of the topic. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that subscriber.
func (b *Bus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up, drop for it.
		}
	}
}

// Close closes the bus and all subscriber channels. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
}
