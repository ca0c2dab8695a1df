package events

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/sony/gobreaker"
)

var log = logging.Logger("taskcycle/events")

// FalliblePublisher is a publisher whose delivery can fail, such as a sink
// backed by a network transport.
type FalliblePublisher interface {
	Publish(topic string, event Event) error
}

// BreakerPublisher adapts a FalliblePublisher to the best-effort Publisher
// contract, wrapping deliveries in a circuit breaker so a misbehaving remote
// sink stops being hammered. Delivery failures are logged, never propagated.
type BreakerPublisher struct {
	inner   FalliblePublisher
	breaker *gobreaker.CircuitBreaker
}

var _ Publisher = (*BreakerPublisher)(nil)

// NewBreakerPublisher wraps inner in a circuit breaker named for logging.
func NewBreakerPublisher(name string, inner FalliblePublisher) *BreakerPublisher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("publisher breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerPublisher{inner: inner, breaker: cb}
}

// Publish implements Publisher.
func (p *BreakerPublisher) Publish(topic string, event Event) {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.inner.Publish(topic, event)
	})
	if err != nil {
		log.Debugw("event delivery failed", "topic", topic,
			"type", event.EventType(), "error", err)
	}
}
