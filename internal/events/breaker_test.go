package events

import (
	"errors"
	"sync/atomic"
	"testing"
)

// flakySink fails until told otherwise.
type flakySink struct {
	failing  atomic.Bool
	attempts atomic.Int32
}

func (s *flakySink) Publish(topic string, event Event) error {
	s.attempts.Add(1)
	if s.failing.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestBreakerPublisher_DeliversWhenHealthy(t *testing.T) {
	sink := &flakySink{}
	p := NewBreakerPublisher("test", sink)

	p.Publish(TopicExecution, startedEvent("ok"))
	if sink.attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", sink.attempts.Load())
	}
}

func TestBreakerPublisher_OpensAfterConsecutiveFailures(t *testing.T) {
	sink := &flakySink{}
	sink.failing.Store(true)
	p := NewBreakerPublisher("test", sink)

	// Five consecutive failures trip the breaker; later publishes are
	// short-circuited without touching the sink.
	for i := 0; i < 5; i++ {
		p.Publish(TopicExecution, startedEvent("fail"))
	}
	before := sink.attempts.Load()
	if before != 5 {
		t.Fatalf("attempts before open = %d, want 5", before)
	}

	p.Publish(TopicExecution, startedEvent("rejected"))
	if sink.attempts.Load() != before {
		t.Error("open breaker still hit the sink")
	}
}

func TestBreakerPublisher_NeverPanicsOrPropagates(t *testing.T) {
	sink := &flakySink{}
	sink.failing.Store(true)
	p := NewBreakerPublisher("test", sink)

	// The Publisher contract is best-effort: this must simply not blow up.
	for i := 0; i < 20; i++ {
		p.Publish(TopicExecution, startedEvent("noisy"))
	}
}
