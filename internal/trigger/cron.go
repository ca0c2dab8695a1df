package trigger

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// CronTrigger fires on a cron schedule. The timing policy itself is
// delegated to robfig/cron; this type only adapts it to the Trigger
// contract.
type CronTrigger struct {
	fireSource

	expr string

	mu     sync.Mutex
	runner *cron.Cron
	closed bool
}

// NewCronTrigger validates expr (standard 5-field cron syntax) and returns
// an unstarted trigger.
func NewCronTrigger(expr string) (*CronTrigger, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &CronTrigger{expr: expr}, nil
}

// Descriptor implements Trigger.
func (t *CronTrigger) Descriptor() Descriptor {
	return Descriptor{Type: TypeCron, Expression: t.expr}
}

// Start begins the schedule. Idempotent while running.
func (t *CronTrigger) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("cron trigger %q is closed", t.expr)
	}
	if t.runner != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(t.expr, t.fire); err != nil {
		return fmt.Errorf("scheduling %q: %w", t.expr, err)
	}
	c.Start()
	t.runner = c
	return nil
}

// Stop halts the schedule without discarding subscribers. Safe to call when
// not started.
func (t *CronTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runner != nil {
		t.runner.Stop()
		t.runner = nil
	}
}

// Close stops the schedule and drops all subscribers. The trigger cannot be
// restarted afterwards.
func (t *CronTrigger) Close() error {
	t.Stop()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.clearSubscribers()
	return nil
}
