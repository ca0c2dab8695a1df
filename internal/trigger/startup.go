package trigger

import (
	"fmt"
	"sync"
	"time"
)

// startupDelayOption names the optional delay between Start and the fire.
const startupDelayOption = "delay"

// StartupTrigger fires exactly once per Start, optionally after a delay.
// Useful for tasks that should run shortly after the host process boots.
type StartupTrigger struct {
	fireSource

	delay time.Duration

	mu      sync.Mutex
	pending *time.Timer
	closed  bool
}

// NewStartupTrigger builds a startup trigger. opts may carry a "delay"
// duration string (e.g. "30s"); absent means fire immediately on Start.
func NewStartupTrigger(opts map[string]string) (*StartupTrigger, error) {
	var delay time.Duration
	if raw, ok := opts[startupDelayOption]; ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid startup delay %q: %w", raw, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("startup delay must not be negative, got %s", d)
		}
		delay = d
	}
	return &StartupTrigger{delay: delay}, nil
}

// Descriptor implements Trigger.
func (t *StartupTrigger) Descriptor() Descriptor {
	d := Descriptor{Type: TypeStartup}
	if t.delay > 0 {
		d.Options = map[string]string{startupDelayOption: t.delay.String()}
	}
	return d
}

// Start arms the one-shot fire. Idempotent while armed.
func (t *StartupTrigger) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("startup trigger is closed")
	}
	if t.pending != nil {
		return nil
	}
	t.pending = time.AfterFunc(t.delay, t.fire)
	return nil
}

// Stop disarms a not-yet-delivered fire. Safe to call when not started.
func (t *StartupTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// Close disarms the trigger and drops all subscribers.
func (t *StartupTrigger) Close() error {
	t.Stop()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.clearSubscribers()
	return nil
}
