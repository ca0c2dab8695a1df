package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aristath/taskcycle/internal/dispatch"
	"github.com/aristath/taskcycle/internal/persistcache"
)

// ErrNilTriggers is returned by SetTriggers when handed a nil set. An empty
// non-nil set is valid and simply disables scheduling.
var ErrNilTriggers = errors.New("trigger set must not be nil")

// ErrBindingClosed is returned by operations on a closed binding.
var ErrBindingClosed = errors.New("trigger binding is closed")

// BindingConfig wires a Binding to its collaborators.
type BindingConfig struct {
	Name       string              // task name, for logging
	Runner     dispatch.Runner     // what a fire enqueues
	Dispatcher dispatch.Dispatcher // where fires are enqueued

	// Factory rebuilds live triggers from persisted descriptors.
	Factory *Factory

	// Config is the durable trigger-configuration record.
	Config *persistcache.Cache[[]Descriptor]

	// Defaults is used when no configuration record is persisted.
	Defaults []Descriptor
}

// Binding manages the active trigger set for one task: lazy load-or-default,
// start/stop lifecycle, fire subscription, and persistence on replacement.
//
// A fire never executes the task body; it only asks the dispatcher to queue
// the runner. Fires from a replaced trigger set are dropped: every
// subscription carries the generation it was created under, and a fire whose
// generation is no longer current is discarded.
type Binding struct {
	cfg BindingConfig

	// gen is bumped on every replacement and on close, invalidating
	// in-flight fires from the previous set.
	gen atomic.Uint64

	mu       sync.Mutex
	resolved bool
	started  bool
	closed   bool
	active   []boundTrigger
}

type boundTrigger struct {
	trig Trigger
	sub  Subscription
}

// NewBinding creates an unstarted binding.
func NewBinding(cfg BindingConfig) *Binding {
	return &Binding{cfg: cfg}
}

// GetTriggers returns the active trigger set, resolving it on first access:
// persisted descriptors when a record exists, the task's defaults otherwise.
// The result is cached until explicitly replaced via SetTriggers.
func (b *Binding) GetTriggers(ctx context.Context) ([]Trigger, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBindingClosed
	}
	if err := b.resolveLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]Trigger, len(b.active))
	for i, bt := range b.active {
		out[i] = bt.trig
	}
	return out, nil
}

// resolveLocked populates b.active from storage or defaults. Caller holds b.mu.
func (b *Binding) resolveLocked(ctx context.Context) error {
	if b.resolved {
		return nil
	}

	ds, found, err := b.cfg.Config.Get(ctx)
	if err != nil {
		return fmt.Errorf("loading trigger configuration: %w", err)
	}
	if !found {
		ds = b.cfg.Defaults
		log.Debugw("no persisted triggers, using defaults", "task", b.cfg.Name, "count", len(ds))
	}

	ts, err := b.cfg.Factory.NewSet(ds)
	if err != nil {
		return fmt.Errorf("reconstructing triggers: %w", err)
	}
	b.active = make([]boundTrigger, len(ts))
	for i, t := range ts {
		b.active[i] = boundTrigger{trig: t}
	}
	b.resolved = true
	return nil
}

// Start resolves the trigger set if needed, then subscribes and starts every
// trigger. Idempotent while started.
func (b *Binding) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBindingClosed
	}
	if err := b.resolveLocked(ctx); err != nil {
		return err
	}
	if b.started {
		return nil
	}
	b.startAllLocked()
	b.started = true
	return nil
}

// SetTriggers replaces the active set wholesale. Ordering is strict:
// stop/unsubscribe the old set, persist the new set's descriptors, then
// start/subscribe the new set. There is never a window with both sets
// live-subscribed.
//
// On persistence failure the old set is restarted and the error returned.
func (b *Binding) SetTriggers(ctx context.Context, ts []Trigger) error {
	if ts == nil {
		return ErrNilTriggers
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBindingClosed
	}

	// Invalidate in-flight fires from the old set first.
	b.gen.Add(1)
	b.stopAllLocked()

	ds := make([]Descriptor, len(ts))
	for i, t := range ts {
		ds[i] = t.Descriptor()
	}
	if err := b.cfg.Config.Set(ctx, ds); err != nil {
		// Roll back: the old set stays installed and, if the binding was
		// live, running.
		if b.started {
			b.startAllLocked()
		}
		return fmt.Errorf("persisting trigger configuration: %w", err)
	}

	// The old triggers are ours and fully detached now.
	for _, bt := range b.active {
		if cerr := bt.trig.Close(); cerr != nil {
			log.Warnw("closing replaced trigger", "task", b.cfg.Name, "error", cerr)
		}
	}

	log.Infow("trigger set replaced",
		"task", b.cfg.Name,
		"count", len(ts),
		"fingerprint", fmt.Sprintf("%016x", Fingerprint(ds)))

	b.active = make([]boundTrigger, len(ts))
	for i, t := range ts {
		b.active[i] = boundTrigger{trig: t}
	}
	b.resolved = true
	b.startAllLocked()
	b.started = true
	return nil
}

// startAllLocked subscribes and starts every active trigger. Subscribe comes
// first so a fire racing Start is never missed. Caller holds b.mu.
func (b *Binding) startAllLocked() {
	fire := b.fireFunc(b.gen.Load())
	for i := range b.active {
		bt := &b.active[i]
		if bt.sub == nil {
			bt.sub = bt.trig.Subscribe(fire)
		}
		if err := bt.trig.Start(); err != nil {
			log.Errorw("starting trigger", "task", b.cfg.Name,
				"type", bt.trig.Descriptor().Type, "error", err)
		}
	}
}

// stopAllLocked stops and unsubscribes every active trigger. Idempotent:
// safe when none were started. Caller holds b.mu.
func (b *Binding) stopAllLocked() {
	for i := range b.active {
		bt := &b.active[i]
		if bt.sub != nil {
			bt.sub.Unsubscribe()
			bt.sub = nil
		}
		bt.trig.Stop()
	}
}

// fireFunc builds the fire callback for the given generation. The callback
// only enqueues; it never runs the task body and never blocks on it.
func (b *Binding) fireFunc(gen uint64) FireFunc {
	return func() {
		if b.gen.Load() != gen {
			log.Debugw("dropping stale trigger fire", "task", b.cfg.Name)
			return
		}
		log.Debugw("trigger fired", "task", b.cfg.Name)
		b.cfg.Dispatcher.QueueForExecution(b.cfg.Runner)
	}
}

// Close stops, unsubscribes, and closes all active triggers. Safe to call
// even if the binding was never started, and safe to call twice.
func (b *Binding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.gen.Add(1)
	b.stopAllLocked()
	for _, bt := range b.active {
		if err := bt.trig.Close(); err != nil {
			log.Warnw("closing trigger", "task", b.cfg.Name, "error", err)
		}
	}
	b.active = nil
	b.started = false
	b.closed = true
	return nil
}
