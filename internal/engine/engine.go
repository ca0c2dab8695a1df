// Package engine owns the cancellable execution state machine for one task
// instance: single-flight guard, cancellation scope lifecycle, progress
// relay, outcome classification, and result recording.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"

	"github.com/aristath/taskcycle/internal/dispatch"
	"github.com/aristath/taskcycle/internal/events"
	"github.com/aristath/taskcycle/internal/persistcache"
	"github.com/aristath/taskcycle/internal/store"
	"github.com/aristath/taskcycle/internal/task"
	"github.com/aristath/taskcycle/internal/trigger"
)

var log = logging.Logger("taskcycle/engine")

var (
	// ErrAlreadyRunning is returned by Execute when a run is in flight.
	ErrAlreadyRunning = errors.New("execution already in progress")

	// ErrNotRunning is returned by Cancel when no run is in flight.
	ErrNotRunning = errors.New("no execution in progress")

	// ErrWorkerClosed is returned by operations on a closed worker.
	ErrWorkerClosed = errors.New("worker is closed")
)

// WorkerConfig wires a Worker to its collaborators.
type WorkerConfig struct {
	Task       task.Task
	Store      store.Store
	Dispatcher dispatch.Dispatcher
	Notifier   events.Publisher

	// Factory rebuilds triggers from persisted descriptors.
	// Defaults to trigger.NewFactory().
	Factory *trigger.Factory

	// DefaultTriggers is used when no trigger configuration is persisted.
	DefaultTriggers []trigger.Descriptor

	// Clock defaults to the wall clock; tests inject a mock.
	Clock clock.Clock
}

// Worker is the lifecycle engine for a single task instance.
//
// Run state is an explicit tagged variable transitioned only inside the
// guard's critical sections: Idle -> Running -> Cancelling -> Idle. Every
// run starts fresh from Idle; there is no terminal cancelled state.
type Worker struct {
	task       task.Task
	id         task.Identity
	store      store.Store
	dispatcher dispatch.Dispatcher
	notifier   events.Publisher
	clk        clock.Clock

	binding    *trigger.Binding
	lastResult *persistcache.Cache[task.Result]

	// progress is the last-write-wins current-progress slot; nil while idle.
	progress atomic.Pointer[float64]

	mu     sync.Mutex
	state  task.RunState
	cancel context.CancelFunc
	runID  string
	start  time.Time
	closed bool
}

var _ dispatch.Runner = (*Worker)(nil)

// NewWorker builds a worker for cfg.Task. The task's identity is derived
// once here and reused for the worker's lifetime.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Factory == nil {
		cfg.Factory = trigger.NewFactory()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	id := task.IdentityOf(cfg.Task)
	w := &Worker{
		task:       cfg.Task,
		id:         id,
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		notifier:   cfg.Notifier,
		clk:        cfg.Clock,
	}

	w.lastResult = persistcache.New(
		func(ctx context.Context) (task.Result, bool, error) {
			return cfg.Store.LoadLastResult(ctx, id)
		},
		func(ctx context.Context, r task.Result) error {
			return cfg.Store.SaveLastResult(ctx, id, r)
		},
	)

	triggerConfig := persistcache.New(
		func(ctx context.Context) ([]trigger.Descriptor, bool, error) {
			return cfg.Store.LoadTriggerConfig(ctx, id)
		},
		func(ctx context.Context, ds []trigger.Descriptor) error {
			return cfg.Store.SaveTriggerConfig(ctx, id, ds)
		},
	)
	w.binding = trigger.NewBinding(trigger.BindingConfig{
		Name:       cfg.Task.Name(),
		Runner:     w,
		Dispatcher: cfg.Dispatcher,
		Factory:    cfg.Factory,
		Config:     triggerConfig,
		Defaults:   cfg.DefaultTriggers,
	})

	return w
}

// Name implements dispatch.Runner.
func (w *Worker) Name() string { return w.task.Name() }

// ID returns the task's stable identity.
func (w *Worker) ID() task.Identity { return w.id }

// State returns the current run state.
func (w *Worker) State() task.RunState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Progress returns the current progress value, or false while no run has
// reported progress.
func (w *Worker) Progress() (float64, bool) {
	p := w.progress.Load()
	if p == nil {
		return 0, false
	}
	return *p, true
}

// LastResult returns the most recent run result, loading it from storage on
// first access. found=false means the task has never completed a run.
func (w *Worker) LastResult(ctx context.Context) (task.Result, bool, error) {
	return w.lastResult.Get(ctx)
}

// Triggers returns the active trigger set, resolving it lazily.
func (w *Worker) Triggers(ctx context.Context) ([]trigger.Trigger, error) {
	return w.binding.GetTriggers(ctx)
}

// SetTriggers replaces the active trigger set and persists its descriptors.
func (w *Worker) SetTriggers(ctx context.Context, ts []trigger.Trigger) error {
	return w.binding.SetTriggers(ctx, ts)
}

// StartTriggers starts the active trigger set so fires begin enqueueing runs.
func (w *Worker) StartTriggers(ctx context.Context) error {
	return w.binding.Start(ctx)
}

// Execute runs the task body once. It blocks until the body and all
// bookkeeping finish. Only one run per worker may be in flight: a concurrent
// call fails fast with ErrAlreadyRunning.
//
// Body failures never escape: they are classified into the recorded result
// (Completed, Cancelled, or Failed) and logged. The only errors Execute
// returns are contract violations.
func (w *Worker) Execute(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWorkerClosed
	}
	if w.state != task.StateIdle {
		cur := w.state
		w.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyRunning, w.task.Name(), cur)
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.state = task.StateRunning
	w.cancel = cancel
	w.runID = uuid.NewString()
	w.start = w.clk.Now().UTC()
	runID, start := w.runID, w.start
	w.mu.Unlock()
	defer cancel()

	name := w.task.Name()
	log.Infow("executing task", "task", name, "run", runID)
	w.notifier.Publish(events.TopicExecution, events.ExecutionStartedEvent{
		RunID:     runID,
		ID:        w.id,
		Name:      name,
		Timestamp: start,
	})

	bodyErr := w.runBody(runCtx)
	end := w.clk.Now().UTC()

	res := task.Result{
		RunID:     runID,
		TaskID:    w.id,
		Name:      name,
		StartTime: start,
		EndTime:   end,
	}
	switch {
	case bodyErr == nil:
		res.Outcome = task.OutcomeCompleted
		log.Infow("task completed", "task", name, "run", runID, "duration", res.Duration())
	case errors.Is(bodyErr, context.Canceled) || errors.Is(bodyErr, context.DeadlineExceeded):
		res.Outcome = task.OutcomeCancelled
		log.Infow("task cancelled", "task", name, "run", runID)
	default:
		res.Outcome = task.OutcomeFailed
		res.ErrorMessage = bodyErr.Error()
		log.Errorw("task failed", "task", name, "run", runID, "error", bodyErr)
	}

	w.finish(ctx, res)
	return nil
}

// runBody executes the task body on its own goroutine and blocks until it
// returns. A panic in the body is converted into an error so it classifies
// as Failed rather than killing the process.
func (w *Worker) runBody(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("task body panicked: %v\n%s", p, debug.Stack())
			}
		}()
		done <- w.task.Run(ctx, w.reportProgress)
	}()
	return <-done
}

// reportProgress overwrites the current-progress slot. Last write wins; no
// history is retained.
func (w *Worker) reportProgress(p float64) {
	w.progress.Store(&p)
}

// finish records the run and returns the worker to Idle. If the worker was
// closed mid-run, Close already recorded an Aborted result and this run's
// own result is discarded.
func (w *Worker) finish(ctx context.Context, res task.Result) {
	w.mu.Lock()
	alreadyRecorded := w.closed
	w.cancel = nil
	w.state = task.StateIdle
	w.mu.Unlock()

	w.progress.Store(nil)
	if alreadyRecorded {
		return
	}

	// Bookkeeping must outlive a cancelled run context: a cancelled run
	// still gets its result persisted.
	bgCtx := context.WithoutCancel(ctx)
	if err := w.lastResult.Set(bgCtx, res); err != nil {
		log.Errorw("persisting run result", "task", res.Name, "run", res.RunID, "error", err)
	}
	w.notifier.Publish(events.TopicExecution, events.ExecutionEndedEvent{Result: res})
	w.dispatcher.OnCompleted(w)
}

// Cancel requests cooperative cancellation of the in-flight run. It does not
// block waiting for the body to stop. Fails with ErrNotRunning unless the
// worker is Running.
func (w *Worker) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != task.StateRunning {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, w.task.Name(), w.state)
	}
	w.state = task.StateCancelling
	w.cancel()
	log.Infow("cancellation requested", "task", w.task.Name(), "run", w.runID)
	return nil
}

// CancelIfRunning requests cancellation like Cancel but silently no-ops when
// no run is in flight. Intended for teardown paths.
func (w *Worker) CancelIfRunning() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != task.StateRunning {
		return
	}
	w.state = task.StateCancelling
	w.cancel()
}

// Close tears the worker down. A run in flight is recorded as Aborted —
// distinct from Cancelled, which means cancellation was requested — and its
// cancellation scope is released. Triggers are always stopped and
// unsubscribed. Idempotent.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true

	var aborted *task.Result
	if w.state != task.StateIdle {
		aborted = &task.Result{
			RunID:     w.runID,
			TaskID:    w.id,
			Name:      w.task.Name(),
			StartTime: w.start,
			EndTime:   w.clk.Now().UTC(),
			Outcome:   task.OutcomeAborted,
		}
		w.cancel()
	}
	w.mu.Unlock()

	if aborted != nil {
		if err := w.lastResult.Set(context.Background(), *aborted); err != nil {
			log.Errorw("persisting aborted result", "task", aborted.Name, "error", err)
		}
		log.Warnw("worker closed mid-run", "task", aborted.Name, "run", aborted.RunID)
	}
	return w.binding.Close()
}
