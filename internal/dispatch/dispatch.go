// Package dispatch decides when queued tasks actually get a worker.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/semaphore"
)

var log = logging.Logger("taskcycle/dispatch")

// Runner is the unit a dispatcher executes. The engine's Worker implements
// it; Execute blocks until the run and its bookkeeping finish.
type Runner interface {
	Name() string
	Execute(ctx context.Context) error
}

// Dispatcher receives "run now" requests from trigger fires and "completed"
// notifications from the engine.
type Dispatcher interface {
	// QueueForExecution requests a run. Fire-and-forget: callers never
	// block on the task body.
	QueueForExecution(r Runner)

	// OnCompleted is called once per run, after the result has been
	// persisted.
	OnCompleted(r Runner)
}

// QueueDispatcher is an in-process FIFO dispatcher with bounded concurrency.
// A runner already sitting in the queue is not queued twice.
type QueueDispatcher struct {
	queue chan Runner
	sem   *semaphore.Weighted

	mu      sync.Mutex
	pending map[Runner]struct{}

	wg        sync.WaitGroup
	completed atomic.Uint64
}

// NewQueueDispatcher builds a dispatcher with the given queue length and
// concurrent-run limit. Non-positive arguments fall back to defaults.
func NewQueueDispatcher(queueLen, maxConcurrent int) *QueueDispatcher {
	if queueLen <= 0 {
		queueLen = 64
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &QueueDispatcher{
		queue:   make(chan Runner, queueLen),
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		pending: make(map[Runner]struct{}),
	}
}

// Start launches the dispatch loop. It runs until ctx is cancelled.
func (d *QueueDispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.loop(ctx)
}

func (d *QueueDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-d.queue:
			d.mu.Lock()
			delete(d.pending, r)
			d.mu.Unlock()

			if err := d.sem.Acquire(ctx, 1); err != nil {
				return
			}
			d.wg.Add(1)
			go func(r Runner) {
				defer d.wg.Done()
				defer d.sem.Release(1)
				if err := r.Execute(ctx); err != nil {
					// Single-flight rejection: the runner was already busy.
					log.Debugw("run rejected", "task", r.Name(), "error", err)
				}
			}(r)
		}
	}
}

// QueueForExecution implements Dispatcher. If the queue is full the request
// is dropped with a warning; triggers will fire again.
func (d *QueueDispatcher) QueueForExecution(r Runner) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, queued := d.pending[r]; queued {
		log.Debugw("already queued, ignoring", "task", r.Name())
		return
	}
	select {
	case d.queue <- r:
		d.pending[r] = struct{}{}
	default:
		log.Warnw("execution queue full, dropping request", "task", r.Name())
	}
}

// OnCompleted implements Dispatcher.
func (d *QueueDispatcher) OnCompleted(r Runner) {
	d.completed.Add(1)
	log.Debugw("run completed", "task", r.Name())
}

// CompletedRuns reports how many runs have completed since startup.
func (d *QueueDispatcher) CompletedRuns() uint64 {
	return d.completed.Load()
}

// Wait blocks until the dispatch loop and all in-flight runs have finished.
// Call after cancelling the context passed to Start.
func (d *QueueDispatcher) Wait() {
	d.wg.Wait()
}
