package task

import "context"

// Task is an individually schedulable unit of work.
//
// Run executes the task body. It must honor ctx cancellation cooperatively:
// returning ctx.Err() (or any error wrapping it) records the run as
// cancelled rather than failed. The report callback publishes the current
// progress value; only the most recent value is retained.
type Task interface {
	Name() string
	Run(ctx context.Context, report func(progress float64)) error
}

// RunState is the engine's execution state for one task instance.
type RunState int

const (
	StateIdle       RunState = iota // no active run
	StateRunning                    // body running, cancellation not requested
	StateCancelling                 // body running, cancellation requested
)

// String returns a human-readable state name.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}
