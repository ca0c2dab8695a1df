package task

import "time"

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed" // body returned nil
	OutcomeCancelled Outcome = "cancelled" // body observed cooperative cancellation
	OutcomeFailed    Outcome = "failed"    // body returned any other error (or panicked)
	OutcomeAborted   Outcome = "aborted"   // engine torn down mid-run
)

// Result records the outcome of a single run. Immutable once built;
// exactly one exists as the task's last result at a time.
type Result struct {
	RunID        string    `json:"run_id"`
	TaskID       Identity  `json:"task_id"`
	Name         string    `json:"name"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Outcome      Outcome   `json:"outcome"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Duration is the wall-clock span of the run.
func (r Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
