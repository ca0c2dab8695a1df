package events

import (
	"time"

	"github.com/aristath/taskcycle/internal/task"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() task.Identity
}

// Topic constants
const (
	TopicExecution = "execution"
)

// Event type constants
const (
	EventTypeExecutionStarted = "execution.started"
	EventTypeExecutionEnded   = "execution.ended"
)

// ExecutionStartedEvent is published when a run begins.
type ExecutionStartedEvent struct {
	RunID     string
	ID        task.Identity
	Name      string
	Timestamp time.Time
}

func (e ExecutionStartedEvent) EventType() string     { return EventTypeExecutionStarted }
func (e ExecutionStartedEvent) TaskID() task.Identity { return e.ID }

// ExecutionEndedEvent is published when a run finishes, whatever the outcome.
type ExecutionEndedEvent struct {
	Result task.Result
}

func (e ExecutionEndedEvent) EventType() string     { return EventTypeExecutionEnded }
func (e ExecutionEndedEvent) TaskID() task.Identity { return e.Result.TaskID }
