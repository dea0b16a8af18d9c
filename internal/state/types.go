package state

import "time"

// Status is the lifecycle status recorded in RunState.
type Status string

// RunState status values.
const (
	StatusInitialized          Status = "initialized"
	StatusRunning              Status = "running"
	StatusCompleted            Status = "completed"
	StatusError                Status = "error"
	StatusStuck                Status = "stuck"
	StatusCancelled            Status = "cancelled"
	StatusMaxIterationsReached Status = "max_iterations_reached"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusStuck, StatusCancelled, StatusMaxIterationsReached:
		return true
	}
	return false
}

// RunState is the singular, process-wide record of the current run, stored
// in .ralph/state.json.
type RunState struct {
	Iteration     int       `json:"iteration"`
	MaxIterations int       `json:"maxIterations"`
	Status        Status    `json:"status"`
	Feature       string    `json:"feature,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
}

// Task is a single unit of agent work inside a TaskFile.
type Task struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Acceptance  []string `json:"acceptance,omitempty"`
	Branch      string   `json:"branch,omitempty"`
	Passes      bool     `json:"passes"`
}

// TaskFile is the task list for one unit of work. The agent edits it; ralph
// only reads it to decide whether open work remains.
type TaskFile struct {
	Tasks []Task `json:"tasks"`
}

// QueueFile holds the names of pending units of work in execution order.
type QueueFile struct {
	Items []string `json:"items"`
}

// Lock records which runner process currently owns execution.
type Lock struct {
	Owner      string    `json:"owner"`
	PID        int       `json:"pid"`
	Unit       string    `json:"unit"`
	AcquiredAt time.Time `json:"acquiredAt"`
}
