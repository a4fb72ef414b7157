// Package tasks holds the wire- and memory-level representation of a unit
// of work as it moves through the coordinator: submitted, assigned,
// heartbeated, and finally completed, failed, or requeued.
package tasks

import "time"

// State is the lifecycle state of a Task.
type State string

const (
	StateQueued     State = "QUEUED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Task is the metadata handle the coordinator tracks for one unit of work.
// The actual LogRecord payload lives separately in the payload store so the
// backlog itself stays lightweight.
type Task struct {
	ID            string    `json:"id"`
	State         State     `json:"state"`
	Assignee      string    `json:"assignee,omitempty"`
	AssignedAt    time.Time `json:"assigned_at,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
	Retries       int       `json:"retries"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsAssignedTo reports whether consumerID currently holds this task.
func (t *Task) IsAssignedTo(consumerID string) bool {
	return t.Assignee != "" && t.Assignee == consumerID
}

// LogRecord is the opaque payload a producer submits. The coordinator never
// inspects its contents beyond what's needed for diagnostic logging.
type LogRecord struct {
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
