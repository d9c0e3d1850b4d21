package tender

import (
	"errors"
	"time"
)

// TaskStatus represents the lifecycle state of an acquisition task.
type TaskStatus string

// Task status values. Completed and error are terminal.
const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

// Terminal reports whether no further transitions can happen.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskError
}

// ErrTaskNotFound is returned when a task id was never submitted.
var ErrTaskNotFound = errors.New("task not found")

// TaskState is the pollable view of one acquisition run.
type TaskState struct {
	ID       string     `json:"task_id"`
	RunID    string     `json:"run_id,omitempty"`
	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message"`
	Result   *string    `json:"result"`
	Error    *string    `json:"error"`
	Started  time.Time  `json:"started_at"`
	Finished *time.Time `json:"finished_at,omitempty"`
}
