package model

import (
	"encoding/json"
	"time"
)

// TaskStatus task execution status
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "PENDING"  // accepted by the broker, not started
	TaskStatusProgress TaskStatus = "PROGRESS" // running on a worker
	TaskStatusSuccess  TaskStatus = "SUCCESS"  // finished successfully
	TaskStatusFailure  TaskStatus = "FAILURE"  // finished with an error
)

func (s TaskStatus) String() string {
	return string(s)
}

// Final reports whether the status is terminal.
func (s TaskStatus) Final() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailure
}

// TaskResult is the cached record of one task execution attempt.
// Writes are full overwrites so duplicate or out-of-order lifecycle
// signals are safe to replay.
type TaskResult struct {
	TaskID      string                 `json:"task_id"`
	TaskName    string                 `json:"task_name"`
	Status      TaskStatus             `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"` // present only on SUCCESS
	Error       string                 `json:"error,omitempty"`  // present only on FAILURE
	Progress    int                    `json:"progress"`         // 0-100
	CurrentStep string                 `json:"current_step,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Worker      string                 `json:"worker,omitempty"`
	Retries     int                    `json:"retries"`
	ETA         *time.Time             `json:"eta,omitempty"`
}

// ToJSON converts the result to JSON bytes
func (r *TaskResult) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON converts JSON bytes to a result
func (r *TaskResult) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
