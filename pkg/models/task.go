package models

import "time"

// TaskStatus is the lifecycle state of a background Task dequeued by the
// heartbeat.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one unit of background work dequeued and executed by the
// heartbeat. Plan metadata (when the task originated from an approved plan)
// is encoded into Description via the internal/tasks plan-metadata codec,
// not stored as a separate field, matching the persisted layout.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Result      string     `json:"result,omitempty"`
}
