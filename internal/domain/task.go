package domain

import "time"

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// ParseTaskStatus maps a status value onto the canonical vocabulary.
// The legacy "doing" value reads as in_progress.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch s {
	case "todo":
		return TaskStatusTodo, true
	case "in_progress", "doing":
		return TaskStatusInProgress, true
	case "done":
		return TaskStatusDone, true
	default:
		return "", false
	}
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Task is the derived view of a task, folded from lifecycle events.
type Task struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Status        TaskStatus   `json:"status"`
	Priority      TaskPriority `json:"priority,omitempty"`
	Assignee      string       `json:"assignee,omitempty"`
	DueDate       *time.Time   `json:"due_date,omitempty"`
	Completed     bool         `json:"completed"`
	SourceEventID string       `json:"source_event_id"`
}

// TaskRow is the persisted task row written by the automation executor.
type TaskRow struct {
	ID            string       `json:"id" db:"id"`
	TransactionID string       `json:"transaction_id" db:"transaction_id"`
	Title         string       `json:"title" db:"title"`
	Status        TaskStatus   `json:"status" db:"status"`
	Priority      TaskPriority `json:"priority" db:"priority"`
	DueDate       *time.Time   `json:"due_date,omitempty" db:"due_date"`
	Assignee      *string      `json:"assignee,omitempty" db:"assignee"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// TaskPatch holds the mutable columns of a task row; nil fields are kept.
type TaskPatch struct {
	Status   *TaskStatus
	Assignee *string
	DueDate  *time.Time
}
