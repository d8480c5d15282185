package domain

import (
	"time"

	"taskmind-backend/pkg/ai"
)

// Priority represents task priority level
type Priority string

const (
	PriorityUrgent    Priority = "urgent"
	PriorityImportant Priority = "important"
	PriorityNormal    Priority = "normal"
)

// rank orders priorities for scheduling, lower schedules first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityImportant:
		return 1
	default:
		return 2
	}
}

// ParsePriority coerces free-form input into the taxonomy. Unknown values
// become normal. The classifier's "skip" tier never reaches a task.
func ParsePriority(p string) Priority {
	switch Priority(p) {
	case PriorityUrgent, PriorityImportant, PriorityNormal:
		return Priority(p)
	default:
		return PriorityNormal
	}
}

// PriorityFromClassification maps a classifier tier to a task priority.
func PriorityFromClassification(p ai.Priority) Priority {
	return ParsePriority(string(p))
}

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusPaused     TaskStatus = "paused"
)

// ValidStatus reports whether s is a known task status.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusPaused:
		return true
	}
	return false
}

// Task is a unit of work derived from an ingested message or created
// manually. EstimatedMinutes feeds the rescheduler; ActualMinutes is filled
// on completion and feeds the owner's accuracy ratio.
type Task struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	OwnerID     string     `json:"owner_id" gorm:"index;not null"`
	Title       string     `json:"title" gorm:"not null"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority" gorm:"default:normal"`
	Status      TaskStatus `json:"status" gorm:"default:pending"`

	EstimatedMinutes int  `json:"estimated_minutes" gorm:"default:15"`
	ActualMinutes    *int `json:"actual_minutes,omitempty"`

	DueAt       *time.Time `json:"due_at,omitempty"`
	// DueSetAt records when DueAt was last written. The rescheduler skips
	// tasks whose due time was set moments ago.
	DueSetAt    *time.Time `json:"-"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Source references for tasks derived from ingested messages.
	SourceItemID    string `json:"source_item_id,omitempty" gorm:"index"`
	SourceAccountID string `json:"source_account_id,omitempty"`
	SourceSender    string `json:"source_sender,omitempty"`

	// Multi-task group metadata: drafts fanned out from one message share a
	// group id.
	GroupID    string `json:"group_id,omitempty" gorm:"index"`
	GroupIndex int    `json:"group_index,omitempty"`
	GroupSize  int    `json:"group_size,omitempty"`

	// CalendarEventID links the scheduled block in the owner's calendar.
	CalendarEventID string `json:"calendar_event_id,omitempty"`

	// AIGenerated marks tasks created via classification, which count
	// against the monthly quota on conversion.
	AIGenerated bool `json:"ai_generated" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskDraft is a not-yet-persisted task proposal carried inside a
// suggestion notification until the user converts it.
type TaskDraft struct {
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Priority         Priority   `json:"priority"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	DueAt            *time.Time `json:"due_at,omitempty"`
	Rationale        string     `json:"rationale,omitempty"`

	SourceItemID    string `json:"source_item_id,omitempty"`
	SourceAccountID string `json:"source_account_id,omitempty"`
	SourceSender    string `json:"source_sender,omitempty"`

	GroupID    string `json:"group_id,omitempty"`
	GroupIndex int    `json:"group_index,omitempty"`
	GroupSize  int    `json:"group_size,omitempty"`
}
