package usecase

import (
	"context"
	"errors"
	"time"

	accountdomain "taskmind-backend/internal/account/domain"
	"taskmind-backend/internal/task/domain"
)

var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidStatus        = errors.New("invalid task status")
)

// TaskUsecase defines the interface for task business logic
type TaskUsecase interface {
	// CreateTask creates a new task manually
	CreateTask(ownerID string, req TaskCreateRequest) (*domain.Task, error)

	// GetTaskByID retrieves a task by ID (with ownership check)
	GetTaskByID(ownerID, taskID string) (*domain.Task, error)

	// GetUserTasks retrieves all tasks for an owner with optional status filter
	GetUserTasks(ownerID string, status *string, limit, offset int) ([]*domain.Task, int64, error)

	// UpdateTask updates an existing task. A due-time change rebuilds the
	// task's reminders.
	UpdateTask(ownerID, taskID string, updates TaskUpdateRequest) (*domain.Task, error)

	// UpdateStatus applies a status transition. Starting stamps started-at;
	// completing stamps completed-at, records actual minutes, clears
	// reminders, and triggers a reschedule of the owner's pending tasks.
	UpdateStatus(ctx context.Context, ownerID, taskID string, status domain.TaskStatus) (*domain.Task, error)

	// DeleteTask deletes a task, clears its reminders, and removes any
	// mirrored calendar event
	DeleteTask(ctx context.Context, ownerID, taskID string) error

	// ConvertNotification turns a task suggestion into persisted tasks.
	// draftIndices selects drafts from a multi-task suggestion; empty means
	// all. Each created task reserves one unit of the owner's monthly AI
	// quota; reservation and insert commit atomically, and quota exhaustion
	// surfaces as usage.ErrQuotaExceeded with nothing persisted.
	ConvertNotification(ctx context.Context, ownerID, notificationID string, draftIndices []int) ([]*domain.Task, error)

	// TriggerReschedule runs the smart rescheduler for the owner on demand.
	TriggerReschedule(ctx context.Context, ownerID string) (*RescheduleReport, error)
}

// TaskCreateRequest carries the fields for manual task creation.
type TaskCreateRequest struct {
	Title            string  `json:"title" binding:"required"`
	Description      string  `json:"description,omitempty"`
	Priority         string  `json:"priority,omitempty"`
	EstimatedMinutes int     `json:"estimated_minutes,omitempty"`
	DueAt            *string `json:"due_at,omitempty"`
}

// TaskUpdateRequest represents the fields that can be updated
type TaskUpdateRequest struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	Priority         *string `json:"priority,omitempty"`
	EstimatedMinutes *int    `json:"estimated_minutes,omitempty"`
	DueAt            *string `json:"due_at,omitempty"`
}

// CalendarSink mirrors the calendar adapter. Both calls are
// fire-and-continue: a sink failure never fails the task operation.
type CalendarSink interface {
	CreateEvent(ctx context.Context, cred accountdomain.Credential, title, description string, due time.Time, estimateMinutes int) (string, error)
	DeleteEvent(ctx context.Context, cred accountdomain.Credential, eventID string) error
}
