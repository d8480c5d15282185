package repository

import (
	"time"

	"gorm.io/gorm"

	"taskmind-backend/internal/task/domain"
)

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create creates a new task
	Create(task *domain.Task) error

	// CreateInTx creates a task inside an existing transaction. Used by the
	// quota-guarded conversion path so the usage reservation and the insert
	// commit or roll back together.
	CreateInTx(tx *gorm.DB, task *domain.Task) error

	// FindByID finds a task by its ID
	FindByID(id string) (*domain.Task, error)

	// FindByOwner finds all tasks for an owner with optional status filter
	FindByOwner(ownerID string, status *domain.TaskStatus, limit, offset int) ([]*domain.Task, int64, error)

	// FindPending returns all pending tasks for the rescheduler.
	FindPending(ownerID string) ([]*domain.Task, error)

	// FindCompletedWithTimes returns completed tasks that have both a start
	// and a completion time, the accuracy-ratio sample set.
	FindCompletedWithTimes(ownerID string) ([]*domain.Task, error)

	// Update updates an existing task
	Update(task *domain.Task) error

	// UpdateDue rewrites the due time and stamps when it was set.
	UpdateDue(id string, due, setAt time.Time) error

	// UpdatePriority rewrites only the priority. Used by escalation.
	UpdatePriority(id string, p domain.Priority) error

	// Delete deletes a task by ID
	Delete(id string) error
}
