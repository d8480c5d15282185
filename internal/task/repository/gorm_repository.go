package repository

import (
	"time"

	"gorm.io/gorm"

	"taskmind-backend/internal/task/domain"
)

// gormTaskRepository implements TaskRepository using GORM
type gormTaskRepository struct {
	db *gorm.DB
}

func NewGormTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

func (r *gormTaskRepository) Create(task *domain.Task) error {
	return r.CreateInTx(r.db, task)
}

func (r *gormTaskRepository) CreateInTx(tx *gorm.DB, task *domain.Task) error {
	task.CreatedAt = time.Now()
	task.UpdatedAt = time.Now()
	if task.DueAt != nil && task.DueSetAt == nil {
		now := time.Now()
		task.DueSetAt = &now
	}
	return tx.Create(task).Error
}

func (r *gormTaskRepository) FindByID(id string) (*domain.Task, error) {
	var task domain.Task
	err := r.db.Where("id = ?", id).First(&task).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindByOwner(ownerID string, status *domain.TaskStatus, limit, offset int) ([]*domain.Task, int64, error) {
	query := r.db.Model(&domain.Task{}).Where("owner_id = ?", ownerID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tasks []*domain.Task
	err := query.Order("due_at ASC NULLS LAST, created_at DESC").
		Limit(limit).Offset(offset).Find(&tasks).Error
	return tasks, total, err
}

func (r *gormTaskRepository) FindPending(ownerID string) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.db.Where("owner_id = ? AND status = ?", ownerID, domain.TaskStatusPending).
		Find(&tasks).Error
	return tasks, err
}

func (r *gormTaskRepository) FindCompletedWithTimes(ownerID string) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.db.Where("owner_id = ? AND status = ? AND started_at IS NOT NULL AND completed_at IS NOT NULL",
		ownerID, domain.TaskStatusCompleted).Find(&tasks).Error
	return tasks, err
}

func (r *gormTaskRepository) Update(task *domain.Task) error {
	task.UpdatedAt = time.Now()
	return r.db.Save(task).Error
}

func (r *gormTaskRepository) UpdateDue(id string, due, setAt time.Time) error {
	return r.db.Model(&domain.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"due_at":     due,
		"due_set_at": setAt,
		"updated_at": time.Now(),
	}).Error
}

func (r *gormTaskRepository) UpdatePriority(id string, p domain.Priority) error {
	return r.db.Model(&domain.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"priority":   p,
		"updated_at": time.Now(),
	}).Error
}

func (r *gormTaskRepository) Delete(id string) error {
	return r.db.Delete(&domain.Task{}, "id = ?", id).Error
}
