package notification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormRepository implements Repository using GORM
type gormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now()
	return r.db.Create(n).Error
}

func (r *gormRepository) FindByID(ownerID, id string) (*Notification, error) {
	var n Notification
	err := r.db.Where("id = ? AND owner_id = ?", id, ownerID).First(&n).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

func (r *gormRepository) FindByOwner(ownerID string, unreadOnly bool, limit, offset int) ([]*Notification, int64, error) {
	var items []*Notification
	var total int64

	query := r.db.Model(&Notification{}).Where("owner_id = ?", ownerID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&items).Error
	return items, total, err
}

func (r *gormRepository) ExistsBySourceItem(ownerID, sourceItemID string) (bool, error) {
	if sourceItemID == "" {
		return false, nil
	}
	var count int64
	err := r.db.Model(&Notification{}).
		Where("owner_id = ? AND source_item_id = ?", ownerID, sourceItemID).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) MarkRead(ownerID, id string) error {
	return r.db.Model(&Notification{}).Where("id = ? AND owner_id = ?", id, ownerID).
		Update("read", true).Error
}

func (r *gormRepository) Delete(ownerID, id string) error {
	return r.db.Delete(&Notification{}, "id = ? AND owner_id = ?", id, ownerID).Error
}
