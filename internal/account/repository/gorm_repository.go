package repository

import (
	"strings"
	"time"

	"taskmind-backend/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormConnectionRepository implements ConnectionRepository using GORM
type gormConnectionRepository struct {
	db *gorm.DB
}

func NewGormConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &gormConnectionRepository{db: db}
}

func (r *gormConnectionRepository) Create(conn *domain.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	if conn.Status == "" {
		conn.Status = domain.ConnectionActive
	}
	if conn.Checkpoint.IsZero() {
		conn.Checkpoint = time.Now()
	}
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = time.Now()
	return r.db.Create(conn).Error
}

func (r *gormConnectionRepository) FindByID(id string) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.Where("id = ?", id).First(&conn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *gormConnectionRepository) FindByOwner(ownerID string) ([]*domain.Connection, error) {
	var conns []*domain.Connection
	err := r.db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&conns).Error
	return conns, err
}

func (r *gormConnectionRepository) FindActive() ([]*domain.Connection, error) {
	var conns []*domain.Connection
	err := r.db.Where("status = ?", domain.ConnectionActive).Find(&conns).Error
	return conns, err
}

func (r *gormConnectionRepository) UpdateCredential(id string, cred domain.Credential) error {
	updates := map[string]interface{}{
		"access_token":  cred.AccessToken,
		"refresh_token": cred.RefreshToken,
		"updated_at":    time.Now(),
	}
	if !cred.Expiry.IsZero() {
		updates["token_expiry"] = cred.Expiry
	}
	return r.db.Model(&domain.Connection{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormConnectionRepository) AdvanceCheckpoint(id string, to time.Time) error {
	return r.db.Model(&domain.Connection{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"checkpoint": to,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormConnectionRepository) MarkAuthFailed(id string) error {
	return r.db.Model(&domain.Connection{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.ConnectionAuthFailed,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormConnectionRepository) MarkActive(id string) error {
	return r.db.Model(&domain.Connection{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.ConnectionActive,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormConnectionRepository) ClearCredential(id string) error {
	return r.db.Delete(&domain.Connection{}, "id = ?", id).Error
}

// gormPriorityContactRepository implements PriorityContactRepository
type gormPriorityContactRepository struct {
	db *gorm.DB
}

func NewGormPriorityContactRepository(db *gorm.DB) PriorityContactRepository {
	return &gormPriorityContactRepository{db: db}
}

func (r *gormPriorityContactRepository) Create(contact *domain.PriorityContact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	contact.Email = strings.ToLower(strings.TrimSpace(contact.Email))
	contact.CreatedAt = time.Now()
	return r.db.Create(contact).Error
}

func (r *gormPriorityContactRepository) Delete(ownerID, contactID string) error {
	return r.db.Delete(&domain.PriorityContact{}, "id = ? AND owner_id = ?", contactID, ownerID).Error
}

func (r *gormPriorityContactRepository) EmailsByOwner(ownerID string) ([]string, error) {
	var emails []string
	err := r.db.Model(&domain.PriorityContact{}).Where("owner_id = ?", ownerID).
		Pluck("email", &emails).Error
	return emails, err
}
