package usage

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrQuotaExceeded is a distinct, structured condition: the caller surfaces
// it to the UI so the user can upgrade instead of seeing a generic failure.
var ErrQuotaExceeded = errors.New("monthly AI task quota exceeded")

// Counter tracks how many AI-derived tasks an owner created in one calendar
// month. Incremented only through Reserve, never directly.
type Counter struct {
	OwnerID   string    `json:"owner_id" gorm:"primaryKey"`
	Month     string    `json:"month" gorm:"primaryKey"` // "2006-01"
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Counter) TableName() string {
	return "usage_counters"
}

// MonthKey formats the calendar-month bucket for a point in time.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Repository provides the atomic increment-if-under-ceiling primitive.
// Reserve runs on the caller's transaction handle so the increment and the
// task insert commit or roll back as one unit.
type Repository interface {
	Reserve(tx *gorm.DB, ownerID, month string, ceiling int) error
	CountFor(ownerID, month string) (int, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Reserve increments the counter iff it is below the ceiling. A conditional
// upsert keeps check and increment in a single statement, so concurrent
// reservations cannot overshoot the ceiling.
func (r *gormRepository) Reserve(tx *gorm.DB, ownerID, month string, ceiling int) error {
	if ceiling <= 0 {
		return ErrQuotaExceeded
	}

	res := tx.Exec(`
		INSERT INTO usage_counters (owner_id, month, count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (owner_id, month) DO UPDATE
		SET count = usage_counters.count + 1, updated_at = EXCLUDED.updated_at
		WHERE usage_counters.count < ?`,
		ownerID, month, time.Now(), ceiling)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

func (r *gormRepository) CountFor(ownerID, month string) (int, error) {
	var counter Counter
	err := r.db.Where("owner_id = ? AND month = ?", ownerID, month).First(&counter).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return counter.Count, nil
}
