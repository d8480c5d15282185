package notification

import "time"

// Type distinguishes what a notification asks of the user.
type Type string

const (
	// TypeTaskSuggestion carries one derived task draft awaiting conversion.
	TypeTaskSuggestion Type = "task_suggestion"
	// TypeMultiTaskSuggestion carries several drafts from one source item.
	TypeMultiTaskSuggestion Type = "multi_task_suggestion"
	// TypeReminder is an upcoming-deadline nudge for an existing task.
	TypeReminder Type = "reminder"
	// TypeConnectionLost tells the user to reconnect a mail account.
	TypeConnectionLost Type = "connection_lost"
)

// Notification is the persisted record of something the pipeline produced
// for the user. For ingestion results, SourceItemID is the durable
// deduplication key: one notification per (owner, source item).
type Notification struct {
	ID        string `json:"id" gorm:"primaryKey"`
	OwnerID   string `json:"owner_id" gorm:"index;not null"`
	AccountID string `json:"account_id,omitempty" gorm:"index"`
	Type      Type   `json:"type" gorm:"not null"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`

	// SourceItemID is the external message id this notification came from.
	SourceItemID string `json:"source_item_id,omitempty" gorm:"index"`

	// Payload holds the serialized task drafts plus the full source content
	// (untruncated) so conversion never needs to re-fetch the message.
	Payload string `json:"payload,omitempty" gorm:"type:text"`

	Read      bool      `json:"read" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
}
