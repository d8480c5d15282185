package notification

// Repository defines data access for notifications.
type Repository interface {
	Create(n *Notification) error

	FindByID(ownerID, id string) (*Notification, error)

	FindByOwner(ownerID string, unreadOnly bool, limit, offset int) ([]*Notification, int64, error)

	// ExistsBySourceItem is the durable dedup check: it reports whether any
	// notification was already persisted for this source item.
	ExistsBySourceItem(ownerID, sourceItemID string) (bool, error)

	MarkRead(ownerID, id string) error

	Delete(ownerID, id string) error
}
