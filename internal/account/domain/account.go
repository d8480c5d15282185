package domain

import (
	"context"
	"errors"
	"time"
)

// Provider identifies the mail backend a connection polls.
type Provider string

const (
	ProviderGmail Provider = "gmail"
	ProviderIMAP  Provider = "imap"
)

// ConnectionStatus tracks the lifecycle of an account connection.
type ConnectionStatus string

const (
	// ConnectionActive means the poller for this account is (or may be) running.
	ConnectionActive ConnectionStatus = "active"
	// ConnectionAuthFailed means the credential was rejected twice in one tick
	// and polling is halted until the user reconnects.
	ConnectionAuthFailed ConnectionStatus = "auth_failed"
)

// ErrAuthExpired is returned by message sources when the credential is
// expired or revoked. The caller stops polling instead of retrying forever.
var ErrAuthExpired = errors.New("credential expired or revoked")

// Connection links one external mailbox to an owner. Exactly one poller per
// connection; the checkpoint marks "processed up to here".
type Connection struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	OwnerID      string     `json:"owner_id" gorm:"index;not null"`
	Provider     Provider   `json:"provider" gorm:"not null"`
	EmailAddress string     `json:"email_address" gorm:"not null"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	TokenExpiry  *time.Time `json:"-"`
	IMAPHost     string     `json:"-"`
	IMAPPassword string     `json:"-"`
	Checkpoint   time.Time  `json:"checkpoint"`
	Status       ConnectionStatus `json:"status" gorm:"default:active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Credential is an immutable snapshot of a connection's secrets, read once
// per poll tick. A refresh produces a new snapshot; snapshots are never
// mutated in place.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time

	Host     string
	Username string
	Password string
}

// Credential builds the snapshot for the current tick.
func (c *Connection) Credential() Credential {
	cred := Credential{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Host:         c.IMAPHost,
		Username:     c.EmailAddress,
		Password:     c.IMAPPassword,
	}
	if c.TokenExpiry != nil {
		cred.Expiry = *c.TokenExpiry
	}
	return cred
}

// NearExpiry reports whether the access token should be refreshed
// preemptively before listing.
func (cr Credential) NearExpiry(now time.Time) bool {
	if cr.Expiry.IsZero() {
		return false
	}
	return now.Add(2 * time.Minute).After(cr.Expiry)
}

// ItemRef is a lightweight handle to a message; the body is fetched lazily.
type ItemRef struct {
	ExternalID string
}

// RawItem is a fetched third-party message. Immutable once fetched.
type RawItem struct {
	ExternalID string
	Sender     string
	SenderName string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// MessageSource is the adapter over one mail backend. Implementations map
// expired/revoked credentials to ErrAuthExpired.
type MessageSource interface {
	ListNewItems(ctx context.Context, cred Credential, since time.Time) ([]ItemRef, error)
	FetchItem(ctx context.Context, cred Credential, ref ItemRef) (*RawItem, error)
	RefreshCredential(ctx context.Context, cred Credential) (Credential, error)
}

// PriorityContact forces any message from this sender to the urgent tier.
type PriorityContact struct {
	ID      string `json:"id" gorm:"primaryKey"`
	OwnerID string `json:"owner_id" gorm:"index;not null"`
	Email   string `json:"email" gorm:"not null"`
	Label   string `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
