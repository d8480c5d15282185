package repository

import (
	"time"

	"taskmind-backend/internal/account/domain"
)

// ConnectionRepository defines data access for account connections.
type ConnectionRepository interface {
	Create(conn *domain.Connection) error

	FindByID(id string) (*domain.Connection, error)

	FindByOwner(ownerID string) ([]*domain.Connection, error)

	// FindActive returns all connections that should have a running poller.
	FindActive() ([]*domain.Connection, error)

	// UpdateCredential atomically replaces the stored credential snapshot.
	UpdateCredential(id string, cred domain.Credential) error

	// AdvanceCheckpoint moves the connection's checkpoint forward.
	AdvanceCheckpoint(id string, to time.Time) error

	// MarkAuthFailed flags the connection as needing reconnection.
	MarkAuthFailed(id string) error

	// MarkActive restores a connection to the active pool, e.g. after a
	// successful reconnect. Active connections are resumed on startup.
	MarkActive(id string) error

	// ClearCredential wipes stored secrets and removes the connection.
	// Clearing cascades to halting the account's poller (done by the caller).
	ClearCredential(id string) error
}

// PriorityContactRepository stores the per-owner priority contact list.
type PriorityContactRepository interface {
	Create(contact *domain.PriorityContact) error
	Delete(ownerID, contactID string) error

	// EmailsByOwner returns the lowercased sender addresses for an owner.
	EmailsByOwner(ownerID string) ([]string, error)
}
