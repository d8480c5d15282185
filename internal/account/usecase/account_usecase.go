package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskmind-backend/internal/account/domain"
	"taskmind-backend/internal/account/repository"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredential  = errors.New("could not sign in with the given credentials")
)

// PollerRegistry is the ingestion supervisor's lifecycle surface.
type PollerRegistry interface {
	Register(ctx context.Context, conn *domain.Connection) error
	Stop(connectionID string)
}

// GmailConnectRequest carries OAuth tokens obtained by the client flow.
type GmailConnectRequest struct {
	EmailAddress string `json:"email_address" binding:"required,email"`
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

// IMAPConnectRequest carries plain IMAP credentials.
type IMAPConnectRequest struct {
	EmailAddress string `json:"email_address" binding:"required,email"`
	Password     string `json:"password" binding:"required"`
	Host         string `json:"host,omitempty"`
}

// AccountUsecase manages mailbox connections and priority contacts.
type AccountUsecase struct {
	connRepo    repository.ConnectionRepository
	contactRepo repository.PriorityContactRepository
	sources     map[domain.Provider]domain.MessageSource
	registry    PollerRegistry
	log         *zap.Logger
}

func NewAccountUsecase(
	connRepo repository.ConnectionRepository,
	contactRepo repository.PriorityContactRepository,
	sources map[domain.Provider]domain.MessageSource,
	registry PollerRegistry,
	log *zap.Logger,
) *AccountUsecase {
	return &AccountUsecase{
		connRepo:    connRepo,
		contactRepo: contactRepo,
		sources:     sources,
		registry:    registry,
		log:         log,
	}
}

// ConnectGmail stores an OAuth-backed connection and starts its poller. The
// checkpoint starts at now: only messages received after connecting become
// suggestions.
func (u *AccountUsecase) ConnectGmail(ctx context.Context, ownerID string, req GmailConnectRequest) (*domain.Connection, error) {
	conn := &domain.Connection{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Provider:     domain.ProviderGmail,
		EmailAddress: strings.ToLower(req.EmailAddress),
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Checkpoint:   time.Now(),
		Status:       domain.ConnectionActive,
	}
	if req.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, req.ExpiresAt); err == nil {
			conn.TokenExpiry = &t
		}
	}
	return u.connect(ctx, conn)
}

// ConnectIMAP validates the credentials with a login attempt, then stores
// the connection and starts its poller.
func (u *AccountUsecase) ConnectIMAP(ctx context.Context, ownerID string, req IMAPConnectRequest) (*domain.Connection, error) {
	conn := &domain.Connection{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Provider:     domain.ProviderIMAP,
		EmailAddress: strings.ToLower(req.EmailAddress),
		IMAPHost:     req.Host,
		IMAPPassword: req.Password,
		Checkpoint:   time.Now(),
		Status:       domain.ConnectionActive,
	}

	source, ok := u.sources[domain.ProviderIMAP]
	if !ok {
		return nil, errors.New("imap source not configured")
	}
	if _, err := source.RefreshCredential(ctx, conn.Credential()); err != nil {
		u.log.Info("imap credential validation failed",
			zap.String("email", conn.EmailAddress), zap.Error(err))
		return nil, ErrInvalidCredential
	}
	return u.connect(ctx, conn)
}

func (u *AccountUsecase) connect(ctx context.Context, conn *domain.Connection) (*domain.Connection, error) {
	if err := u.connRepo.Create(conn); err != nil {
		return nil, err
	}
	if err := u.registry.Register(ctx, conn); err != nil {
		u.log.Error("failed to start poller for new connection",
			zap.String("connection_id", conn.ID), zap.Error(err))
	}
	return conn, nil
}

// ListConnections returns the owner's connections, secrets omitted.
func (u *AccountUsecase) ListConnections(ownerID string) ([]*domain.Connection, error) {
	return u.connRepo.FindByOwner(ownerID)
}

// Disconnect halts the poller, then wipes the stored credential. An
// in-flight tick's results are discarded by the poller's context checks.
func (u *AccountUsecase) Disconnect(ownerID, connectionID string) error {
	conn, err := u.connRepo.FindByID(connectionID)
	if err != nil {
		return err
	}
	if conn == nil {
		return ErrConnectionNotFound
	}
	if conn.OwnerID != ownerID {
		return ErrUnauthorized
	}

	u.registry.Stop(connectionID)
	return u.connRepo.ClearCredential(connectionID)
}

// Reconnect refreshes the stored tokens of an auth-failed gmail connection
// and restarts its poller.
func (u *AccountUsecase) Reconnect(ctx context.Context, ownerID, connectionID string, req GmailConnectRequest) (*domain.Connection, error) {
	conn, err := u.connRepo.FindByID(connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrConnectionNotFound
	}
	if conn.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}

	cred := domain.Credential{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}
	if req.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, req.ExpiresAt); err == nil {
			cred.Expiry = t
		}
	}
	if err := u.connRepo.UpdateCredential(connectionID, cred); err != nil {
		return nil, err
	}
	// The connection sits at auth_failed; without this it would be skipped
	// by the startup resume and never polled again.
	if err := u.connRepo.MarkActive(connectionID); err != nil {
		return nil, err
	}

	conn, err = u.connRepo.FindByID(connectionID)
	if err != nil {
		return nil, err
	}
	if err := u.registry.Register(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// AddPriorityContact registers a sender whose messages always classify as
// urgent.
func (u *AccountUsecase) AddPriorityContact(ownerID, email, label string) (*domain.PriorityContact, error) {
	contact := &domain.PriorityContact{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Email:   strings.ToLower(strings.TrimSpace(email)),
		Label:   label,
	}
	if contact.Email == "" {
		return nil, errors.New("email is required")
	}
	if err := u.contactRepo.Create(contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// RemovePriorityContact deletes one of the owner's priority contacts.
func (u *AccountUsecase) RemovePriorityContact(ownerID, contactID string) error {
	return u.contactRepo.Delete(ownerID, contactID)
}

// ListPriorityContacts returns the owner's priority sender addresses.
func (u *AccountUsecase) ListPriorityContacts(ownerID string) ([]string, error) {
	return u.contactRepo.EmailsByOwner(ownerID)
}
