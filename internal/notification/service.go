package notification

import (
	"context"

	authrepo "taskmind-backend/internal/auth/repository"
	"taskmind-backend/pkg/fcm"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service persists notifications and fans them out to delivery sinks.
// Sink delivery is fire-and-continue: a push failure never fails the
// operation that produced the notification.
type Service struct {
	repo      Repository
	fcmRepo   authrepo.FCMTokenRepository
	fcmClient *fcm.Client
	log       *zap.Logger
}

func NewService(repo Repository, fcmRepo authrepo.FCMTokenRepository, fcmClient *fcm.Client, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		fcmRepo:   fcmRepo,
		fcmClient: fcmClient,
		log:       log,
	}
}

// Notify persists the notification, then pushes it to the owner's devices.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	if err := s.repo.Create(n); err != nil {
		return err
	}
	s.push(ctx, n)
	return nil
}

// NotifyConnectionLost tells the owner a mail account stopped syncing and
// needs to be reconnected.
func (s *Service) NotifyConnectionLost(ctx context.Context, ownerID, emailAddress string) error {
	return s.Notify(ctx, &Notification{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Type:    TypeConnectionLost,
		Title:   "Mail account disconnected",
		Body:    "We can no longer access " + emailAddress + ". Please reconnect it to keep receiving task suggestions.",
	})
}

// ExistsBySourceItem forwards the durable dedup check.
func (s *Service) ExistsBySourceItem(ownerID, sourceItemID string) (bool, error) {
	return s.repo.ExistsBySourceItem(ownerID, sourceItemID)
}

func (s *Service) push(ctx context.Context, n *Notification) {
	if s.fcmClient == nil || s.fcmRepo == nil {
		return
	}

	tokens, err := s.fcmRepo.GetTokensByUserID(n.OwnerID)
	if err != nil {
		s.log.Warn("failed to load FCM tokens",
			zap.String("owner_id", n.OwnerID),
			zap.Error(err),
		)
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failed, err := s.fcmClient.SendToDevices(ctx, tokenStrings, fcm.NotificationData{
		Title: n.Title,
		Body:  n.Body,
		Data: map[string]string{
			"type":            string(n.Type),
			"notification_id": n.ID,
		},
	})
	if err != nil {
		s.log.Warn("push delivery failed",
			zap.String("notification_id", n.ID),
			zap.Error(err),
		)
		return
	}

	// Cleanup failed tokens
	for _, token := range failed {
		if err := s.fcmRepo.DeleteToken(token); err != nil {
			s.log.Debug("failed to delete stale FCM token", zap.Error(err))
		}
	}
}
