package gcal

import (
	"context"
	"fmt"
	"time"

	accountdomain "taskmind-backend/internal/account/domain"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Service mirrors work items into the owner's primary Google calendar.
// It is a fire-and-continue delivery sink: callers log failures and move on.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) calendarService(ctx context.Context, cred accountdomain.Credential) (*calendar.Service, error) {
	token := &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	return srv, nil
}

// CreateEvent books a block ending at the due time, sized by the estimate.
// Returns the created event id for storage in task metadata.
func (s *Service) CreateEvent(ctx context.Context, cred accountdomain.Credential, title, description string, due time.Time, estimateMinutes int) (string, error) {
	srv, err := s.calendarService(ctx, cred)
	if err != nil {
		return "", err
	}

	start := due.Add(-time.Duration(estimateMinutes) * time.Minute)
	event := &calendar.Event{
		Summary:     title,
		Description: description,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: due.Format(time.RFC3339)},
	}

	created, err := srv.Events.Insert("primary", event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create calendar event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes a previously mirrored event, e.g. when its task is
// deleted or completed early.
func (s *Service) DeleteEvent(ctx context.Context, cred accountdomain.Credential, eventID string) error {
	srv, err := s.calendarService(ctx, cred)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete("primary", eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to delete calendar event: %w", err)
	}
	return nil
}
