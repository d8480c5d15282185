package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	accountdomain "taskmind-backend/internal/account/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Service is the Gmail message source. Credentials are immutable snapshots:
// the client never refreshes in place, refresh happens explicitly through
// RefreshCredential and produces a new snapshot.
type Service struct {
	clientID     string
	clientSecret string
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (s *Service) gmailService(ctx context.Context, cred accountdomain.Credential) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// ListNewItems returns lightweight handles for inbox messages received after
// the checkpoint, oldest first.
func (s *Service) ListNewItems(ctx context.Context, cred accountdomain.Credential, since time.Time) ([]accountdomain.ItemRef, error) {
	srv, err := s.gmailService(ctx, cred)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("in:inbox after:%d", since.Unix())
	resp, err := srv.Users.Messages.List("me").Q(q).MaxResults(100).Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}

	// Gmail lists newest first; the pipeline processes in listing order, so
	// reverse to oldest-first.
	refs := make([]accountdomain.ItemRef, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		refs = append(refs, accountdomain.ItemRef{ExternalID: resp.Messages[i].Id})
	}
	return refs, nil
}

// FetchItem retrieves the full message for a handle.
func (s *Service) FetchItem(ctx context.Context, cred accountdomain.Credential, ref accountdomain.ItemRef) (*accountdomain.RawItem, error) {
	srv, err := s.gmailService(ctx, cred)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", ref.ExternalID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	return convertMessage(msg), nil
}

// RefreshCredential exchanges the refresh token for a new snapshot. A failure
// means the grant is gone and the account needs reconnection.
func (s *Service) RefreshCredential(ctx context.Context, cred accountdomain.Credential) (accountdomain.Credential, error) {
	if cred.RefreshToken == "" {
		return accountdomain.Credential{}, accountdomain.ErrAuthExpired
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}
	src := config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute), // force refresh
	})

	token, err := src.Token()
	if err != nil {
		return accountdomain.Credential{}, fmt.Errorf("%w: %v", accountdomain.ErrAuthExpired, err)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	return accountdomain.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       token.Expiry,
	}, nil
}

func mapError(err error) error {
	if gerr, ok := err.(*googleapi.Error); ok {
		if gerr.Code == 401 {
			return fmt.Errorf("%w: %v", accountdomain.ErrAuthExpired, err)
		}
	}
	return err
}

// Helper functions

func convertMessage(msg *gmail.Message) *accountdomain.RawItem {
	from := getHeader(msg.Payload.Headers, "From")
	fromName := from
	// Extract name from "Name <email@example.com>" format
	if idx := strings.Index(from, "<"); idx > 0 {
		fromName = strings.TrimSpace(from[:idx])
	}

	body, isHTML := getEmailBody(msg.Payload)
	if isHTML {
		body = stripHTML(body)
	}

	return &accountdomain.RawItem{
		ExternalID: msg.Id,
		Sender:     from,
		SenderName: fromName,
		Subject:    getHeader(msg.Payload.Headers, "Subject"),
		Body:       body,
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

func getEmailBody(payload *gmail.MessagePart) (string, bool) {
	// If the payload itself is the body
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(data), payload.MimeType == "text/html"
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.MimeType == "text/plain" {
				if part.Body != nil && part.Body.Data != "" {
					data, err := base64.URLEncoding.DecodeString(part.Body.Data)
					if err == nil {
						plainBody = string(data)
					}
				}
			} else if part.MimeType == "text/html" {
				if part.Body != nil && part.Body.Data != "" {
					data, err := base64.URLEncoding.DecodeString(part.Body.Data)
					if err == nil {
						htmlBody = string(data)
					}
				}
			}

			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}

	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, true
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripHTML(body string) string {
	text := tagRe.ReplaceAllString(body, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	return strings.Join(strings.Fields(text), " ")
}
