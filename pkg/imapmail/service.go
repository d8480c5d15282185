package imapmail

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	accountdomain "taskmind-backend/internal/account/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// Service is the IMAP message source. It opens a fresh session per call;
// IMAP connections are cheap compared to the poll interval and a persistent
// session would couple the adapter to one credential snapshot.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) connect(cred accountdomain.Credential) (*client.Client, error) {
	addr := cred.Host
	if !strings.Contains(addr, ":") {
		addr += ":993"
	}

	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial failed: %w", err)
	}

	if err := c.Login(cred.Username, cred.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: %v", accountdomain.ErrAuthExpired, err)
	}
	return c, nil
}

// ListNewItems searches INBOX for messages received after the checkpoint.
func (s *Service) ListNewItems(ctx context.Context, cred accountdomain.Credential, since time.Time) ([]accountdomain.ItemRef, error) {
	c, err := s.connect(cred)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("imap select failed: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search failed: %w", err)
	}

	refs := make([]accountdomain.ItemRef, 0, len(uids))
	for _, uid := range uids {
		refs = append(refs, accountdomain.ItemRef{ExternalID: strconv.FormatUint(uint64(uid), 10)})
	}
	return refs, nil
}

// FetchItem downloads one message body by UID.
func (s *Service) FetchItem(ctx context.Context, cred accountdomain.Credential, ref accountdomain.ItemRef) (*accountdomain.RawItem, error) {
	uid, err := strconv.ParseUint(ref.ExternalID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid imap uid %q: %w", ref.ExternalID, err)
	}

	c, err := s.connect(cred)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("imap select failed: %w", err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch failed: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("imap message %d not found", uid)
	}

	item := &accountdomain.RawItem{
		ExternalID: ref.ExternalID,
	}
	if msg.Envelope != nil {
		item.Subject = msg.Envelope.Subject
		item.ReceivedAt = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			item.Sender = from.Address()
			item.SenderName = from.PersonalName
			if item.SenderName == "" {
				item.SenderName = from.Address()
			}
		}
	}

	if body := msg.GetBody(section); body != nil {
		item.Body = readPlainBody(body)
	}
	return item, nil
}

// RefreshCredential validates the stored password by logging in. IMAP has no
// refresh flow; a rejected login means the account needs reconnection.
func (s *Service) RefreshCredential(ctx context.Context, cred accountdomain.Credential) (accountdomain.Credential, error) {
	c, err := s.connect(cred)
	if err != nil {
		return accountdomain.Credential{}, err
	}
	c.Logout()
	return cred, nil
}

func readPlainBody(r io.Reader) string {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}

	var plain, fallback string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if h, ok := p.Header.(*mail.InlineHeader); ok {
			ct, _, _ := h.ContentType()
			data, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			if ct == "text/plain" && plain == "" {
				plain = string(data)
			} else if fallback == "" {
				fallback = string(data)
			}
		}
	}

	if plain != "" {
		return plain
	}
	return fallback
}
