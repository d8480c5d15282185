package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "taskmind-backend/internal/account/domain"
	accountrepo "taskmind-backend/internal/account/repository"
	"taskmind-backend/internal/notification"
	"taskmind-backend/internal/task/domain"
	"taskmind-backend/pkg/ai"
)

// SuggestionPayload is the serialized body of a task suggestion
// notification: the derived drafts plus the full source content, so
// conversion never has to re-fetch the message.
type SuggestionPayload struct {
	Drafts []domain.TaskDraft `json:"drafts"`
	Source SourceContent      `json:"source"`
}

// SourceContent is the untruncated ingested message.
type SourceContent struct {
	ExternalID string    `json:"external_id"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	SourceApp  string    `json:"source_app"`
	ReceivedAt time.Time `json:"received_at"`
}

// Processor is the classify-derive-persist stage of ingestion. One call per
// new item; duplicates were already filtered by the poller.
type Processor struct {
	classifier *ai.Service
	deriver    *Deriver
	notifier   *notification.Service
	contacts   accountrepo.PriorityContactRepository
	log        *zap.Logger
}

func NewProcessor(
	classifier *ai.Service,
	deriver *Deriver,
	notifier *notification.Service,
	contacts accountrepo.PriorityContactRepository,
	log *zap.Logger,
) *Processor {
	return &Processor{
		classifier: classifier,
		deriver:    deriver,
		notifier:   notifier,
		contacts:   contacts,
		log:        log,
	}
}

// ProcessItem classifies one fetched message and persists the resulting
// suggestion notification. Items that derive no drafts are dropped silently.
func (p *Processor) ProcessItem(ctx context.Context, conn *accountdomain.Connection, item *accountdomain.RawItem) error {
	prioritySenders, err := p.contacts.EmailsByOwner(conn.OwnerID)
	if err != nil {
		p.log.Warn("failed to load priority contacts",
			zap.String("owner_id", conn.OwnerID), zap.Error(err))
	}

	in := ai.Input{
		Sender:          item.Sender,
		SenderName:      item.SenderName,
		Subject:         item.Subject,
		Body:            item.Body,
		SourceApp:       string(conn.Provider),
		ReceivedAt:      item.ReceivedAt,
		PrioritySenders: prioritySenders,
	}
	results := p.classifier.ClassifyMulti(ctx, in)

	drafts := p.deriver.Derive(item, results)
	if len(drafts) == 0 {
		p.log.Debug("item derived no tasks",
			zap.String("item_id", item.ExternalID),
			zap.String("subject", item.Subject))
		return nil
	}
	for i := range drafts {
		drafts[i].SourceAccountID = conn.ID
	}

	payload := SuggestionPayload{
		Drafts: drafts,
		Source: SourceContent{
			ExternalID: item.ExternalID,
			Sender:     item.Sender,
			SenderName: item.SenderName,
			Subject:    item.Subject,
			Body:       item.Body,
			SourceApp:  string(conn.Provider),
			ReceivedAt: item.ReceivedAt,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode suggestion payload: %w", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	n := &notification.Notification{
		ID:           uuid.New().String(),
		OwnerID:      conn.OwnerID,
		AccountID:    conn.ID,
		Type:         notification.TypeTaskSuggestion,
		Title:        drafts[0].Title,
		Body:         suggestionBody(drafts),
		SourceItemID: item.ExternalID,
		Payload:      string(raw),
	}
	if len(drafts) > 1 {
		n.Type = notification.TypeMultiTaskSuggestion
	}
	return p.notifier.Notify(ctx, n)
}

func suggestionBody(drafts []domain.TaskDraft) string {
	if len(drafts) == 1 {
		return fmt.Sprintf("Suggested task (%s priority)", drafts[0].Priority)
	}
	return fmt.Sprintf("%d suggested tasks from one message", len(drafts))
}
