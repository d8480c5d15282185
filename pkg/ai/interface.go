package ai

import (
	"context"
	"errors"
	"time"
)

// Priority is the classification taxonomy. Skip marks non-actionable items
// (verification codes, login alerts) that must not become tasks.
type Priority string

const (
	PriorityUrgent    Priority = "urgent"
	PriorityImportant Priority = "important"
	PriorityNormal    Priority = "normal"
	PrioritySkip      Priority = "skip"
)

// ValidPriority reports whether p is inside the taxonomy.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityUrgent, PriorityImportant, PriorityNormal, PrioritySkip:
		return true
	}
	return false
}

const (
	// DefaultEstimateMinutes is assumed when a classifier omits an estimate.
	DefaultEstimateMinutes = 15
	MinEstimateMinutes     = 5
	MaxEstimateMinutes     = 480
)

// Input is one raw item handed to classification.
type Input struct {
	Sender     string
	SenderName string
	Subject    string
	Body       string
	SourceApp  string
	ReceivedAt time.Time

	// PrioritySenders short-circuits classification: a matching sender is
	// forced to urgent regardless of AI or fallback output.
	PrioritySenders []string
}

// Result is one classification outcome. An item can yield several results
// when it contains multiple distinct deadlines. Never mutated after creation.
type Result struct {
	Priority         Priority   `json:"priority"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	DueAt            *time.Time `json:"due_at,omitempty"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	Rationale        string     `json:"rationale,omitempty"`
}

// RemoteClassifier is the AI backend. It is treated as unreliable and
// rate-limited; transient failures implement Retryable.
type RemoteClassifier interface {
	ClassifyMulti(ctx context.Context, in Input) ([]Result, error)
}

// ErrNoClassifier is returned when no remote backend is configured.
var ErrNoClassifier = errors.New("no remote classifier configured")

type retryableError interface {
	Retryable() bool
}

// IsRetryable reports whether err represents a transient remote failure
// (overload, quota, rate limit) worth another attempt before falling back.
func IsRetryable(err error) bool {
	var r retryableError
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
