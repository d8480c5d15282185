package ai

import (
	"context"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Service routes classification: remote AI first with bounded retry/backoff,
// deterministic fallback on exhaustion or non-retryable failure. Output is
// always normalized; classification never fails the caller.
type Service struct {
	remote   RemoteClassifier
	fallback *Fallback
	loc      *time.Location
	log      *zap.Logger

	maxAttempts int
	baseBackoff time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewService(remote RemoteClassifier, loc *time.Location, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		remote:      remote,
		fallback:    NewFallback(loc),
		loc:         loc,
		log:         log,
		maxAttempts: 3,
		baseBackoff: 2 * time.Second,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Classify returns a single result for the item.
func (s *Service) Classify(ctx context.Context, in Input) Result {
	results := s.ClassifyMulti(ctx, in)
	return results[0]
}

// ClassifyMulti returns one result per distinct intent found in the item.
// The slice is never empty.
func (s *Service) ClassifyMulti(ctx context.Context, in Input) []Result {
	results, err := s.classifyRemote(ctx, in)
	if err != nil || len(results) == 0 {
		if err != nil && s.remote != nil {
			s.log.Warn("remote classification failed, using fallback",
				zap.String("sender", in.Sender),
				zap.Error(err),
			)
		}
		results = s.fallback.ClassifyMulti(in)
	}

	for i := range results {
		s.normalize(&results[i], in)
	}
	return results
}

func (s *Service) classifyRemote(ctx context.Context, in Input) ([]Result, error) {
	if s.remote == nil {
		return nil, ErrNoClassifier
	}

	backoff := s.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		results, err := s.remote.ClassifyMulti(ctx, in)
		if err == nil {
			return results, nil
		}
		lastErr = err

		if !IsRetryable(err) && !isConnectionError(err) {
			return nil, err
		}
		if attempt == s.maxAttempts {
			break
		}
		s.log.Debug("remote classification attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := s.sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, lastErr
}

// normalize coerces the result into the taxonomy and fills gaps: unknown
// priorities become normal, estimates are defaulted and clamped, invalid or
// missing due times are re-derived by the deterministic parser, and priority
// contacts force urgent.
func (s *Service) normalize(r *Result, in Input) {
	if !ValidPriority(r.Priority) {
		r.Priority = PriorityNormal
	}

	if r.EstimatedMinutes <= 0 {
		r.EstimatedMinutes = DefaultEstimateMinutes
	}
	if r.EstimatedMinutes < MinEstimateMinutes {
		r.EstimatedMinutes = MinEstimateMinutes
	}
	if r.EstimatedMinutes > MaxEstimateMinutes {
		r.EstimatedMinutes = MaxEstimateMinutes
	}

	ref := in.ReceivedAt
	if ref.IsZero() {
		ref = s.now()
	}
	if r.DueAt != nil && (r.DueAt.IsZero() || r.DueAt.Year() < 2000) {
		r.DueAt = nil
	}
	if r.DueAt == nil {
		r.DueAt = s.fallback.ExtractDue(in.Subject+"\n"+in.Body, ref)
	}

	if r.Title == "" {
		r.Title = cleanTitle(in.Subject, "")
	}

	if senderMatches(in.Sender, in.PrioritySenders) {
		r.Priority = PriorityUrgent
	}
}

func senderMatches(sender string, contacts []string) bool {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return false
	}
	// Sender may arrive as "Name <addr>".
	if i := strings.Index(sender, "<"); i >= 0 {
		if j := strings.Index(sender[i:], ">"); j > 0 {
			sender = sender[i+1 : i+j]
		}
	}
	for _, c := range contacts {
		if strings.ToLower(strings.TrimSpace(c)) == sender {
			return true
		}
	}
	return false
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
