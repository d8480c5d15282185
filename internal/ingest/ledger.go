package ingest

import (
	"context"
	"sync"
	"time"
)

// Ledger is the fast-path duplicate suppressor for re-polls. It is a latency
// optimization only: the durable dedup check against persisted notifications
// is the source of truth, so a lost ledger (restart, Redis outage) never
// causes duplicates, only extra durable lookups.
type Ledger interface {
	// ShouldProcess returns false if the id was marked processed within the
	// dedup window; otherwise it atomically marks it processed and returns
	// true. Check-and-mark is a single atomic step.
	ShouldProcess(ctx context.Context, accountID, externalID string) bool
}

const (
	// DefaultDedupWindow suppresses re-listed items across overlapping polls.
	DefaultDedupWindow = 10 * time.Second
	// accountIdleTTL bounds memory: an account partition untouched this long
	// is garbage collected.
	accountIdleTTL = time.Hour
)

type accountSeen struct {
	seen       map[string]time.Time
	lastActive time.Time
}

// memoryLedger is the default in-process ledger, partitioned per account.
type memoryLedger struct {
	mu       sync.Mutex
	window   time.Duration
	accounts map[string]*accountSeen
	lastGC   time.Time
	now      func() time.Time
}

// NewMemoryLedger builds an in-memory ledger. A non-positive window falls
// back to the default.
func NewMemoryLedger(window time.Duration) Ledger {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &memoryLedger{
		window:   window,
		accounts: make(map[string]*accountSeen),
		now:      time.Now,
	}
}

func (l *memoryLedger) ShouldProcess(_ context.Context, accountID, externalID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeGC(now)

	part, ok := l.accounts[accountID]
	if !ok {
		part = &accountSeen{seen: make(map[string]time.Time)}
		l.accounts[accountID] = part
	}
	part.lastActive = now

	if seenAt, ok := part.seen[externalID]; ok && now.Sub(seenAt) < l.window {
		return false
	}
	part.seen[externalID] = now
	return true
}

// maybeGC prunes expired seen records and idle account partitions. Runs at
// most once per minute, under the ledger lock.
func (l *memoryLedger) maybeGC(now time.Time) {
	if now.Sub(l.lastGC) < time.Minute {
		return
	}
	l.lastGC = now

	for accountID, part := range l.accounts {
		if now.Sub(part.lastActive) > accountIdleTTL {
			delete(l.accounts, accountID)
			continue
		}
		for id, seenAt := range part.seen {
			if now.Sub(seenAt) >= l.window {
				delete(part.seen, id)
			}
		}
	}
}
