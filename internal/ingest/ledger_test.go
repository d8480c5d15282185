package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, window time.Duration) (*memoryLedger, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLedger(window).(*memoryLedger)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLedgerSuppressesWithinWindow(t *testing.T) {
	l, now := newTestLedger(t, 10*time.Second)
	ctx := context.Background()

	require.True(t, l.ShouldProcess(ctx, "acc-1", "msg-1"))

	*now = now.Add(5 * time.Second)
	assert.False(t, l.ShouldProcess(ctx, "acc-1", "msg-1"))
}

func TestLedgerPassesAfterWindow(t *testing.T) {
	l, now := newTestLedger(t, 10*time.Second)
	ctx := context.Background()

	require.True(t, l.ShouldProcess(ctx, "acc-1", "msg-1"))

	*now = now.Add(15 * time.Second)
	assert.True(t, l.ShouldProcess(ctx, "acc-1", "msg-1"))
}

func TestLedgerPartitionsPerAccount(t *testing.T) {
	l, _ := newTestLedger(t, 10*time.Second)
	ctx := context.Background()

	require.True(t, l.ShouldProcess(ctx, "acc-1", "msg-1"))
	assert.True(t, l.ShouldProcess(ctx, "acc-2", "msg-1"))
}

func TestLedgerConcurrentCheckAndMarkSingleWinner(t *testing.T) {
	l := NewMemoryLedger(10 * time.Second)
	ctx := context.Background()

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.ShouldProcess(ctx, "acc-1", "msg-1") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestLedgerGCDropsIdleAccounts(t *testing.T) {
	l, now := newTestLedger(t, 10*time.Second)
	ctx := context.Background()

	require.True(t, l.ShouldProcess(ctx, "acc-idle", "msg-1"))
	require.Len(t, l.accounts, 1)

	// Another account stays active past the idle TTL of the first.
	*now = now.Add(2 * time.Hour)
	require.True(t, l.ShouldProcess(ctx, "acc-live", "msg-1"))

	_, idleKept := l.accounts["acc-idle"]
	assert.False(t, idleKept)
	_, liveKept := l.accounts["acc-live"]
	assert.True(t, liveKept)
}

func TestLedgerGCPrunesExpiredEntries(t *testing.T) {
	l, now := newTestLedger(t, 10*time.Second)
	ctx := context.Background()

	require.True(t, l.ShouldProcess(ctx, "acc-1", "msg-old"))

	// Past the window but within the idle TTL: the account survives, the
	// expired entry does not.
	*now = now.Add(5 * time.Minute)
	require.True(t, l.ShouldProcess(ctx, "acc-1", "msg-new"))

	part := l.accounts["acc-1"]
	require.NotNil(t, part)
	_, oldKept := part.seen["msg-old"]
	assert.False(t, oldKept)
}
