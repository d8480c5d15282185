package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskmind-backend/internal/account/domain"
)

func newTestSupervisor(source *fakeSource) (*Supervisor, *fakeConnRepo) {
	connRepo := &fakeConnRepo{}
	s := NewSupervisor(
		map[domain.Provider]domain.MessageSource{domain.ProviderGmail: source},
		NewMemoryLedger(10*time.Second),
		&fakeDedup{existing: map[string]bool{}},
		&fakeProcessor{}, &fakeLost{}, connRepo,
		time.Hour, zap.NewNop(),
	)
	return s, connRepo
}

func TestSupervisorRegisterReplacesPoller(t *testing.T) {
	s, _ := newTestSupervisor(&fakeSource{})
	conn := testConnection()

	require.NoError(t, s.Register(context.Background(), conn))
	s.mu.Lock()
	first := s.pollers[conn.ID]
	s.mu.Unlock()

	require.NoError(t, s.Register(context.Background(), conn))

	// The replaced poller must be fully wound down by the time Register
	// returns, so the connection never has two pollers running.
	select {
	case <-first.done:
	default:
		t.Fatal("replaced poller still running")
	}

	s.mu.Lock()
	second := s.pollers[conn.ID]
	count := len(s.pollers)
	s.mu.Unlock()
	assert.Equal(t, 1, count)
	assert.NotSame(t, first, second)

	s.StopAll()
}

func TestSupervisorRegisterUnknownProvider(t *testing.T) {
	s, _ := newTestSupervisor(&fakeSource{})
	conn := testConnection()
	conn.Provider = domain.Provider("carrier-pigeon")

	assert.Error(t, s.Register(context.Background(), conn))
}

func TestSupervisorStopUnknownIDIsNoop(t *testing.T) {
	s, _ := newTestSupervisor(&fakeSource{})
	s.Stop("no-such-connection")
}
