package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskmind-backend/internal/account/domain"
	"taskmind-backend/internal/account/repository"
)

// Supervisor owns the poller registry: exactly one poller per connection.
// Registering an already-registered connection replaces its poller.
type Supervisor struct {
	mu      sync.Mutex
	pollers map[string]*Poller

	sources  map[domain.Provider]domain.MessageSource
	ledger   Ledger
	dedup    DurableDedup
	proc     ItemProcessor
	lost     LostNotifier
	connRepo repository.ConnectionRepository
	interval time.Duration
	log      *zap.Logger
}

func NewSupervisor(
	sources map[domain.Provider]domain.MessageSource,
	ledger Ledger,
	dedup DurableDedup,
	proc ItemProcessor,
	lost LostNotifier,
	connRepo repository.ConnectionRepository,
	interval time.Duration,
	log *zap.Logger,
) *Supervisor {
	return &Supervisor{
		pollers:  make(map[string]*Poller),
		sources:  sources,
		ledger:   ledger,
		dedup:    dedup,
		proc:     proc,
		lost:     lost,
		connRepo: connRepo,
		interval: interval,
		log:      log,
	}
}

// Register starts a poller for the connection. A previous poller for the
// same connection is stopped first.
func (s *Supervisor) Register(ctx context.Context, conn *domain.Connection) error {
	source, ok := s.sources[conn.Provider]
	if !ok {
		return fmt.Errorf("no message source for provider %q", conn.Provider)
	}

	p := NewPoller(conn, source, s.ledger, s.dedup, s.proc, s.lost, s.connRepo, s.interval, s.log)

	s.mu.Lock()
	old := s.pollers[conn.ID]
	s.pollers[conn.ID] = p
	s.mu.Unlock()

	// Stop runs outside the lock: an in-flight tick must not stall
	// registration of other connections. The replacement starts only after
	// the old poller has fully wound down.
	if old != nil {
		old.Stop()
	}
	p.Start(ctx)

	s.log.Info("poller registered",
		zap.String("connection_id", conn.ID),
		zap.String("provider", string(conn.Provider)))
	return nil
}

// Stop halts and removes the poller for one connection. Unknown ids are a
// no-op, so disconnect can always call it.
func (s *Supervisor) Stop(connectionID string) {
	s.mu.Lock()
	p, ok := s.pollers[connectionID]
	if ok {
		delete(s.pollers, connectionID)
	}
	s.mu.Unlock()

	if ok {
		p.Stop()
		s.log.Info("poller stopped", zap.String("connection_id", connectionID))
	}
}

// StopAll halts every poller. Used on shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	pollers := s.pollers
	s.pollers = make(map[string]*Poller)
	s.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}

// Resume boots pollers for every active connection. Called once at startup.
func (s *Supervisor) Resume(ctx context.Context) error {
	conns, err := s.connRepo.FindActive()
	if err != nil {
		return fmt.Errorf("failed to load active connections: %w", err)
	}
	for _, conn := range conns {
		if err := s.Register(ctx, conn); err != nil {
			s.log.Error("failed to resume poller",
				zap.String("connection_id", conn.ID), zap.Error(err))
		}
	}
	return nil
}
