package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskmind-backend/internal/account/domain"
	"taskmind-backend/internal/account/repository"
)

// DefaultPollInterval paces one list-and-process cycle per account.
const DefaultPollInterval = 45 * time.Second

// ItemProcessor turns one fetched message into a task suggestion (or skips
// it). Implemented by the task pipeline.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, conn *domain.Connection, item *domain.RawItem) error
}

// DurableDedup is the persisted duplicate check consulted after the ledger
// fast path. Backed by the notification store.
type DurableDedup interface {
	ExistsBySourceItem(ownerID, sourceItemID string) (bool, error)
}

// LostNotifier tells the owner their connection stopped working.
type LostNotifier interface {
	NotifyConnectionLost(ctx context.Context, ownerID, emailAddress string) error
}

// Poller drives ingestion for exactly one connection. The credential is read
// as an immutable snapshot at the start of each tick; a refresh mid-tick
// produces a new snapshot and persists it, it never mutates the old one.
type Poller struct {
	conn     *domain.Connection
	cred     domain.Credential
	source   domain.MessageSource
	ledger   Ledger
	dedup    DurableDedup
	proc     ItemProcessor
	lost     LostNotifier
	connRepo repository.ConnectionRepository
	log      *zap.Logger

	interval time.Duration
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   chan struct{}
	stopped   chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	inFlight  bool
}

// NewPoller builds a poller for one connection. Start must be called to run it.
func NewPoller(
	conn *domain.Connection,
	source domain.MessageSource,
	ledger Ledger,
	dedup DurableDedup,
	proc ItemProcessor,
	lost LostNotifier,
	connRepo repository.ConnectionRepository,
	interval time.Duration,
	log *zap.Logger,
) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		conn:     conn,
		cred:     conn.Credential(),
		source:   source,
		ledger:   ledger,
		dedup:    dedup,
		proc:     proc,
		lost:     lost,
		connRepo: connRepo,
		log:      log.With(zap.String("connection_id", conn.ID), zap.String("provider", string(conn.Provider))),
		interval: interval,
		now:      time.Now,
		started:  make(chan struct{}),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or the context ends. The
// first tick fires immediately so a fresh connection surfaces suggestions
// without waiting a full interval. Start is a no-op after the first call.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		close(p.started)
		go func() {
			defer close(p.done)

			select {
			case <-p.stopped:
				return
			case <-ctx.Done():
				return
			default:
			}

			ticker := time.NewTicker(p.interval)
			defer ticker.Stop()

			if !p.tick(ctx) {
				return
			}
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.stopped:
					return
				case <-ticker.C:
					if !p.tick(ctx) {
						return
					}
				}
			}
		}()
	})
}

// Stop halts the loop, cancels the tick context so in-flight work aborts
// before any result or checkpoint is persisted, and waits for the loop to
// exit. Safe to call more than once, and on a poller that never started.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
	select {
	case <-p.started:
		p.cancel()
		<-p.done
	default:
	}
}

// tick runs one poll cycle. Returns false when polling must halt for good
// (credential rejected twice). Ticks never overlap: the loop is sequential
// and the inFlight guard rejects any re-entrant call.
func (p *Poller) tick(ctx context.Context) bool {
	if p.inFlight {
		return true
	}
	p.inFlight = true
	defer func() { p.inFlight = false }()

	cred := p.cred

	if cred.NearExpiry(p.now()) {
		refreshed, err := p.refresh(ctx, cred)
		if err != nil {
			if errors.Is(err, domain.ErrAuthExpired) {
				return p.handleAuthFailure(ctx)
			}
			p.log.Warn("preemptive token refresh failed", zap.Error(err))
		} else {
			cred = refreshed
		}
	}

	err := p.runOnce(ctx, cred)
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if !errors.Is(err, domain.ErrAuthExpired) {
		p.log.Warn("poll cycle failed", zap.Error(err))
		return true
	}

	// One refresh-and-retry. A second rejection means the credential is gone.
	refreshed, rerr := p.refresh(ctx, cred)
	if rerr != nil {
		return p.handleAuthFailure(ctx)
	}
	if err := p.runOnce(ctx, refreshed); err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			return p.handleAuthFailure(ctx)
		}
		p.log.Warn("poll cycle failed after refresh", zap.Error(err))
	}
	return true
}

// refresh obtains a new credential snapshot, persists it, and swaps it in
// for subsequent ticks.
func (p *Poller) refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	refreshed, err := p.source.RefreshCredential(ctx, cred)
	if err != nil {
		return domain.Credential{}, err
	}
	if err := p.connRepo.UpdateCredential(p.conn.ID, refreshed); err != nil {
		p.log.Error("failed to persist refreshed credential", zap.Error(err))
	}
	p.cred = refreshed
	return refreshed, nil
}

// runOnce lists items since the checkpoint and processes each new one. The
// checkpoint advances only when the whole batch was handled, so a transient
// failure replays the batch next tick and dedup absorbs the overlap.
func (p *Poller) runOnce(ctx context.Context, cred domain.Credential) error {
	listStart := p.now()

	refs, err := p.source.ListNewItems(ctx, cred, p.conn.Checkpoint)
	if err != nil {
		return err
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !p.ledger.ShouldProcess(ctx, p.conn.ID, ref.ExternalID) {
			continue
		}
		exists, err := p.dedup.ExistsBySourceItem(p.conn.OwnerID, ref.ExternalID)
		if err != nil {
			p.log.Warn("durable dedup check failed", zap.String("item_id", ref.ExternalID), zap.Error(err))
		} else if exists {
			continue
		}

		item, err := p.source.FetchItem(ctx, cred, ref)
		if err != nil {
			if errors.Is(err, domain.ErrAuthExpired) {
				return err
			}
			p.log.Warn("failed to fetch item", zap.String("item_id", ref.ExternalID), zap.Error(err))
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.proc.ProcessItem(ctx, p.conn, item); err != nil {
			p.log.Error("failed to process item", zap.String("item_id", ref.ExternalID), zap.Error(err))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := p.connRepo.AdvanceCheckpoint(p.conn.ID, listStart); err != nil {
		p.log.Error("failed to advance checkpoint", zap.Error(err))
		return err
	}
	p.conn.Checkpoint = listStart
	return nil
}

// handleAuthFailure flags the connection, tells the owner once, and halts
// this poller. Always returns false.
func (p *Poller) handleAuthFailure(ctx context.Context) bool {
	p.log.Warn("credential rejected after refresh, halting poller")
	if err := p.connRepo.MarkAuthFailed(p.conn.ID); err != nil {
		p.log.Error("failed to mark connection auth_failed", zap.Error(err))
	}
	if err := p.lost.NotifyConnectionLost(ctx, p.conn.OwnerID, p.conn.EmailAddress); err != nil {
		p.log.Error("failed to send connection lost notification", zap.Error(err))
	}
	return false
}
