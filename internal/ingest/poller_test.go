package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskmind-backend/internal/account/domain"
)

type fakeSource struct {
	refs       []domain.ItemRef
	items      map[string]*domain.RawItem
	listErrs   []error
	listCalls  int
	fetchErr   error
	blockFetch chan struct{}
	refreshErr error
	refreshed  domain.Credential
	refreshes  int
}

func (s *fakeSource) ListNewItems(_ context.Context, _ domain.Credential, _ time.Time) ([]domain.ItemRef, error) {
	s.listCalls++
	if len(s.listErrs) > 0 {
		err := s.listErrs[0]
		s.listErrs = s.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.refs, nil
}

func (s *fakeSource) FetchItem(ctx context.Context, _ domain.Credential, ref domain.ItemRef) (*domain.RawItem, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.blockFetch != nil {
		s.blockFetch <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.items[ref.ExternalID], nil
}

func (s *fakeSource) RefreshCredential(_ context.Context, _ domain.Credential) (domain.Credential, error) {
	s.refreshes++
	if s.refreshErr != nil {
		return domain.Credential{}, s.refreshErr
	}
	return s.refreshed, nil
}

type fakeConnRepo struct {
	checkpoint   *time.Time
	markedFailed []string
	markedActive []string
	updatedCreds []domain.Credential
}

func (r *fakeConnRepo) Create(*domain.Connection) error                  { return nil }
func (r *fakeConnRepo) FindByID(string) (*domain.Connection, error)      { return nil, nil }
func (r *fakeConnRepo) FindByOwner(string) ([]*domain.Connection, error) { return nil, nil }
func (r *fakeConnRepo) FindActive() ([]*domain.Connection, error)        { return nil, nil }

func (r *fakeConnRepo) UpdateCredential(_ string, cred domain.Credential) error {
	r.updatedCreds = append(r.updatedCreds, cred)
	return nil
}

func (r *fakeConnRepo) AdvanceCheckpoint(_ string, to time.Time) error {
	r.checkpoint = &to
	return nil
}

func (r *fakeConnRepo) MarkAuthFailed(id string) error {
	r.markedFailed = append(r.markedFailed, id)
	return nil
}

func (r *fakeConnRepo) MarkActive(id string) error {
	r.markedActive = append(r.markedActive, id)
	return nil
}

func (r *fakeConnRepo) ClearCredential(string) error { return nil }

type fakeProcessor struct {
	processed []string
}

func (p *fakeProcessor) ProcessItem(_ context.Context, _ *domain.Connection, item *domain.RawItem) error {
	p.processed = append(p.processed, item.ExternalID)
	return nil
}

type fakeDedup struct {
	existing map[string]bool
}

func (d *fakeDedup) ExistsBySourceItem(_, sourceItemID string) (bool, error) {
	return d.existing[sourceItemID], nil
}

type fakeLost struct {
	notified []string
}

func (l *fakeLost) NotifyConnectionLost(_ context.Context, ownerID, _ string) error {
	l.notified = append(l.notified, ownerID)
	return nil
}

func testConnection() *domain.Connection {
	return &domain.Connection{
		ID:           "conn-1",
		OwnerID:      "owner-1",
		Provider:     domain.ProviderGmail,
		EmailAddress: "user@example.com",
		AccessToken:  "token",
		RefreshToken: "refresh",
		Checkpoint:   time.Now().Add(-time.Minute),
	}
}

func newTestPoller(source *fakeSource) (*Poller, *fakeConnRepo, *fakeProcessor, *fakeLost) {
	connRepo := &fakeConnRepo{}
	proc := &fakeProcessor{}
	lost := &fakeLost{}
	p := NewPoller(
		testConnection(), source,
		NewMemoryLedger(10*time.Second),
		&fakeDedup{existing: map[string]bool{}},
		proc, lost, connRepo,
		time.Minute, zap.NewNop(),
	)
	return p, connRepo, proc, lost
}

func TestPollerProcessesAndAdvancesCheckpoint(t *testing.T) {
	source := &fakeSource{
		refs: []domain.ItemRef{{ExternalID: "m1"}, {ExternalID: "m2"}},
		items: map[string]*domain.RawItem{
			"m1": {ExternalID: "m1", Subject: "first"},
			"m2": {ExternalID: "m2", Subject: "second"},
		},
	}
	p, connRepo, proc, _ := newTestPoller(source)

	require.True(t, p.tick(context.Background()))

	assert.Equal(t, []string{"m1", "m2"}, proc.processed)
	require.NotNil(t, connRepo.checkpoint)
	assert.Equal(t, *connRepo.checkpoint, p.conn.Checkpoint)
}

func TestPollerIdempotentIngestion(t *testing.T) {
	source := &fakeSource{
		refs:  []domain.ItemRef{{ExternalID: "m1"}},
		items: map[string]*domain.RawItem{"m1": {ExternalID: "m1"}},
	}
	p, _, proc, _ := newTestPoller(source)

	// Two ticks re-listing the same id inside the dedup window.
	require.True(t, p.tick(context.Background()))
	require.True(t, p.tick(context.Background()))

	assert.Equal(t, []string{"m1"}, proc.processed)
}

func TestPollerDurableDedupSkipsKnownItems(t *testing.T) {
	source := &fakeSource{
		refs:  []domain.ItemRef{{ExternalID: "m1"}},
		items: map[string]*domain.RawItem{"m1": {ExternalID: "m1"}},
	}
	p, _, proc, _ := newTestPoller(source)
	p.dedup = &fakeDedup{existing: map[string]bool{"m1": true}}

	require.True(t, p.tick(context.Background()))

	assert.Empty(t, proc.processed)
}

func TestPollerRefreshesOnceAndRetries(t *testing.T) {
	source := &fakeSource{
		refs:      []domain.ItemRef{{ExternalID: "m1"}},
		items:     map[string]*domain.RawItem{"m1": {ExternalID: "m1"}},
		listErrs:  []error{domain.ErrAuthExpired, nil},
		refreshed: domain.Credential{AccessToken: "new-token", RefreshToken: "refresh"},
	}
	p, connRepo, proc, lost := newTestPoller(source)

	require.True(t, p.tick(context.Background()))

	assert.Equal(t, 1, source.refreshes)
	assert.Equal(t, []string{"m1"}, proc.processed)
	assert.Empty(t, lost.notified)
	require.Len(t, connRepo.updatedCreds, 1)
	assert.Equal(t, "new-token", connRepo.updatedCreds[0].AccessToken)
	assert.Equal(t, "new-token", p.cred.AccessToken)
}

func TestPollerAuthFailureHalts(t *testing.T) {
	source := &fakeSource{
		listErrs:   []error{domain.ErrAuthExpired},
		refreshErr: domain.ErrAuthExpired,
	}
	p, connRepo, _, lost := newTestPoller(source)

	assert.False(t, p.tick(context.Background()))

	assert.Equal(t, []string{"conn-1"}, connRepo.markedFailed)
	assert.Equal(t, []string{"owner-1"}, lost.notified)
}

func TestPollerSecondAuthFailureHalts(t *testing.T) {
	source := &fakeSource{
		listErrs:  []error{domain.ErrAuthExpired, domain.ErrAuthExpired},
		refreshed: domain.Credential{AccessToken: "new-token"},
	}
	p, connRepo, _, lost := newTestPoller(source)

	assert.False(t, p.tick(context.Background()))

	assert.Equal(t, 1, source.refreshes)
	assert.Equal(t, []string{"conn-1"}, connRepo.markedFailed)
	assert.Len(t, lost.notified, 1)
}

func TestPollerTransientErrorKeepsPolling(t *testing.T) {
	source := &fakeSource{
		listErrs: []error{errors.New("temporary network failure")},
	}
	p, connRepo, _, lost := newTestPoller(source)

	assert.True(t, p.tick(context.Background()))
	assert.Empty(t, connRepo.markedFailed)
	assert.Empty(t, lost.notified)
	assert.Nil(t, connRepo.checkpoint)
}

func TestPollerCancellationDiscardsInFlightResults(t *testing.T) {
	source := &fakeSource{
		refs:  []domain.ItemRef{{ExternalID: "m1"}},
		items: map[string]*domain.RawItem{"m1": {ExternalID: "m1"}},
	}
	p, connRepo, proc, _ := newTestPoller(source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, p.tick(ctx))

	assert.Empty(t, proc.processed)
	assert.Nil(t, connRepo.checkpoint)
}

func TestPollerStopAbortsInFlightTick(t *testing.T) {
	source := &fakeSource{
		refs:       []domain.ItemRef{{ExternalID: "m1"}},
		items:      map[string]*domain.RawItem{"m1": {ExternalID: "m1"}},
		blockFetch: make(chan struct{}),
	}
	p, connRepo, proc, _ := newTestPoller(source)

	p.Start(context.Background())
	// Wait until the first tick is blocked inside the fetch, then stop.
	<-source.blockFetch
	p.Stop()

	select {
	case <-p.done:
	default:
		t.Fatal("poll loop still running after Stop")
	}
	assert.Empty(t, proc.processed)
	assert.Nil(t, connRepo.checkpoint)
}

func TestPollerStopBeforeStartReturns(t *testing.T) {
	p, _, _, _ := newTestPoller(&fakeSource{})
	p.Stop()

	p.Start(context.Background())
	p.Stop()
	select {
	case <-p.done:
	default:
		t.Fatal("poll loop still running after Stop")
	}
}
