package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskmind-backend/internal/notification"
	"taskmind-backend/internal/task/domain"
)

type fakeNotifier struct {
	mu    sync.Mutex
	fired []*notification.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, notif *notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fired = append(n.fired, notif)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.fired)
}

type fakeTaskRepo struct {
	mu          sync.Mutex
	priorities  map[string]domain.Priority
	failUpdates int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{priorities: make(map[string]domain.Priority)}
}

func (r *fakeTaskRepo) UpdatePriority(id string, p domain.Priority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdates > 0 {
		r.failUpdates--
		return errors.New("database unavailable")
	}
	r.priorities[id] = p
	return nil
}

func (r *fakeTaskRepo) Create(*domain.Task) error                 { return nil }
func (r *fakeTaskRepo) CreateInTx(*gorm.DB, *domain.Task) error   { return nil }
func (r *fakeTaskRepo) FindByID(string) (*domain.Task, error)     { return nil, nil }
func (r *fakeTaskRepo) FindPending(string) ([]*domain.Task, error) { return nil, nil }
func (r *fakeTaskRepo) FindCompletedWithTimes(string) ([]*domain.Task, error) {
	return nil, nil
}
func (r *fakeTaskRepo) FindByOwner(string, *domain.TaskStatus, int, int) ([]*domain.Task, int64, error) {
	return nil, 0, nil
}
func (r *fakeTaskRepo) Update(*domain.Task) error                      { return nil }
func (r *fakeTaskRepo) UpdateDue(string, time.Time, time.Time) error   { return nil }
func (r *fakeTaskRepo) Delete(string) error                            { return nil }

var baseTime = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func newTestScheduler() (*ReminderScheduler, *fakeNotifier, *fakeTaskRepo, *time.Time) {
	repo := newFakeTaskRepo()
	notifier := &fakeNotifier{}
	s := NewReminderScheduler(repo, notifier, time.Minute, zap.NewNop())
	current := baseTime
	s.now = func() time.Time { return current }
	return s, notifier, repo, &current
}

func taskDueIn(id string, p domain.Priority, d time.Duration) *domain.Task {
	due := baseTime.Add(d)
	return &domain.Task{
		ID:       id,
		OwnerID:  "owner-1",
		Title:    "Task " + id,
		Priority: p,
		DueAt:    &due,
	}
}

func TestScheduleRegistersFutureOffsetsOnly(t *testing.T) {
	s, _, _, _ := newTestScheduler()

	// Due in 10 minutes: the 60/30/15 minute offsets are already past and
	// the 10 minute one fires at exactly now, leaving only the 5 minute one.
	s.Schedule(taskDueIn("t1", domain.PriorityUrgent, 10*time.Minute))

	assert.Equal(t, 1, s.PendingCount("t1"))
}

func TestScheduleFarFutureGetsFullSet(t *testing.T) {
	s, _, _, _ := newTestScheduler()

	s.Schedule(taskDueIn("t1", domain.PriorityNormal, 3*time.Hour))

	assert.Equal(t, len(reminderOffsets), s.PendingCount("t1"))
}

func TestScheduleNilDueIsNoop(t *testing.T) {
	s, _, _, _ := newTestScheduler()

	s.Schedule(&domain.Task{ID: "t1", OwnerID: "owner-1", Title: "no due"})

	assert.Equal(t, 0, s.PendingCount("t1"))
}

func TestScheduleAllOffsetsPastIsNoop(t *testing.T) {
	s, _, _, _ := newTestScheduler()

	s.Schedule(taskDueIn("t1", domain.PriorityNormal, 2*time.Minute))

	assert.Equal(t, 0, s.PendingCount("t1"))
}

func TestSweepFiresDueReminders(t *testing.T) {
	s, notifier, _, current := newTestScheduler()
	s.Schedule(taskDueIn("t1", domain.PriorityNormal, 90*time.Minute))
	require.Equal(t, 5, s.PendingCount("t1"))

	// Cross the 60-minute mark.
	*current = baseTime.Add(31 * time.Minute)
	s.Sweep(context.Background())

	require.Equal(t, 1, notifier.count())
	fired := notifier.fired[0]
	assert.Equal(t, notification.TypeReminder, fired.Type)
	assert.Equal(t, "owner-1", fired.OwnerID)
	assert.Contains(t, fired.Title, "Due in 60 min")
	assert.Equal(t, 4, s.PendingCount("t1"))

	// Same sweep point again fires nothing new.
	s.Sweep(context.Background())
	assert.Equal(t, 1, notifier.count())
}

func TestSweepPrunesFullyFiredEntry(t *testing.T) {
	s, notifier, _, current := newTestScheduler()
	s.Schedule(taskDueIn("t1", domain.PriorityNormal, 90*time.Minute))

	*current = baseTime.Add(2 * time.Hour)
	s.Sweep(context.Background())

	assert.Equal(t, 5, notifier.count())
	assert.Equal(t, 0, s.PendingCount("t1"))
}

func TestSweepEscalatesImportantNearDue(t *testing.T) {
	s, _, repo, current := newTestScheduler()
	s.Schedule(taskDueIn("t1", domain.PriorityImportant, 4*time.Hour))

	s.Sweep(context.Background())
	assert.NotContains(t, repo.priorities, "t1")

	*current = baseTime.Add(150 * time.Minute)
	s.Sweep(context.Background())

	assert.Equal(t, domain.PriorityUrgent, repo.priorities["t1"])
}

func TestSweepEscalatesOnce(t *testing.T) {
	s, _, repo, _ := newTestScheduler()
	s.Schedule(taskDueIn("t1", domain.PriorityImportant, 90*time.Minute))

	s.Sweep(context.Background())
	require.Equal(t, domain.PriorityUrgent, repo.priorities["t1"])

	repo.priorities["t1"] = domain.PriorityNormal
	s.Sweep(context.Background())

	// Entry already promoted in memory, the sweep does not write again.
	assert.Equal(t, domain.PriorityNormal, repo.priorities["t1"])
}

func TestSweepRetriesFailedEscalation(t *testing.T) {
	s, _, repo, _ := newTestScheduler()
	repo.failUpdates = 1
	s.Schedule(taskDueIn("t1", domain.PriorityImportant, 90*time.Minute))

	// The write fails, so the entry must stay important in memory.
	s.Sweep(context.Background())
	assert.Empty(t, repo.priorities)

	s.Sweep(context.Background())
	assert.Equal(t, domain.PriorityUrgent, repo.priorities["t1"])
}

func TestNewReminderSchedulerDefaultsInterval(t *testing.T) {
	s := NewReminderScheduler(newFakeTaskRepo(), &fakeNotifier{}, 0, zap.NewNop())
	assert.Equal(t, DefaultSweepInterval, s.interval)
}

func TestSweepNeverEscalatesNormalOrUrgent(t *testing.T) {
	s, _, repo, _ := newTestScheduler()
	s.Schedule(taskDueIn("normal", domain.PriorityNormal, 90*time.Minute))
	s.Schedule(taskDueIn("urgent", domain.PriorityUrgent, 90*time.Minute))

	s.Sweep(context.Background())

	assert.Empty(t, repo.priorities)
}

func TestClearDropsReminders(t *testing.T) {
	s, notifier, _, current := newTestScheduler()
	s.Schedule(taskDueIn("t1", domain.PriorityNormal, 90*time.Minute))

	s.Clear("t1")
	*current = baseTime.Add(2 * time.Hour)
	s.Sweep(context.Background())

	assert.Equal(t, 0, notifier.count())
}

func TestScheduleReplacesExistingSet(t *testing.T) {
	s, _, _, _ := newTestScheduler()
	s.Schedule(taskDueIn("t1", domain.PriorityNormal, 90*time.Minute))
	require.Equal(t, 5, s.PendingCount("t1"))

	s.Schedule(taskDueIn("t1", domain.PriorityNormal, 12*time.Minute))

	assert.Equal(t, 2, s.PendingCount("t1"))
}
