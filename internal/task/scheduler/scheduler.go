package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskmind-backend/internal/notification"
	"taskmind-backend/internal/task/domain"
	"taskmind-backend/internal/task/repository"
)

// reminderOffsets are the lead times before due at which a reminder fires,
// longest first.
var reminderOffsets = []time.Duration{
	60 * time.Minute,
	30 * time.Minute,
	15 * time.Minute,
	10 * time.Minute,
	5 * time.Minute,
}

const (
	// DefaultSweepInterval paces the reminder scan.
	DefaultSweepInterval = time.Minute
	// escalationHorizon promotes important tasks whose due time is this
	// close. Promotion is one-directional, the sweep never demotes.
	escalationHorizon = 2 * time.Hour
)

// Notifier delivers reminder notifications. Satisfied by the notification
// service.
type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) error
}

type reminder struct {
	fireAt time.Time
	offset time.Duration
	fired  bool
}

// taskEntry is the in-memory reminder state for one task. Reminders are not
// persisted: a completed or deleted task clears them for good, and a
// material due-time change rebuilds them from scratch.
type taskEntry struct {
	ownerID   string
	title     string
	priority  domain.Priority
	due       time.Time
	reminders []*reminder
}

// ReminderScheduler keeps per-task reminder sets and sweeps them once a
// minute, firing due reminders and escalating near-due important tasks.
type ReminderScheduler struct {
	mu      sync.Mutex
	entries map[string]*taskEntry

	taskRepo repository.TaskRepository
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
	interval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewReminderScheduler(taskRepo repository.TaskRepository, notifier Notifier, interval time.Duration, log *zap.Logger) *ReminderScheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &ReminderScheduler{
		entries:  make(map[string]*taskEntry),
		taskRepo: taskRepo,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *ReminderScheduler) Start(ctx context.Context) {
	s.log.Info("reminder scheduler started", zap.Duration("interval", s.interval))
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweep loop.
func (s *ReminderScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Schedule registers the reminder set for a task with a due time. Offsets
// already in the past are dropped, never fired retroactively. Tasks without
// a due time, or whose offsets are all past, get no entry.
func (s *ReminderScheduler) Schedule(task *domain.Task) {
	if task == nil || task.DueAt == nil {
		return
	}
	now := s.now()

	var reminders []*reminder
	for _, offset := range reminderOffsets {
		fireAt := task.DueAt.Add(-offset)
		if !fireAt.After(now) {
			continue
		}
		reminders = append(reminders, &reminder{fireAt: fireAt, offset: offset})
	}
	if len(reminders) == 0 {
		return
	}
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].fireAt.Before(reminders[j].fireAt) })

	s.mu.Lock()
	s.entries[task.ID] = &taskEntry{
		ownerID:   task.OwnerID,
		title:     task.Title,
		priority:  task.Priority,
		due:       *task.DueAt,
		reminders: reminders,
	}
	s.mu.Unlock()
}

// Clear drops all reminder state for a task. Idempotent.
func (s *ReminderScheduler) Clear(taskID string) {
	s.mu.Lock()
	delete(s.entries, taskID)
	s.mu.Unlock()
}

// PendingCount reports how many unfired reminders a task has.
func (s *ReminderScheduler) PendingCount(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[taskID]
	if !ok {
		return 0
	}
	count := 0
	for _, r := range entry.reminders {
		if !r.fired {
			count++
		}
	}
	return count
}

// Sweep is one scan: fire due unfired reminders, prune emptied sets, and
// escalate important tasks inside the horizon. Exported so lifecycle events
// can force an immediate pass.
func (s *ReminderScheduler) Sweep(ctx context.Context) {
	now := s.now()

	type firing struct {
		taskID string
		entry  *taskEntry
		rem    *reminder
	}
	var toFire []firing
	var toEscalate []firing

	s.mu.Lock()
	for taskID, entry := range s.entries {
		for _, rem := range entry.reminders {
			if !rem.fired && !rem.fireAt.After(now) {
				rem.fired = true
				toFire = append(toFire, firing{taskID: taskID, entry: entry, rem: rem})
			}
		}

		if entry.priority == domain.PriorityImportant && entry.due.Sub(now) < escalationHorizon {
			toEscalate = append(toEscalate, firing{taskID: taskID, entry: entry})
		}

		allFired := true
		for _, rem := range entry.reminders {
			if !rem.fired {
				allFired = false
				break
			}
		}
		if allFired {
			delete(s.entries, taskID)
		}
	}
	s.mu.Unlock()

	for _, f := range toFire {
		s.fire(ctx, f.taskID, f.entry, f.rem)
	}
	for _, e := range toEscalate {
		if err := s.taskRepo.UpdatePriority(e.taskID, domain.PriorityUrgent); err != nil {
			// The entry stays important so the next sweep retries the write.
			s.log.Error("failed to escalate task priority",
				zap.String("task_id", e.taskID), zap.Error(err))
			continue
		}
		s.mu.Lock()
		e.entry.priority = domain.PriorityUrgent
		s.mu.Unlock()
		s.log.Info("task escalated to urgent", zap.String("task_id", e.taskID))
	}
}

// fire emits one reminder notification. Delivery failures are logged and the
// reminder stays marked fired, reminders are never retried.
func (s *ReminderScheduler) fire(ctx context.Context, taskID string, entry *taskEntry, rem *reminder) {
	minutes := int(rem.offset.Minutes())
	n := &notification.Notification{
		ID:      uuid.New().String(),
		OwnerID: entry.ownerID,
		Type:    notification.TypeReminder,
		Title:   fmt.Sprintf("Due in %d min: %s", minutes, entry.title),
		Body:    fmt.Sprintf("%q is due at %s", entry.title, entry.due.Format("15:04")),
		Payload: fmt.Sprintf(`{"task_id":%q,"offset_minutes":%d}`, taskID, minutes),
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("failed to deliver reminder",
			zap.String("task_id", taskID),
			zap.Int("offset_minutes", minutes),
			zap.Error(err))
	}
}
