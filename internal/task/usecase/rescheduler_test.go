package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskmind-backend/internal/task/domain"
)

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*domain.Task)}
}

func (r *fakeTaskRepo) add(t *domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
}

func (r *fakeTaskRepo) Create(task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) CreateInTx(_ *gorm.DB, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) FindByID(id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id], nil
}

func (r *fakeTaskRepo) FindByOwner(ownerID string, status *domain.TaskStatus, _, _ int) ([]*domain.Task, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Task
	for _, t := range r.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

func (r *fakeTaskRepo) FindPending(ownerID string) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Task
	for _, t := range r.tasks {
		if t.OwnerID == ownerID && t.Status == domain.TaskStatusPending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) FindCompletedWithTimes(ownerID string) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Task
	for _, t := range r.tasks {
		if t.OwnerID == ownerID && t.Status == domain.TaskStatusCompleted &&
			t.StartedAt != nil && t.CompletedAt != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) Update(task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) UpdateDue(id string, due, setAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tasks[id]
	d, s := due, setAt
	t.DueAt = &d
	t.DueSetAt = &s
	return nil
}

func (r *fakeTaskRepo) UpdatePriority(id string, p domain.Priority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[id].Priority = p
	return nil
}

func (r *fakeTaskRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

type fakePlanner struct {
	mu        sync.Mutex
	scheduled []string
	cleared   []string
}

func (p *fakePlanner) Schedule(task *domain.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scheduled = append(p.scheduled, task.ID)
}

func (p *fakePlanner) Clear(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, taskID)
}

// Noon keeps the time-of-day gap factor at 1.0.
var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestRescheduler(repo *fakeTaskRepo) *Rescheduler {
	r := NewRescheduler(repo, &fakePlanner{}, zap.NewNop())
	r.now = func() time.Time { return noon }
	return r
}

func pendingTask(id string, p domain.Priority, estimate int) *domain.Task {
	return &domain.Task{
		ID:               id,
		OwnerID:          "owner-1",
		Title:            id,
		Priority:         p,
		Status:           domain.TaskStatusPending,
		EstimatedMinutes: estimate,
	}
}

func completedTask(id string, estimate, actual int) *domain.Task {
	started := noon.Add(-3 * time.Hour)
	completed := started.Add(time.Duration(actual) * time.Minute)
	return &domain.Task{
		ID:               id,
		OwnerID:          "owner-1",
		Priority:         domain.PriorityNormal,
		Status:           domain.TaskStatusCompleted,
		EstimatedMinutes: estimate,
		ActualMinutes:    &actual,
		StartedAt:        &started,
		CompletedAt:      &completed,
	}
}

func TestRescheduleOrdersByPriority(t *testing.T) {
	repo := newFakeTaskRepo()
	repo.add(pendingTask("normal", domain.PriorityNormal, 30))
	repo.add(pendingTask("urgent", domain.PriorityUrgent, 30))
	repo.add(pendingTask("important", domain.PriorityImportant, 30))
	r := newTestRescheduler(repo)

	report, err := r.Reschedule(context.Background(), "owner-1", "")
	require.NoError(t, err)
	require.Len(t, report.Rescheduled, 3)

	urgent := repo.tasks["urgent"].DueAt
	important := repo.tasks["important"].DueAt
	normal := repo.tasks["normal"].DueAt
	require.NotNil(t, urgent)
	assert.True(t, urgent.Before(*important))
	assert.True(t, important.Before(*normal))

	// Urgent: 5 min gap + 30 min estimate from noon.
	assert.Equal(t, noon.Add(35*time.Minute), *urgent)
}

func TestRescheduleAppliesAccuracyRatio(t *testing.T) {
	repo := newFakeTaskRepo()
	// History: consistently 1.5x over estimate.
	repo.add(completedTask("done-1", 20, 30))
	repo.add(completedTask("done-2", 40, 60))
	repo.add(pendingTask("next", domain.PriorityNormal, 60))
	r := newTestRescheduler(repo)

	report, err := r.Reschedule(context.Background(), "owner-1", "")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, report.AccuracyRatio, 0.001)

	// 30 min gap + 60*1.5 adjusted estimate.
	require.NotNil(t, repo.tasks["next"].DueAt)
	assert.Equal(t, noon.Add(120*time.Minute), *repo.tasks["next"].DueAt)

	require.NotEmpty(t, report.Insights)
	assert.Contains(t, report.Insights[0], "+50%")
}

func TestRescheduleIdempotentOnImmediateRerun(t *testing.T) {
	repo := newFakeTaskRepo()
	repo.add(pendingTask("a", domain.PriorityUrgent, 30))
	repo.add(pendingTask("b", domain.PriorityNormal, 45))
	r := newTestRescheduler(repo)

	first, err := r.Reschedule(context.Background(), "owner-1", "")
	require.NoError(t, err)
	require.Len(t, first.Rescheduled, 2)

	second, err := r.Reschedule(context.Background(), "owner-1", "")
	require.NoError(t, err)
	assert.Empty(t, second.Rescheduled)
}

func TestRescheduleThresholdSuppressesSmallShifts(t *testing.T) {
	repo := newFakeTaskRepo()
	task := pendingTask("near", domain.PriorityNormal, 15)
	// Computed slot would be noon + 30 gap + 15 estimate = noon+45m; the
	// existing due is 5 minutes off, below the rewrite threshold.
	due := noon.Add(40 * time.Minute)
	setAt := noon.Add(-time.Hour)
	task.DueAt = &due
	task.DueSetAt = &setAt
	repo.add(task)
	r := newTestRescheduler(repo)

	report, err := r.Reschedule(context.Background(), "owner-1", "")
	require.NoError(t, err)

	assert.Empty(t, report.Rescheduled)
	assert.Equal(t, due, *repo.tasks["near"].DueAt)
}

func TestRescheduleSkipsRecentlySetDue(t *testing.T) {
	repo := newFakeTaskRepo()
	task := pendingTask("fresh", domain.PriorityUrgent, 30)
	due := noon.Add(6 * time.Hour)
	setAt := noon.Add(-time.Minute)
	task.DueAt = &due
	task.DueSetAt = &setAt
	repo.add(task)
	r := newTestRescheduler(repo)

	report, err := r.Reschedule(context.Background(), "owner-1", "")
	require.NoError(t, err)

	assert.Empty(t, report.Rescheduled)
	assert.Equal(t, due, *repo.tasks["fresh"].DueAt)
}

func TestRescheduleCountsTimeSaved(t *testing.T) {
	repo := newFakeTaskRepo()
	task := pendingTask("late", domain.PriorityUrgent, 30)
	// Previously pushed far out; packing pulls it much earlier.
	due := noon.Add(8 * time.Hour)
	setAt := noon.Add(-time.Hour)
	task.DueAt = &due
	task.DueSetAt = &setAt
	repo.add(task)
	r := newTestRescheduler(repo)

	report, err := r.Reschedule(context.Background(), "owner-1", "")
	require.NoError(t, err)

	require.Len(t, report.Rescheduled, 1)
	// 8h down to 35 min: 445 minutes earlier.
	assert.Equal(t, 445, report.TotalTimeSavedMinutes)
}

func TestGapTimeOfDayScaling(t *testing.T) {
	r := newTestRescheduler(newFakeTaskRepo())

	morning := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	afternoon := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

	assert.Equal(t, 24*time.Minute, r.gap(domain.PriorityNormal, morning))
	assert.Equal(t, 27*time.Minute, r.gap(domain.PriorityNormal, afternoon))
	assert.Equal(t, 39*time.Minute, r.gap(domain.PriorityNormal, evening))
	assert.Equal(t, 30*time.Minute, r.gap(domain.PriorityNormal, noon))
	assert.Equal(t, 5*time.Minute, r.gap(domain.PriorityUrgent, noon))
	assert.Equal(t, 15*time.Minute, r.gap(domain.PriorityImportant, noon))
}
