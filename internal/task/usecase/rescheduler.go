package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"taskmind-backend/internal/task/domain"
	"taskmind-backend/internal/task/repository"
)

const (
	// dueRecencyWindow guards against churn: a task whose future due time
	// was set this recently keeps it.
	dueRecencyWindow = 2 * time.Minute
	// rewriteThreshold suppresses sub-threshold oscillation. A computed due
	// time is only written when it moves at least this much.
	rewriteThreshold = 10 * time.Minute
)

// gap bases per priority, in minutes. Urgent tasks get packed tight.
var gapBaseMinutes = map[domain.Priority]float64{
	domain.PriorityUrgent:    5,
	domain.PriorityImportant: 15,
	domain.PriorityNormal:    30,
}

// ReminderPlanner mirrors the reminder scheduler's lifecycle surface.
type ReminderPlanner interface {
	Schedule(task *domain.Task)
	Clear(taskID string)
}

// RescheduledTask describes one due-time rewrite.
type RescheduledTask struct {
	TaskID       string     `json:"task_id"`
	Title        string     `json:"title"`
	OldDue       *time.Time `json:"old_due,omitempty"`
	NewDue       time.Time  `json:"new_due"`
	ShiftMinutes int        `json:"shift_minutes"`
}

// RescheduleReport is the outcome of one reschedule run.
type RescheduleReport struct {
	Rescheduled []RescheduledTask `json:"rescheduled"`
	Insights    []string          `json:"insights"`
	// TotalTimeSavedMinutes sums the earlier (negative) shifts.
	TotalTimeSavedMinutes int     `json:"total_time_saved_minutes"`
	AccuracyRatio         float64 `json:"accuracy_ratio"`
}

// Rescheduler recomputes due times for all pending tasks of one owner,
// packing them by priority with gaps tuned to the owner's historical
// estimate accuracy and the time of day.
type Rescheduler struct {
	taskRepo  repository.TaskRepository
	reminders ReminderPlanner
	log       *zap.Logger
	now       func() time.Time
}

func NewRescheduler(taskRepo repository.TaskRepository, reminders ReminderPlanner, log *zap.Logger) *Rescheduler {
	return &Rescheduler{
		taskRepo:  taskRepo,
		reminders: reminders,
		log:       log,
		now:       time.Now,
	}
}

// Reschedule runs one pass. justCompletedTaskID is informational (it feeds
// the insight text); pass "" when triggered manually. Repeated invocation
// with an unchanged task set produces no further shifts.
func (r *Rescheduler) Reschedule(ctx context.Context, ownerID, justCompletedTaskID string) (*RescheduleReport, error) {
	now := r.now()

	ratio, samples, err := r.accuracyRatio(ownerID)
	if err != nil {
		return nil, err
	}

	pending, err := r.taskRepo.FindPending(ownerID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if ri, rj := pending[i].Priority.Rank(), pending[j].Priority.Rank(); ri != rj {
			return ri < rj
		}
		di, dj := pending[i].DueAt, pending[j].DueAt
		if di == nil {
			return false
		}
		if dj == nil {
			return true
		}
		return di.Before(*dj)
	})

	report := &RescheduleReport{AccuracyRatio: ratio}
	cursor := now

	for _, task := range pending {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Recently (re)scheduled tasks keep their due time.
		if task.DueAt != nil && task.DueAt.After(now) &&
			task.DueSetAt != nil && now.Sub(*task.DueSetAt) < dueRecencyWindow {
			continue
		}

		estimate := task.EstimatedMinutes
		if estimate <= 0 {
			estimate = 15
		}
		adjusted := time.Duration(math.Round(float64(estimate)*ratio)) * time.Minute

		cursor = cursor.Add(r.gap(task.Priority, cursor))
		newDue := cursor.Add(adjusted)
		cursor = newDue

		if task.DueAt != nil {
			shift := newDue.Sub(*task.DueAt)
			if shift < rewriteThreshold && shift > -rewriteThreshold {
				continue
			}
		}

		if err := r.taskRepo.UpdateDue(task.ID, newDue, now); err != nil {
			r.log.Error("failed to rewrite due time",
				zap.String("task_id", task.ID), zap.Error(err))
			continue
		}

		entry := RescheduledTask{TaskID: task.ID, Title: task.Title, OldDue: task.DueAt, NewDue: newDue}
		if task.DueAt != nil {
			entry.ShiftMinutes = int(newDue.Sub(*task.DueAt).Minutes())
			if entry.ShiftMinutes < 0 {
				report.TotalTimeSavedMinutes += -entry.ShiftMinutes
			}
		}
		report.Rescheduled = append(report.Rescheduled, entry)

		if r.reminders != nil {
			task.DueAt = &newDue
			r.reminders.Clear(task.ID)
			r.reminders.Schedule(task)
		}
	}

	report.Insights = r.insights(ratio, samples, len(report.Rescheduled), report.TotalTimeSavedMinutes, justCompletedTaskID)
	return report, nil
}

// accuracyRatio is sum(actual) / sum(estimated) over completed tasks with
// both a start and a completion time. No history means 1.0.
func (r *Rescheduler) accuracyRatio(ownerID string) (float64, int, error) {
	completed, err := r.taskRepo.FindCompletedWithTimes(ownerID)
	if err != nil {
		return 0, 0, err
	}

	var actualSum, estimateSum float64
	samples := 0
	for _, t := range completed {
		if t.EstimatedMinutes <= 0 {
			continue
		}
		actual := 0.0
		if t.ActualMinutes != nil {
			actual = float64(*t.ActualMinutes)
		} else if t.StartedAt != nil && t.CompletedAt != nil {
			actual = t.CompletedAt.Sub(*t.StartedAt).Minutes()
		}
		if actual <= 0 {
			continue
		}
		actualSum += actual
		estimateSum += float64(t.EstimatedMinutes)
		samples++
	}
	if samples == 0 || estimateSum == 0 {
		return 1.0, 0, nil
	}
	return actualSum / estimateSum, samples, nil
}

// gap returns the spacing inserted before a task: a priority base scaled by
// the time of day at the cursor. Mornings pack tighter, evenings looser.
func (r *Rescheduler) gap(p domain.Priority, at time.Time) time.Duration {
	base, ok := gapBaseMinutes[p]
	if !ok {
		base = gapBaseMinutes[domain.PriorityNormal]
	}

	factor := 1.0
	switch hour := at.Hour(); {
	case hour >= 9 && hour < 11:
		factor = 0.8
	case hour >= 14 && hour < 16:
		factor = 0.9
	case hour >= 21 || hour < 6:
		factor = 1.3
	}
	return time.Duration(math.Round(base*factor)) * time.Minute
}

func (r *Rescheduler) insights(ratio float64, samples, rescheduled, saved int, justCompletedTaskID string) []string {
	var insights []string

	if samples > 0 {
		pct := int(math.Round((ratio - 1.0) * 100))
		switch {
		case pct >= 10:
			insights = append(insights, fmt.Sprintf("+%d%% average overrun on past tasks, schedules lengthened to match", pct))
		case pct <= -10:
			insights = append(insights, fmt.Sprintf("You finish tasks %d%% faster than estimated, schedules tightened", -pct))
		}
	}
	if justCompletedTaskID != "" && rescheduled > 0 {
		insights = append(insights, fmt.Sprintf("Completing a task freed up your schedule, %d task(s) moved", rescheduled))
	} else if rescheduled > 0 {
		insights = append(insights, fmt.Sprintf("%d task(s) rescheduled", rescheduled))
	}
	if saved > 0 {
		insights = append(insights, fmt.Sprintf("Total time saved: %d minutes", saved))
	}
	return insights
}
