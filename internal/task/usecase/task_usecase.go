package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "taskmind-backend/internal/account/domain"
	accountrepo "taskmind-backend/internal/account/repository"
	"taskmind-backend/internal/notification"
	"taskmind-backend/internal/task/domain"
	"taskmind-backend/internal/task/repository"
	"taskmind-backend/internal/usage"
)

// taskUsecase implements TaskUsecase interface
type taskUsecase struct {
	taskRepo    repository.TaskRepository
	usageRepo   usage.Repository
	notifRepo   notification.Repository
	connRepo    accountrepo.ConnectionRepository
	rescheduler *Rescheduler
	reminders   ReminderPlanner
	calendar    CalendarSink
	quota       int
	log         *zap.Logger

	// runTx wraps the quota-guarded conversion path in one transaction.
	runTx func(fn func(tx *gorm.DB) error) error
	now   func() time.Time
}

// NewTaskUsecase creates a new instance of taskUsecase. db may be nil in
// tests; conversion then runs without transactional wrapping.
func NewTaskUsecase(
	db *gorm.DB,
	taskRepo repository.TaskRepository,
	usageRepo usage.Repository,
	notifRepo notification.Repository,
	connRepo accountrepo.ConnectionRepository,
	rescheduler *Rescheduler,
	reminders ReminderPlanner,
	calendar CalendarSink,
	quota int,
	log *zap.Logger,
) TaskUsecase {
	runTx := func(fn func(tx *gorm.DB) error) error { return fn(nil) }
	if db != nil {
		runTx = func(fn func(tx *gorm.DB) error) error { return db.Transaction(fn) }
	}
	return &taskUsecase{
		taskRepo:    taskRepo,
		usageRepo:   usageRepo,
		notifRepo:   notifRepo,
		connRepo:    connRepo,
		rescheduler: rescheduler,
		reminders:   reminders,
		calendar:    calendar,
		quota:       quota,
		log:         log,
		runTx:       runTx,
		now:         time.Now,
	}
}

func (u *taskUsecase) CreateTask(ownerID string, req TaskCreateRequest) (*domain.Task, error) {
	now := u.now()
	task := &domain.Task{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		Title:            req.Title,
		Description:      req.Description,
		Priority:         domain.ParsePriority(req.Priority),
		Status:           domain.TaskStatusPending,
		EstimatedMinutes: req.EstimatedMinutes,
	}
	if task.EstimatedMinutes <= 0 {
		task.EstimatedMinutes = 15
	}
	if req.DueAt != nil && *req.DueAt != "" {
		if t, err := time.Parse(time.RFC3339, *req.DueAt); err == nil {
			task.DueAt = &t
			task.DueSetAt = &now
		}
	}

	if err := u.taskRepo.Create(task); err != nil {
		return nil, err
	}
	if u.reminders != nil {
		u.reminders.Schedule(task)
	}
	return task, nil
}

func (u *taskUsecase) GetTaskByID(ownerID, taskID string) (*domain.Task, error) {
	task, err := u.taskRepo.FindByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	if task.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	return task, nil
}

func (u *taskUsecase) GetUserTasks(ownerID string, status *string, limit, offset int) ([]*domain.Task, int64, error) {
	var statusFilter *domain.TaskStatus
	if status != nil && *status != "" {
		s := domain.TaskStatus(*status)
		if !domain.ValidStatus(s) {
			return nil, 0, ErrInvalidStatus
		}
		statusFilter = &s
	}
	return u.taskRepo.FindByOwner(ownerID, statusFilter, limit, offset)
}

func (u *taskUsecase) UpdateTask(ownerID, taskID string, updates TaskUpdateRequest) (*domain.Task, error) {
	task, err := u.GetTaskByID(ownerID, taskID)
	if err != nil {
		return nil, err
	}

	dueChanged := false
	if updates.Title != nil {
		task.Title = *updates.Title
	}
	if updates.Description != nil {
		task.Description = *updates.Description
	}
	if updates.Priority != nil {
		task.Priority = domain.ParsePriority(*updates.Priority)
	}
	if updates.EstimatedMinutes != nil && *updates.EstimatedMinutes > 0 {
		task.EstimatedMinutes = *updates.EstimatedMinutes
	}
	if updates.DueAt != nil {
		if *updates.DueAt == "" {
			task.DueAt = nil
			task.DueSetAt = nil
			dueChanged = true
		} else if t, err := time.Parse(time.RFC3339, *updates.DueAt); err == nil {
			now := u.now()
			task.DueAt = &t
			task.DueSetAt = &now
			dueChanged = true
		}
	}

	if err := u.taskRepo.Update(task); err != nil {
		return nil, err
	}
	if dueChanged && u.reminders != nil {
		u.reminders.Clear(task.ID)
		u.reminders.Schedule(task)
	}
	return task, nil
}

func (u *taskUsecase) UpdateStatus(ctx context.Context, ownerID, taskID string, status domain.TaskStatus) (*domain.Task, error) {
	if !domain.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	task, err := u.GetTaskByID(ownerID, taskID)
	if err != nil {
		return nil, err
	}
	now := u.now()

	switch status {
	case domain.TaskStatusInProgress:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case domain.TaskStatusCompleted:
		task.CompletedAt = &now
		if task.StartedAt != nil && task.ActualMinutes == nil {
			actual := int(now.Sub(*task.StartedAt).Minutes())
			if actual < 1 {
				actual = 1
			}
			task.ActualMinutes = &actual
		}
	}
	task.Status = status

	if err := u.taskRepo.Update(task); err != nil {
		return nil, err
	}

	if status == domain.TaskStatusCompleted && u.reminders != nil {
		u.reminders.Clear(task.ID)
	}
	if (status == domain.TaskStatusCompleted || status == domain.TaskStatusInProgress) && u.rescheduler != nil {
		completedID := ""
		if status == domain.TaskStatusCompleted {
			completedID = task.ID
		}
		if _, err := u.rescheduler.Reschedule(ctx, ownerID, completedID); err != nil {
			u.log.Warn("reschedule after status change failed",
				zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	return task, nil
}

func (u *taskUsecase) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	task, err := u.GetTaskByID(ownerID, taskID)
	if err != nil {
		return err
	}
	if err := u.taskRepo.Delete(task.ID); err != nil {
		return err
	}
	if u.reminders != nil {
		u.reminders.Clear(task.ID)
	}
	u.removeCalendarEvent(ctx, task)
	return nil
}

// removeCalendarEvent drops the mirrored calendar block for a task. Fire and
// continue: failures are logged, the deletion stands either way.
func (u *taskUsecase) removeCalendarEvent(ctx context.Context, task *domain.Task) {
	if u.calendar == nil || u.connRepo == nil || task.CalendarEventID == "" {
		return
	}
	cred, ok := u.calendarCredential(task.OwnerID)
	if !ok {
		return
	}
	if err := u.calendar.DeleteEvent(ctx, cred, task.CalendarEventID); err != nil {
		u.log.Warn("failed to remove calendar event",
			zap.String("task_id", task.ID), zap.Error(err))
	}
}

func (u *taskUsecase) ConvertNotification(ctx context.Context, ownerID, notificationID string, draftIndices []int) ([]*domain.Task, error) {
	notif, err := u.notifRepo.FindByID(ownerID, notificationID)
	if err != nil {
		return nil, err
	}
	if notif == nil {
		return nil, ErrNotificationNotFound
	}

	var payload SuggestionPayload
	if err := json.Unmarshal([]byte(notif.Payload), &payload); err != nil {
		return nil, err
	}

	drafts := payload.Drafts
	if len(draftIndices) > 0 {
		selected := make([]domain.TaskDraft, 0, len(draftIndices))
		for _, i := range draftIndices {
			if i < 0 || i >= len(payload.Drafts) {
				continue
			}
			selected = append(selected, payload.Drafts[i])
		}
		drafts = selected
	}
	if len(drafts) == 0 {
		return nil, ErrNotificationNotFound
	}

	now := u.now()
	month := usage.MonthKey(now)

	tasks := make([]*domain.Task, 0, len(drafts))
	err = u.runTx(func(tx *gorm.DB) error {
		for _, draft := range drafts {
			if err := u.usageRepo.Reserve(tx, ownerID, month, u.quota); err != nil {
				return err
			}
			task := &domain.Task{
				ID:               uuid.New().String(),
				OwnerID:          ownerID,
				Title:            draft.Title,
				Description:      draft.Description,
				Priority:         draft.Priority,
				Status:           domain.TaskStatusPending,
				EstimatedMinutes: draft.EstimatedMinutes,
				DueAt:            draft.DueAt,
				SourceItemID:     draft.SourceItemID,
				SourceAccountID:  draft.SourceAccountID,
				SourceSender:     draft.SourceSender,
				GroupID:          draft.GroupID,
				GroupIndex:       draft.GroupIndex,
				GroupSize:        draft.GroupSize,
				AIGenerated:      true,
			}
			if task.EstimatedMinutes <= 0 {
				task.EstimatedMinutes = 15
			}
			if task.DueAt != nil {
				task.DueSetAt = &now
			}
			if err := u.taskRepo.CreateInTx(tx, task); err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := u.notifRepo.MarkRead(ownerID, notificationID); err != nil {
		u.log.Warn("failed to mark suggestion read",
			zap.String("notification_id", notificationID), zap.Error(err))
	}

	for _, task := range tasks {
		if u.reminders != nil {
			u.reminders.Schedule(task)
		}
		u.syncCalendar(ctx, task)
	}
	return tasks, nil
}

func (u *taskUsecase) TriggerReschedule(ctx context.Context, ownerID string) (*RescheduleReport, error) {
	return u.rescheduler.Reschedule(ctx, ownerID, "")
}

// syncCalendar blocks out the task in the owner's calendar. Fire-and-
// continue: failures are logged, the task stands either way.
func (u *taskUsecase) syncCalendar(ctx context.Context, task *domain.Task) {
	if u.calendar == nil || u.connRepo == nil || task.DueAt == nil {
		return
	}
	cred, ok := u.calendarCredential(task.OwnerID)
	if !ok {
		return
	}
	eventID, err := u.calendar.CreateEvent(ctx, cred, task.Title, task.Description, *task.DueAt, task.EstimatedMinutes)
	if err != nil {
		u.log.Warn("calendar sync failed",
			zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	task.CalendarEventID = eventID
	if err := u.taskRepo.Update(task); err != nil {
		u.log.Warn("failed to store calendar event id",
			zap.String("task_id", task.ID), zap.Error(err))
	}
}

func (u *taskUsecase) calendarCredential(ownerID string) (accountdomain.Credential, bool) {
	conns, err := u.connRepo.FindByOwner(ownerID)
	if err != nil {
		u.log.Warn("failed to load connections for calendar sync", zap.Error(err))
		return accountdomain.Credential{}, false
	}
	for _, conn := range conns {
		if conn.Provider == accountdomain.ProviderGmail && conn.Status == accountdomain.ConnectionActive {
			return conn.Credential(), true
		}
	}
	return accountdomain.Credential{}, false
}
