package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/cache"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/events"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/redact"
	"github.com/phrazzld/tasker-api/internal/store"
)

// DefaultCacheTTL is how long cached task lists live.
const DefaultCacheTTL = 60 * time.Second

// TaskPage is one page of a user's task list.
type TaskPage struct {
	Tasks      []*domain.Task    `json:"tasks"`
	Pagination domain.Pagination `json:"pagination"`
}

// CreateTaskInput carries the fields of a new task. Empty status and priority
// fall back to PENDING and MEDIUM.
type CreateTaskInput struct {
	Title       string
	Description string
	Status      domain.TaskStatus
	Priority    domain.TaskPriority
	DueDate     *time.Time
}

// TaskService manages a user's tasks. Every method is scoped to userID:
// reading or writing another user's task returns ErrNotOwned, and unknown or
// deleted tasks return store.ErrTaskNotFound.
type TaskService interface {
	List(ctx context.Context, userID uuid.UUID, filter domain.TaskFilter) (*TaskPage, error)
	Create(ctx context.Context, userID uuid.UUID, input CreateTaskInput) (*domain.Task, error)
	Get(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)
	Update(ctx context.Context, userID, taskID uuid.UUID, patch domain.TaskPatch) (*domain.Task, error)

	// UpdateWith is Update with the patch built by build once ownership has
	// been checked, so a caller that does not own the task gets ErrNotOwned
	// even when its payload is invalid.
	UpdateWith(ctx context.Context, userID, taskID uuid.UUID, build PatchBuilder) (*domain.Task, error)

	Delete(ctx context.Context, userID, taskID uuid.UUID) error
	Complete(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)

	// Overdue lists pending tasks due before today.
	Overdue(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)

	// HighPriority lists pending HIGH priority tasks.
	HighPriority(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)
}

// PatchBuilder produces the changes for UpdateWith.
type PatchBuilder func() (domain.TaskPatch, error)

type taskServiceImpl struct {
	tasks   store.TaskStore
	cache   cache.TaskCache
	emitter events.EventEmitter
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewTaskService creates a new TaskService. A nil cache disables caching and
// a nil emitter drops events. A non-positive ttl uses DefaultCacheTTL.
func NewTaskService(
	tasks store.TaskStore,
	taskCache cache.TaskCache,
	emitter events.EventEmitter,
	ttl time.Duration,
	logger *slog.Logger,
) (TaskService, error) {
	if tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", domain.ErrValidation)
	}
	if taskCache == nil {
		taskCache = cache.NopCache{}
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		tasks:   tasks,
		cache:   taskCache,
		emitter: emitter,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "task_service")),
		now:     time.Now,
	}, nil
}

// List implements TaskService.List
func (s *taskServiceImpl) List(ctx context.Context, userID uuid.UUID, filter domain.TaskFilter) (*TaskPage, error) {
	filter = filter.Normalize()

	var page TaskPage
	err := s.cache.Remember(ctx, userID, cache.ListKey(filter), s.ttl, &page, func(ctx context.Context) error {
		tasks, total, err := s.tasks.List(ctx, userID, filter)
		if err != nil {
			return err
		}
		page = TaskPage{Tasks: nonNil(tasks), Pagination: domain.NewPagination(filter, total)}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "list", err)
	}
	page.Tasks = nonNil(page.Tasks)
	return &page, nil
}

// Overdue implements TaskService.Overdue
func (s *taskServiceImpl) Overdue(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	today := s.now()
	return s.cachedList(ctx, userID, cache.OverdueKey(today), "overdue", func(ctx context.Context) ([]*domain.Task, error) {
		return s.tasks.ListOverdue(ctx, userID, today)
	})
}

// HighPriority implements TaskService.HighPriority
func (s *taskServiceImpl) HighPriority(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	return s.cachedList(ctx, userID, cache.HighPriorityKey(), "high_priority", func(ctx context.Context) ([]*domain.Task, error) {
		return s.tasks.ListHighPriority(ctx, userID)
	})
}

func (s *taskServiceImpl) cachedList(
	ctx context.Context,
	userID uuid.UUID,
	key, op string,
	load func(ctx context.Context) ([]*domain.Task, error),
) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := s.cache.Remember(ctx, userID, key, s.ttl, &tasks, func(ctx context.Context) error {
		loaded, err := load(ctx)
		if err != nil {
			return err
		}
		tasks = nonNil(loaded)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return nonNil(tasks), nil
}

// Create implements TaskService.Create
func (s *taskServiceImpl) Create(ctx context.Context, userID uuid.UUID, input CreateTaskInput) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if strings.TrimSpace(input.Description) == "" {
		return nil, domain.NewValidationError("description", "is required", domain.ErrEmptyTaskDescription)
	}
	if err := domain.ValidateDueDate(input.DueDate, s.now()); err != nil {
		return nil, err
	}

	task, err := domain.NewTask(userID, input.Title, input.Description, input.Status, input.Priority, input.DueDate)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, s.fail(ctx, "create", err)
	}

	log.Info("task created", "task_id", task.ID, "user_id", userID)
	s.afterWrite(ctx, events.TaskCreated, task)
	return task, nil
}

// Get implements TaskService.Get
func (s *taskServiceImpl) Get(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	return s.owned(ctx, userID, taskID, "get")
}

// Update implements TaskService.Update
func (s *taskServiceImpl) Update(
	ctx context.Context,
	userID, taskID uuid.UUID,
	patch domain.TaskPatch,
) (*domain.Task, error) {
	return s.UpdateWith(ctx, userID, taskID, func() (domain.TaskPatch, error) { return patch, nil })
}

// UpdateWith implements TaskService.UpdateWith
func (s *taskServiceImpl) UpdateWith(
	ctx context.Context,
	userID, taskID uuid.UUID,
	build PatchBuilder,
) (*domain.Task, error) {
	task, err := s.owned(ctx, userID, taskID, "update")
	if err != nil {
		return nil, err
	}
	patch, err := build()
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return task, nil
	}

	if patch.DueDate.Set {
		if err := domain.ValidateDueDate(patch.DueDate.Value, s.now()); err != nil {
			return nil, err
		}
	}
	if err := patch.Apply(task, s.now()); err != nil {
		return nil, err
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, s.fail(ctx, "update", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("task updated", "task_id", task.ID, "user_id", userID)
	s.afterWrite(ctx, events.TaskUpdated, task)
	return task, nil
}

// Complete implements TaskService.Complete
func (s *taskServiceImpl) Complete(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	task, err := s.owned(ctx, userID, taskID, "complete")
	if err != nil {
		return nil, err
	}

	task.MarkCompleted(s.now())
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, s.fail(ctx, "complete", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("task completed", "task_id", task.ID, "user_id", userID)
	s.afterWrite(ctx, events.TaskUpdated, task)
	return task, nil
}

// Delete implements TaskService.Delete
func (s *taskServiceImpl) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	task, err := s.owned(ctx, userID, taskID, "delete")
	if err != nil {
		return err
	}

	if err := s.tasks.SoftDelete(ctx, task.ID, s.now()); err != nil {
		return s.fail(ctx, "delete", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("task deleted", "task_id", task.ID, "user_id", userID)
	s.afterWrite(ctx, events.TaskDeleted, task)
	return nil
}

// owned loads the task and applies the ownership policy. A missing task is
// reported before an ownership failure.
func (s *taskServiceImpl) owned(ctx context.Context, userID, taskID uuid.UUID, op string) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if !task.OwnedBy(userID) {
		logger.FromContextOrDefault(ctx, s.logger).Warn("task access denied",
			"task_id", taskID,
			"user_id", userID,
			"op", op)
		return nil, ErrNotOwned
	}
	return task, nil
}

// afterWrite invalidates the owner's cached lists and emits the event. Both
// are best effort: the write has already been committed.
func (s *taskServiceImpl) afterWrite(ctx context.Context, name string, task *domain.Task) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.cache.InvalidateUser(ctx, task.UserID); err != nil {
		log.Warn("failed to invalidate task cache",
			"user_id", task.UserID,
			"error", redact.Error(err))
	}

	if err := s.emitter.EmitEvent(ctx, events.NewTaskEvent(name, task)); err != nil {
		log.Error("failed to emit task event",
			"event", name,
			"task_id", task.ID,
			"error", redact.Error(err))
	}
}

// fail passes expected errors through and wraps the rest.
func (s *taskServiceImpl) fail(ctx context.Context, op string, err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	logger.FromContextOrDefault(ctx, s.logger).Error("task operation failed",
		"op", op,
		"error", redact.Error(err))
	return NewServiceError("task", op, err)
}

func nonNil(tasks []*domain.Task) []*domain.Task {
	if tasks == nil {
		return []*domain.Task{}
	}
	return tasks
}
