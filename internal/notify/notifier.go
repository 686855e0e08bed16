package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/events"
	"github.com/phrazzld/tasker-api/internal/job"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
)

// UserLookup resolves the owner of a task.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// TaskCreatedNotifier queues the "task created" email for every TaskCreated
// event. Other events are ignored.
type TaskCreatedNotifier struct {
	users      UserLookup
	dispatcher job.Dispatcher
	mailer     Mailer
	logger     *slog.Logger
}

var _ events.EventHandler = (*TaskCreatedNotifier)(nil)

// NewTaskCreatedNotifier creates a TaskCreatedNotifier.
func NewTaskCreatedNotifier(
	users UserLookup,
	dispatcher job.Dispatcher,
	mailer Mailer,
	log *slog.Logger,
) *TaskCreatedNotifier {
	if users == nil {
		panic("users cannot be nil") // ALLOW-PANIC
	}
	if dispatcher == nil {
		panic("dispatcher cannot be nil") // ALLOW-PANIC
	}
	if mailer == nil {
		panic("mailer cannot be nil") // ALLOW-PANIC
	}
	if log == nil {
		log = slog.Default()
	}
	return &TaskCreatedNotifier{
		users:      users,
		dispatcher: dispatcher,
		mailer:     mailer,
		logger:     log.With("component", "task_created_notifier"),
	}
}

// HandleEvent implements events.EventHandler.
func (n *TaskCreatedNotifier) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	if event.Name != events.TaskCreated {
		return nil
	}
	log := logger.FromContextOrDefault(ctx, n.logger)

	user, err := n.users.GetByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("failed to load task owner: %w", err)
	}

	j := NewSendTaskCreatedJob(event.Task, Recipient{Name: user.Name, Email: user.Email}, n.mailer)
	if err := n.dispatcher.Dispatch(ctx, j); err != nil {
		return fmt.Errorf("failed to dispatch task created email: %w", err)
	}

	log.Debug("task created email dispatched",
		"job_id", j.ID(),
		"task_id", event.Task.ID,
		"user_id", event.UserID)
	return nil
}
