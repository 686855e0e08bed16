package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
)

// TaskStore defines the interface for task data persistence.
// Soft-deleted tasks are invisible to every read method.
type TaskStore interface {
	// Create saves a new task.
	// Returns ErrUserNotFound if the owning user does not exist.
	// Returns ErrInvalidEntity wrapping the domain error if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by ID regardless of owner.
	// Returns ErrTaskNotFound if the task does not exist or was soft-deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns one page of the user's tasks matching filter, along with
	// the total number of matching tasks. The filter is normalized first.
	List(ctx context.Context, userID uuid.UUID, filter domain.TaskFilter) ([]*domain.Task, int, error)

	// ListOverdue returns the user's pending tasks due before today,
	// earliest due date first.
	ListOverdue(ctx context.Context, userID uuid.UUID, today time.Time) ([]*domain.Task, error)

	// ListHighPriority returns the user's pending HIGH priority tasks,
	// newest first.
	ListHighPriority(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)

	// Update writes every mutable field of task.
	// Returns ErrTaskNotFound if the task does not exist or was soft-deleted.
	Update(ctx context.Context, task *domain.Task) error

	// SoftDelete marks the task deleted at the given time. The row is kept.
	// Returns ErrTaskNotFound if the task does not exist or was already deleted.
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
