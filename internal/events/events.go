package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
)

// Event names as they appear on the websocket channel.
const (
	TaskCreated = "TaskCreated"
	TaskUpdated = "task.updated"
	TaskDeleted = "task.deleted"
)

// TaskEvent describes a change to one task. Task is a snapshot taken when the
// event was emitted; for TaskDeleted it is the task as it was before deletion.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Name is one of TaskCreated, TaskUpdated or TaskDeleted
	Name string `json:"event"`

	// UserID owns the task and is the only recipient of the event
	UserID uuid.UUID `json:"user_id"`

	Task domain.Task `json:"task"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent creates a TaskEvent for task. The task is copied so later
// changes by the caller do not leak into the event.
func NewTaskEvent(name string, task *domain.Task) *TaskEvent {
	snapshot := *task
	if task.DueDate != nil {
		due := *task.DueDate
		snapshot.DueDate = &due
	}
	return &TaskEvent{
		ID:         uuid.New(),
		Name:       name,
		UserID:     task.UserID,
		Task:       snapshot,
		OccurredAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// NopEmitter drops every event.
type NopEmitter struct{}

// EmitEvent does nothing.
func (NopEmitter) EmitEvent(context.Context, *TaskEvent) error { return nil }
