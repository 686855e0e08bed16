package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
)

// TaskPriority represents how urgent a task is.
type TaskPriority string

// Possible task priority values
const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
)

// DateFormat is the wire format of Task.DueDate.
const DateFormat = "2006-01-02"

// Common validation errors for Task
var (
	ErrEmptyTaskID          = errors.New("task ID cannot be empty")
	ErrEmptyTaskUserID      = errors.New("task user ID cannot be empty")
	ErrEmptyTaskTitle       = errors.New("task title cannot be empty")
	ErrTaskTitleTooLong     = errors.New("task title must be at most 255 characters long")
	ErrEmptyTaskDescription = errors.New("task description cannot be empty")
	ErrInvalidTaskStatus    = errors.New("invalid task status")
	ErrInvalidTaskPriority  = errors.New("invalid task priority")
	ErrDueDateNotFuture     = errors.New("due date must be after today")
	ErrInvalidDate          = errors.New("invalid date")
)

// TaskStatuses lists the accepted status values.
func TaskStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusPending, TaskStatusCompleted}
}

// TaskPriorities lists the accepted priority values.
func TaskPriorities() []TaskPriority {
	return []TaskPriority{TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh}
}

// ParseTaskStatus converts s to a TaskStatus, ignoring case.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", ErrInvalidTaskStatus
	}
	return status, nil
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

// ParseTaskPriority converts s to a TaskPriority, ignoring case.
func ParseTaskPriority(s string) (TaskPriority, error) {
	priority := TaskPriority(strings.ToUpper(strings.TrimSpace(s)))
	if !priority.Valid() {
		return "", ErrInvalidTaskPriority
	}
	return priority, nil
}

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// Rank orders priorities from LOW (1) to HIGH (3).
func (p TaskPriority) Rank() int {
	switch p {
	case TaskPriorityLow:
		return 1
	case TaskPriorityMedium:
		return 2
	case TaskPriorityHigh:
		return 3
	}
	return 0
}

// Task is a user-owned to-do item.
//
// Completed always mirrors Status == TaskStatusCompleted; use SetStatus or
// MarkCompleted rather than assigning Status directly.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"due_date"`
	Completed   bool         `json:"completed"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	DeletedAt   *time.Time   `json:"-"`
}

// NewTask creates a task owned by userID. Empty status and priority fall back
// to PENDING and MEDIUM.
func NewTask(
	userID uuid.UUID,
	title, description string,
	status TaskStatus,
	priority TaskPriority,
	dueDate *time.Time,
) (*Task, error) {
	if status == "" {
		status = TaskStatusPending
	}
	if priority == "" {
		priority = TaskPriorityMedium
	}

	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       strings.TrimSpace(title),
		Description: description,
		Priority:    priority,
		DueDate:     TruncateDate(dueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	task.SetStatus(status)

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}
	if t.Title == "" {
		return NewValidationError("title", "is required", ErrEmptyTaskTitle)
	}
	if utf8.RuneCountInString(t.Title) > MaxNameLength {
		return NewValidationError("title", "may not be greater than 255 characters", ErrTaskTitleTooLong)
	}
	if !t.Status.Valid() {
		return NewValidationError("status", "is invalid", ErrInvalidTaskStatus)
	}
	if !t.Priority.Valid() {
		return NewValidationError("priority", "is invalid", ErrInvalidTaskPriority)
	}
	return nil
}

// OwnedBy is the task policy: only the owning user may view, update, complete
// or delete a task.
func (t *Task) OwnedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && t.UserID == userID
}

// SetStatus updates the status and keeps Completed in sync.
func (t *Task) SetStatus(status TaskStatus) {
	t.Status = status
	t.Completed = status == TaskStatusCompleted
}

// MarkCompleted transitions the task to COMPLETED.
func (t *Task) MarkCompleted(now time.Time) {
	t.SetStatus(TaskStatusCompleted)
	t.UpdatedAt = now.UTC()
}

// IsOverdue reports whether the task is still pending past its due date.
func (t *Task) IsOverdue(today time.Time) bool {
	if t.DueDate == nil || t.Status != TaskStatusPending {
		return false
	}
	return t.DueDate.Before(StartOfDay(today))
}

// IsDeleted reports whether the task has been soft-deleted.
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// StartOfDay returns midnight UTC of the calendar day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TruncateDate drops the time-of-day component of d. A nil input stays nil.
func TruncateDate(d *time.Time) *time.Time {
	if d == nil {
		return nil
	}
	day := StartOfDay(*d)
	return &day
}

// ParseDate accepts either a calendar date (2006-01-02) or an RFC 3339
// timestamp and returns the calendar day in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(DateFormat, s); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return StartOfDay(ts), nil
	}
	return time.Time{}, ErrInvalidDate
}

// ValidateDueDate requires a due date, when present, to fall strictly after today.
func ValidateDueDate(due *time.Time, today time.Time) error {
	if due == nil {
		return nil
	}
	if !StartOfDay(*due).After(StartOfDay(today)) {
		return NewValidationError("due_date", "must be a date after today", ErrDueDateNotFuture)
	}
	return nil
}

// OptionalDate distinguishes an absent due date from an explicit null in a
// partial update.
type OptionalDate struct {
	Set   bool
	Value *time.Time
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *TaskPriority
	DueDate     OptionalDate
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && !p.DueDate.Set
}

// Apply writes the patch onto t and re-validates it. t is left unchanged if
// the result would be invalid.
func (p TaskPatch) Apply(t *Task, now time.Time) error {
	updated := *t

	if p.Title != nil {
		updated.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		if *p.Description == "" {
			return NewValidationError("description", "is required", ErrEmptyTaskDescription)
		}
		updated.Description = *p.Description
	}
	if p.Status != nil {
		updated.SetStatus(*p.Status)
	}
	if p.Priority != nil {
		updated.Priority = *p.Priority
	}
	if p.DueDate.Set {
		updated.DueDate = TruncateDate(p.DueDate.Value)
	}

	if err := updated.Validate(); err != nil {
		return err
	}

	updated.UpdatedAt = now.UTC()
	*t = updated
	return nil
}
