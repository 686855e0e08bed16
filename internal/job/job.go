package job

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a persisted job.
type Status string

// Possible job status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Outcome labels the result of a single processing attempt.
type Outcome string

// Possible outcomes reported to an Observer
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetried   Outcome = "retried"
	OutcomeFailed    Outcome = "failed"
)

// Common errors returned by the job package
var (
	ErrQueueFull          = errors.New("job queue is full")
	ErrNotClaimable       = errors.New("job is not pending")
	ErrUnknownType        = errors.New("unknown job type")
	ErrUnsupportedDriver  = errors.New("unsupported queue driver")
	ErrRunnerNotAvailable = errors.New("job runner is not available")
)

// Job is a unit of background work.
type Job interface {
	// ID returns the job's unique identifier
	ID() uuid.UUID

	// Type returns the job type used to rebuild the job from storage
	Type() string

	// Payload returns the job data as JSON
	Payload() []byte

	// Execute runs the job logic
	Execute(ctx context.Context) error
}

// Record is the persisted form of a Job.
type Record struct {
	ID          uuid.UUID
	Type        string
	Payload     []byte
	Status      Status
	Attempts    int
	MaxAttempts int
	LastError   string
	RunAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRecord builds a pending record for j that may be attempted maxAttempts times.
func NewRecord(j Job, maxAttempts int, now time.Time) *Record {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	now = now.UTC()
	return &Record{
		ID:          j.ID(),
		Type:        j.Type(),
		Payload:     j.Payload(),
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Exhausted reports whether no attempts remain.
func (r *Record) Exhausted() bool {
	return r.Attempts >= r.MaxAttempts
}

// Store persists jobs and their status transitions.
type Store interface {
	// Save persists a new pending job.
	Save(ctx context.Context, rec *Record) error

	// Claim moves a pending job to processing and increments its attempt
	// count. It returns ErrNotClaimable if the job is not pending.
	Claim(ctx context.Context, id uuid.UUID) (*Record, error)

	// Complete marks a processing job as completed.
	Complete(ctx context.Context, id uuid.UUID) error

	// Retry returns a processing job to pending, to run no earlier than runAt.
	Retry(ctx context.Context, id uuid.UUID, lastError string, runAt time.Time) error

	// Fail marks a job as permanently failed.
	Fail(ctx context.Context, id uuid.UUID, lastError string) error

	// Reset returns a processing job to pending without consuming an attempt.
	Reset(ctx context.Context, id uuid.UUID, reason string) error

	// ListPending returns up to limit pending jobs, earliest run_at first.
	ListPending(ctx context.Context, limit int) ([]*Record, error)

	// ListProcessing returns processing jobs last touched before olderThan.
	// A zero olderThan returns every processing job.
	ListProcessing(ctx context.Context, olderThan time.Time) ([]*Record, error)

	// WithTx returns a Store that uses the provided transaction.
	WithTx(tx *sql.Tx) Store
}

// Observer receives the outcome of every processing attempt.
type Observer interface {
	ObserveJob(jobType string, outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) ObserveJob(string, Outcome) {}
