package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/tasker-api/internal/redact"
)

// Queue drivers accepted by NewDispatcher.
const (
	DriverSync     = "sync"
	DriverDatabase = "database"
)

// Dispatcher hands a job off for execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, j Job) error
}

var (
	_ Dispatcher = (*Runner)(nil)
	_ Dispatcher = (*SyncDispatcher)(nil)
)

// NewDispatcher returns the Dispatcher for driver. The database driver
// requires a runner.
func NewDispatcher(driver string, runner *Runner, maxAttempts int, logger *slog.Logger) (Dispatcher, error) {
	switch driver {
	case DriverSync:
		return NewSyncDispatcher(maxAttempts, logger), nil
	case DriverDatabase:
		if runner == nil {
			return nil, ErrRunnerNotAvailable
		}
		return runner, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// SyncDispatcher executes jobs inline on the caller's goroutine, retrying
// immediately until the attempt budget is spent. Nothing is persisted.
type SyncDispatcher struct {
	maxAttempts int
	logger      *slog.Logger
	observer    Observer
}

// NewSyncDispatcher creates a SyncDispatcher.
func NewSyncDispatcher(maxAttempts int, logger *slog.Logger) *SyncDispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncDispatcher{
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", "sync_dispatcher")),
		observer:    nopObserver{},
	}
}

// SetObserver sets the Observer notified of every attempt outcome
func (d *SyncDispatcher) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	d.observer = o
}

// Dispatch runs j until it succeeds or runs out of attempts.
func (d *SyncDispatcher) Dispatch(ctx context.Context, j Job) error {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err = execute(ctx, j)
		if err == nil {
			d.observer.ObserveJob(j.Type(), OutcomeCompleted)
			return nil
		}
		if attempt < d.maxAttempts {
			d.logger.Warn("job attempt failed, retrying",
				"job_id", j.ID(),
				"job_type", j.Type(),
				"attempt", attempt,
				"error", redact.Error(err))
			d.observer.ObserveJob(j.Type(), OutcomeRetried)
		}
	}

	d.observer.ObserveJob(j.Type(), OutcomeFailed)
	return fmt.Errorf("%s job %s failed after %d attempts: %w", j.Type(), j.ID(), d.maxAttempts, err)
}
