package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/config"
	"github.com/phrazzld/tasker-api/internal/redact"
)

// RunnerConfig holds configuration for the job runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process jobs
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue
	QueueSize int

	// MaxAttempts is the attempt budget given to newly submitted jobs
	MaxAttempts int

	// RetryBackoff is multiplied by the attempt number to delay a retry
	RetryBackoff time.Duration

	// StuckJobAge defines how long a job can be in processing state
	// before it's considered stuck and reset
	StuckJobAge time.Duration

	// StuckJobCheckInterval defines how often to check for stuck jobs and
	// for due pending jobs that are not queued
	StuckJobCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:           2,
		QueueSize:             100,
		MaxAttempts:           3,
		RetryBackoff:          5 * time.Second,
		StuckJobAge:           30 * time.Minute,
		StuckJobCheckInterval: 5 * time.Minute,
	}
}

// RunnerConfigFromConfig maps the jobs configuration group onto a RunnerConfig.
func RunnerConfigFromConfig(cfg config.JobsConfig) RunnerConfig {
	rc := DefaultRunnerConfig()
	if cfg.WorkerCount > 0 {
		rc.WorkerCount = cfg.WorkerCount
	}
	if cfg.QueueSize > 0 {
		rc.QueueSize = cfg.QueueSize
	}
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	rc.RetryBackoff = cfg.RetryBackoff()
	if cfg.StuckJobAgeMinutes > 0 {
		rc.StuckJobAge = cfg.StuckJobAge()
	}
	return rc
}

// Runner manages background job processing
type Runner struct {
	store      Store
	registry   *Registry
	jobs       chan Job
	queuedMu   sync.Mutex
	queued     map[uuid.UUID]struct{}
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
	config     RunnerConfig
	logger     *slog.Logger
	observer   Observer
	now        func() time.Time
	errHandler func(j Job, err error)
}

// NewRunner creates a new Runner
func NewRunner(store Store, registry *Registry, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if store == nil {
		panic("job store cannot be nil") // ALLOW-PANIC
	}
	if registry == nil {
		panic("job registry cannot be nil") // ALLOW-PANIC
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.StuckJobCheckInterval <= 0 {
		cfg.StuckJobCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With(slog.String("component", "job_runner"))

	return &Runner{
		store:      store,
		registry:   registry,
		jobs:       make(chan Job, cfg.QueueSize),
		queued:     make(map[uuid.UUID]struct{}, cfg.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     cfg,
		logger:     logger,
		observer:   nopObserver{},
		now:        time.Now,
		errHandler: func(j Job, err error) {
			logger.Error("job failed permanently",
				"job_id", j.ID(),
				"job_type", j.Type(),
				"error", redact.Error(err))
		},
	}
}

// SetErrorHandler sets the function called when a job exhausts its attempts
func (r *Runner) SetErrorHandler(handler func(j Job, err error)) {
	r.errHandler = handler
}

// SetObserver sets the Observer notified of every attempt outcome
func (r *Runner) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	r.observer = o
}

// Dispatch implements Dispatcher by submitting j to the queue.
func (r *Runner) Dispatch(ctx context.Context, j Job) error {
	return r.Submit(ctx, j)
}

// Submit persists j and adds it to the queue. When the queue is full the job
// stays pending in the store, ErrQueueFull is returned and the next pending
// sweep of a started runner queues it.
func (r *Runner) Submit(ctx context.Context, j Job) error {
	rec := NewRecord(j, r.config.MaxAttempts, r.now())
	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	if !r.tryQueue(j) {
		return fmt.Errorf("%w, try again later", ErrQueueFull)
	}
	return nil
}

// tryQueue adds j to the queue without blocking. A job already waiting in the
// queue counts as queued.
func (r *Runner) tryQueue(j Job) bool {
	r.queuedMu.Lock()
	defer r.queuedMu.Unlock()

	if _, ok := r.queued[j.ID()]; ok {
		return true
	}
	select {
	case r.jobs <- j:
		r.queued[j.ID()] = struct{}{}
		return true
	default:
		return false
	}
}

func (r *Runner) dequeued(id uuid.UUID) {
	r.queuedMu.Lock()
	delete(r.queued, id)
	r.queuedMu.Unlock()
}

func (r *Runner) isQueued(id uuid.UUID) bool {
	r.queuedMu.Lock()
	defer r.queuedMu.Unlock()
	_, ok := r.queued[id]
	return ok
}

// Start recovers unfinished jobs and begins processing
func (r *Runner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckJobMonitor()

	return nil
}

// Stop signals workers to finish and waits for them. Jobs still queued stay
// pending in the store.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.cancelFunc()
		r.wg.Wait()
	})
}

// Recover loads unfinished jobs from the store and queues them
func (r *Runner) Recover() error {
	ctx := r.ctx

	pending, err := r.store.ListPending(ctx, r.config.QueueSize)
	if err != nil {
		return fmt.Errorf("failed to get pending jobs: %w", err)
	}

	// Processing jobs at startup were interrupted by a previous shutdown.
	processing, err := r.store.ListProcessing(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to get processing jobs: %w", err)
	}

	r.logger.Info("recovering unfinished jobs",
		"pending_count", len(pending),
		"processing_count", len(processing))

	for _, rec := range processing {
		if err := r.store.Reset(ctx, rec.ID, "reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing job",
				"job_id", rec.ID,
				"job_type", rec.Type,
				"error", redact.Error(err))
			continue
		}
		rec.Status = StatusPending
		pending = append(pending, rec)
	}

	for _, rec := range pending {
		j, err := r.build(ctx, rec)
		if err != nil {
			continue
		}
		if wait := rec.RunAt.Sub(r.now()); wait > 0 {
			r.requeueAfter(j, wait)
			continue
		}
		r.enqueue(j)
	}

	return nil
}

// Drain processes every pending job, including retries, and returns the
// number of jobs that reached a final state once the store has none left. It
// does not require Start.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	log := r.logger.With("mode", "drain")

	stuck, err := r.store.ListProcessing(ctx, r.now().Add(-r.config.StuckJobAge))
	if err != nil {
		return 0, fmt.Errorf("failed to get processing jobs: %w", err)
	}
	for _, rec := range stuck {
		if err := r.store.Reset(ctx, rec.ID, "reset before drain"); err != nil {
			log.Error("failed to reset stuck job", "job_id", rec.ID, "error", redact.Error(err))
		}
	}

	finished := 0
	for {
		pending, err := r.store.ListPending(ctx, r.config.QueueSize)
		if err != nil {
			return finished, fmt.Errorf("failed to get pending jobs: %w", err)
		}
		if len(pending) == 0 {
			log.Info("queue drained", "finished", finished)
			return finished, nil
		}

		progress := 0
		for _, rec := range pending {
			if wait := rec.RunAt.Sub(r.now()); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return finished, ctx.Err()
				case <-timer.C:
				}
			}

			j, err := r.build(ctx, rec)
			if err != nil {
				progress++
				continue
			}
			res := r.process(ctx, j, -1)
			if res.attempted {
				progress++
				if !res.retry {
					finished++
				}
			}
		}

		if progress == 0 {
			return finished, errors.New("drain stalled: no pending job could be claimed")
		}
	}
}

// build rebuilds rec, failing the record permanently if its type is unknown.
func (r *Runner) build(ctx context.Context, rec *Record) (Job, error) {
	j, err := r.registry.Build(rec)
	if err == nil {
		return j, nil
	}
	r.logger.Error("failed to rebuild job",
		"job_id", rec.ID,
		"job_type", rec.Type,
		"error", redact.Error(err))
	if failErr := r.store.Fail(ctx, rec.ID, err.Error()); failErr != nil {
		r.logger.Error("failed to mark job as failed", "job_id", rec.ID, "error", redact.Error(failErr))
	}
	r.observer.ObserveJob(rec.Type, OutcomeFailed)
	return nil, err
}

func (r *Runner) enqueue(j Job) {
	if !r.tryQueue(j) {
		// The job stays pending and is picked up by the next pending sweep.
		r.logger.Error("failed to requeue job, queue is full",
			"job_id", j.ID(),
			"job_type", j.Type())
	}
}

func (r *Runner) requeueAfter(j Job, delay time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-r.ctx.Done():
		case <-timer.C:
			r.enqueue(j)
		}
	}()
}

// worker processes jobs from the queue
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case j := <-r.jobs:
			r.dequeued(j.ID())
			if res := r.process(r.ctx, j, id); res.retry {
				r.requeueAfter(j, res.retryDelay)
			}
		}
	}
}

// processResult reports what happened to a job handed to process.
type processResult struct {
	attempted  bool
	retry      bool
	retryDelay time.Duration
}

// process claims and executes a single job and records the result.
func (r *Runner) process(ctx context.Context, j Job, workerID int) processResult {
	log := r.logger.With(
		"job_id", j.ID(),
		"job_type", j.Type(),
		"worker_id", workerID,
	)

	rec, err := r.store.Claim(ctx, j.ID())
	if err != nil {
		if errors.Is(err, ErrNotClaimable) {
			log.Debug("job already claimed or finished, skipping")
		} else {
			log.Error("failed to claim job", "error", redact.Error(err))
		}
		return processResult{}
	}

	log = log.With("attempt", rec.Attempts, "max_attempts", rec.MaxAttempts)
	log.Info("processing job")

	execErr := execute(ctx, j)
	if execErr == nil {
		log.Info("job completed successfully")
		if err := r.store.Complete(ctx, j.ID()); err != nil {
			log.Error("failed to mark job as completed", "error", redact.Error(err))
		}
		r.observer.ObserveJob(j.Type(), OutcomeCompleted)
		return processResult{attempted: true}
	}

	if rec.Exhausted() {
		if err := r.store.Fail(ctx, j.ID(), execErr.Error()); err != nil {
			log.Error("failed to mark job as failed", "error", redact.Error(err))
		}
		r.observer.ObserveJob(j.Type(), OutcomeFailed)
		r.errHandler(j, execErr)
		return processResult{attempted: true}
	}

	delay := r.config.RetryBackoff * time.Duration(rec.Attempts)
	log.Warn("job attempt failed, retrying",
		"error", redact.Error(execErr),
		"retry_in", delay.String())
	if err := r.store.Retry(ctx, j.ID(), execErr.Error(), r.now().Add(delay)); err != nil {
		log.Error("failed to schedule job retry", "error", redact.Error(err))
		return processResult{attempted: true}
	}
	r.observer.ObserveJob(j.Type(), OutcomeRetried)
	return processResult{attempted: true, retry: true, retryDelay: delay}
}

// execute runs j, converting a panic into an error.
func execute(ctx context.Context, j Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return j.Execute(ctx)
}

// stuckJobMonitor periodically resets jobs left in processing for too long and
// queues due pending jobs
func (r *Runner) stuckJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckJobCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			r.resetStuckJobs(r.ctx)
			r.queueDuePending(r.ctx)
		}
	}
}

func (r *Runner) resetStuckJobs(ctx context.Context) {
	stuck, err := r.store.ListProcessing(ctx, r.now().Add(-r.config.StuckJobAge))
	if err != nil {
		r.logger.Error("failed to check for stuck jobs", "error", redact.Error(err))
		return
	}
	if len(stuck) == 0 {
		return
	}

	r.logger.Info("found stuck jobs", "count", len(stuck))
	for _, rec := range stuck {
		if err := r.store.Reset(ctx, rec.ID, "reset after being stuck in processing state"); err != nil {
			r.logger.Error("failed to reset stuck job",
				"job_id", rec.ID,
				"job_type", rec.Type,
				"error", redact.Error(err))
			continue
		}
		j, err := r.build(ctx, rec)
		if err != nil {
			continue
		}
		r.enqueue(j)
	}
}

// queueDuePending queues pending jobs whose run time has passed and that are
// not already queued, such as jobs submitted while the queue was full. It stops
// once the queue is full. A job that is also queued by a retry timer is
// claimed only once.
func (r *Runner) queueDuePending(ctx context.Context) {
	if len(r.jobs) == cap(r.jobs) {
		return
	}

	pending, err := r.store.ListPending(ctx, r.config.QueueSize)
	if err != nil {
		r.logger.Error("failed to check for pending jobs", "error", redact.Error(err))
		return
	}

	now := r.now()
	queued := 0
	for _, rec := range pending {
		if rec.RunAt.After(now) || r.isQueued(rec.ID) {
			continue
		}
		j, err := r.build(ctx, rec)
		if err != nil {
			continue
		}
		if !r.tryQueue(j) {
			break
		}
		queued++
	}
	if queued > 0 {
		r.logger.Info("queued due pending jobs", "count", queued)
	}
}
