package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobType = "test.job"

// countingJob fails its first failTimes executions.
type countingJob struct {
	id        uuid.UUID
	failTimes int

	mu    sync.Mutex
	calls int
}

func newCountingJob(failTimes int) *countingJob {
	return &countingJob{id: uuid.New(), failTimes: failTimes}
}

func (j *countingJob) ID() uuid.UUID   { return j.id }
func (j *countingJob) Type() string    { return testJobType }
func (j *countingJob) Payload() []byte { return []byte(`{}`) }

func (j *countingJob) Execute(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	if j.calls <= j.failTimes {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (j *countingJob) Calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls
}

// registryFor rebuilds jobs by returning the original instances.
func registryFor(jobs ...*countingJob) *Registry {
	byID := make(map[uuid.UUID]*countingJob, len(jobs))
	for _, j := range jobs {
		byID[j.id] = j
	}
	reg := NewRegistry()
	reg.Register(testJobType, func(id uuid.UUID, _ []byte) (Job, error) {
		j, ok := byID[id]
		if !ok {
			return nil, errors.New("unknown id")
		}
		return j, nil
	})
	return reg
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (o *recordingObserver) ObserveJob(_ string, outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) Outcomes() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Outcome(nil), o.outcomes...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testConfig() RunnerConfig {
	cfg := DefaultRunnerConfig()
	cfg.RetryBackoff = 0
	cfg.QueueSize = 10
	return cfg
}

func TestRunner_Submit(t *testing.T) {
	t.Parallel()

	t.Run("persists pending record", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		j := newCountingJob(0)
		runner := NewRunner(store, registryFor(j), testConfig(), testLogger())

		require.NoError(t, runner.Submit(context.Background(), j))

		rec, ok := store.Get(j.ID())
		require.True(t, ok)
		assert.Equal(t, StatusPending, rec.Status)
		assert.Equal(t, testJobType, rec.Type)
		assert.Equal(t, 3, rec.MaxAttempts)
		assert.Zero(t, rec.Attempts)
	})

	t.Run("queue full keeps job pending", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		cfg := testConfig()
		cfg.QueueSize = 1
		first, second := newCountingJob(0), newCountingJob(0)
		runner := NewRunner(store, registryFor(first, second), cfg, testLogger())

		require.NoError(t, runner.Submit(context.Background(), first))
		err := runner.Submit(context.Background(), second)

		assert.ErrorIs(t, err, ErrQueueFull)
		rec, ok := store.Get(second.ID())
		require.True(t, ok)
		assert.Equal(t, StatusPending, rec.Status)
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		store.SaveErr = errors.New("connection refused")
		j := newCountingJob(0)
		runner := NewRunner(store, registryFor(j), testConfig(), testLogger())

		err := runner.Submit(context.Background(), j)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save job")
	})
}

func TestRunner_Drain(t *testing.T) {
	t.Parallel()

	t.Run("processes every pending job", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		jobs := []*countingJob{newCountingJob(0), newCountingJob(0), newCountingJob(0)}
		runner := NewRunner(store, registryFor(jobs...), testConfig(), testLogger())
		for _, j := range jobs {
			require.NoError(t, runner.Submit(context.Background(), j))
		}

		finished, err := runner.Drain(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 3, finished)
		for _, j := range jobs {
			rec, _ := store.Get(j.ID())
			assert.Equal(t, StatusCompleted, rec.Status)
			assert.Equal(t, 1, j.Calls())
		}

		pending, err := store.ListPending(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("retries until success", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		j := newCountingJob(1)
		observer := &recordingObserver{}
		runner := NewRunner(store, registryFor(j), testConfig(), testLogger())
		runner.SetObserver(observer)
		require.NoError(t, runner.Submit(context.Background(), j))

		finished, err := runner.Drain(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, finished)
		rec, _ := store.Get(j.ID())
		assert.Equal(t, StatusCompleted, rec.Status)
		assert.Equal(t, 2, rec.Attempts)
		assert.Equal(t, []Outcome{OutcomeRetried, OutcomeCompleted}, observer.Outcomes())
	})

	t.Run("stops at max attempts", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		j := newCountingJob(10)
		runner := NewRunner(store, registryFor(j), testConfig(), testLogger())
		var handled []error
		runner.SetErrorHandler(func(_ Job, err error) { handled = append(handled, err) })
		require.NoError(t, runner.Submit(context.Background(), j))

		finished, err := runner.Drain(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, finished)
		assert.Equal(t, 3, j.Calls())
		rec, _ := store.Get(j.ID())
		assert.Equal(t, StatusFailed, rec.Status)
		assert.Equal(t, 3, rec.Attempts)
		assert.Equal(t, "smtp unavailable", rec.LastError)
		assert.Len(t, handled, 1)
	})

	t.Run("unknown type fails record", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		rec := &Record{
			ID:          uuid.New(),
			Type:        "mystery",
			Payload:     []byte(`{}`),
			Status:      StatusPending,
			MaxAttempts: 3,
			RunAt:       time.Now().UTC(),
			CreatedAt:   time.Now().UTC(),
		}
		require.NoError(t, store.Save(context.Background(), rec))
		runner := NewRunner(store, NewRegistry(), testConfig(), testLogger())

		finished, err := runner.Drain(context.Background())

		require.NoError(t, err)
		assert.Zero(t, finished)
		got, _ := store.Get(rec.ID)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Contains(t, got.LastError, "unknown job type")
	})

	t.Run("empty queue returns immediately", func(t *testing.T) {
		t.Parallel()
		runner := NewRunner(NewMemoryStore(), NewRegistry(), testConfig(), testLogger())

		finished, err := runner.Drain(context.Background())

		require.NoError(t, err)
		assert.Zero(t, finished)
	})
}

func TestRunner_StartProcessesJobs(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	interrupted := newCountingJob(0)
	submitted := newCountingJob(0)

	// A job left in processing by a previous run must be recovered.
	rec := NewRecord(interrupted, 3, time.Now())
	rec.Status = StatusProcessing
	rec.Attempts = 1
	require.NoError(t, store.Save(context.Background(), rec))

	runner := NewRunner(store, registryFor(interrupted, submitted), testConfig(), testLogger())
	require.NoError(t, runner.Start())
	t.Cleanup(runner.Stop)

	require.NoError(t, runner.Submit(context.Background(), submitted))

	for _, j := range []*countingJob{interrupted, submitted} {
		id := j.ID()
		require.Eventually(t, func() bool {
			got, ok := store.Get(id)
			return ok && got.Status == StatusCompleted
		}, 2*time.Second, 10*time.Millisecond)
	}

	got, _ := store.Get(interrupted.ID())
	assert.Equal(t, 2, got.Attempts)
}

// blockingJob runs until release is closed.
type blockingJob struct {
	id      uuid.UUID
	started chan struct{}
	release chan struct{}
}

func newBlockingJob() *blockingJob {
	return &blockingJob{id: uuid.New(), started: make(chan struct{}), release: make(chan struct{})}
}

func (j *blockingJob) ID() uuid.UUID   { return j.id }
func (j *blockingJob) Type() string    { return "test.blocking" }
func (j *blockingJob) Payload() []byte { return []byte(`{}`) }

func (j *blockingJob) Execute(ctx context.Context) error {
	close(j.started)
	select {
	case <-j.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRunner_QueuesJobsSubmittedWhileFull(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	blocker := newBlockingJob()
	first, second := newCountingJob(0), newCountingJob(0)
	reg := registryFor(first, second)
	reg.Register(blocker.Type(), func(uuid.UUID, []byte) (Job, error) { return blocker, nil })

	cfg := testConfig()
	cfg.QueueSize = 1
	cfg.WorkerCount = 1
	cfg.StuckJobCheckInterval = 20 * time.Millisecond
	runner := NewRunner(store, reg, cfg, testLogger())
	require.NoError(t, runner.Start())
	t.Cleanup(runner.Stop)

	require.NoError(t, runner.Submit(context.Background(), blocker))
	select {
	case <-blocker.started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking job never started")
	}

	require.NoError(t, runner.Submit(context.Background(), first))
	assert.ErrorIs(t, runner.Submit(context.Background(), second), ErrQueueFull)

	close(blocker.release)

	for _, id := range []uuid.UUID{blocker.ID(), first.ID(), second.ID()} {
		require.Eventually(t, func() bool {
			got, ok := store.Get(id)
			return ok && got.Status == StatusCompleted
		}, 2*time.Second, 10*time.Millisecond)
	}
	assert.Equal(t, 1, first.Calls())
	assert.Equal(t, 1, second.Calls())
}

func TestRunner_StartRetriesFailedJob(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	j := newCountingJob(2)
	cfg := testConfig()
	cfg.RetryBackoff = time.Millisecond
	runner := NewRunner(store, registryFor(j), cfg, testLogger())
	require.NoError(t, runner.Start())
	t.Cleanup(runner.Stop)

	require.NoError(t, runner.Submit(context.Background(), j))

	require.Eventually(t, func() bool {
		got, _ := store.Get(j.ID())
		return got.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, j.Calls())
}

func TestRunner_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	runner := NewRunner(NewMemoryStore(), NewRegistry(), testConfig(), testLogger())
	require.NoError(t, runner.Start())

	assert.NotPanics(t, func() {
		runner.Stop()
		runner.Stop()
	})
}

func TestNewRunner_PanicsOnNilDependencies(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewRunner(nil, NewRegistry(), testConfig(), nil) })
	assert.Panics(t, func() { NewRunner(NewMemoryStore(), nil, testConfig(), nil) })
}

func TestRegistry_Build(t *testing.T) {
	t.Parallel()

	j := newCountingJob(0)
	reg := registryFor(j)

	got, err := reg.Build(&Record{ID: j.ID(), Type: testJobType})
	require.NoError(t, err)
	assert.Same(t, j, got)

	_, err = reg.Build(&Record{ID: uuid.New(), Type: "other"})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = reg.Build(&Record{ID: uuid.New(), Type: testJobType})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to rebuild")
}
