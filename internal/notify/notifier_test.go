package notify

import (
	"context"
	"net/mail"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/events"
	"github.com/phrazzld/tasker-api/internal/job"
	"github.com/phrazzld/tasker-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userLookupFunc func(ctx context.Context, id uuid.UUID) (*domain.User, error)

func (f userLookupFunc) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return f(ctx, id)
}

type recordingDispatcher struct {
	jobs []job.Job
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, j job.Job) error {
	d.jobs = append(d.jobs, j)
	return d.err
}

func ownerLookup(owner *domain.User) userLookupFunc {
	return func(_ context.Context, id uuid.UUID) (*domain.User, error) {
		if id != owner.ID {
			return nil, store.ErrUserNotFound
		}
		return owner, nil
	}
}

func TestTaskCreatedNotifier(t *testing.T) {
	owner, err := domain.NewUser("Ana", "ana@example.com", "Secret123!")
	require.NoError(t, err)
	mailer := NewLogMailer(mail.Address{Address: "noreply@tasker.test"}, quietLogger())

	task := newTask(t, nil)
	task.UserID = owner.ID

	t.Run("queues an email addressed to the owner", func(t *testing.T) {
		d := &recordingDispatcher{}
		n := NewTaskCreatedNotifier(ownerLookup(owner), d, mailer, quietLogger())

		require.NoError(t, n.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskCreated, task)))

		require.Len(t, d.jobs, 1)
		j, ok := d.jobs[0].(*SendTaskCreatedJob)
		require.True(t, ok)
		assert.Equal(t, Recipient{Name: "Ana", Email: "ana@example.com"}, j.Recipient())
	})

	t.Run("sync dispatch sends immediately", func(t *testing.T) {
		m := NewLogMailer(mail.Address{Address: "noreply@tasker.test"}, quietLogger())
		n := NewTaskCreatedNotifier(ownerLookup(owner), job.NewSyncDispatcher(1, quietLogger()), m, quietLogger())

		require.NoError(t, n.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskCreated, task)))
		require.Len(t, m.Sent(), 1)
		assert.Equal(t, "ana@example.com", m.Sent()[0].To)
	})

	t.Run("ignores other events", func(t *testing.T) {
		d := &recordingDispatcher{}
		n := NewTaskCreatedNotifier(ownerLookup(owner), d, mailer, quietLogger())

		require.NoError(t, n.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskUpdated, task)))
		require.NoError(t, n.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskDeleted, task)))
		assert.Empty(t, d.jobs)
	})

	t.Run("owner lookup failure", func(t *testing.T) {
		d := &recordingDispatcher{}
		orphan := newTask(t, nil)
		n := NewTaskCreatedNotifier(ownerLookup(owner), d, mailer, quietLogger())

		err := n.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskCreated, orphan))
		assert.ErrorIs(t, err, store.ErrUserNotFound)
		assert.Empty(t, d.jobs)
	})

	t.Run("dispatch failure", func(t *testing.T) {
		d := &recordingDispatcher{err: job.ErrQueueFull}
		n := NewTaskCreatedNotifier(ownerLookup(owner), d, mailer, quietLogger())

		err := n.HandleEvent(context.Background(), events.NewTaskEvent(events.TaskCreated, task))
		assert.ErrorIs(t, err, job.ErrQueueFull)
	})

	t.Run("nil dependencies panic", func(t *testing.T) {
		assert.Panics(t, func() { NewTaskCreatedNotifier(nil, &recordingDispatcher{}, mailer, nil) })
		assert.Panics(t, func() { NewTaskCreatedNotifier(ownerLookup(owner), nil, mailer, nil) })
		assert.Panics(t, func() { NewTaskCreatedNotifier(ownerLookup(owner), &recordingDispatcher{}, nil, nil) })
	})

}
