//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/job"
	"github.com/phrazzld/tasker-api/internal/platform/postgres"
	"github.com/phrazzld/tasker-api/internal/store"
	"github.com/phrazzld/tasker-api/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createUser(t *testing.T, tx *sql.Tx, email string) *domain.User {
	t.Helper()
	user, err := domain.NewUser("Test User", email, "Secret123!")
	require.NoError(t, err)
	user.HashedPassword = "$2a$10$abcdefghijklmnopqrstuv"
	require.NoError(t, postgres.NewPostgresUserStore(tx, quiet()).Create(context.Background(), user))
	return user
}

func createTask(t *testing.T, tx *sql.Tx, userID uuid.UUID, title string, status domain.TaskStatus, priority domain.TaskPriority, due *time.Time) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(userID, title, "description of "+title, status, priority, due)
	require.NoError(t, err)
	require.NoError(t, postgres.NewPostgresTaskStore(tx, quiet()).Create(context.Background(), task))
	return task
}

func days(n int) *time.Time {
	d := domain.StartOfDay(time.Now().AddDate(0, 0, n))
	return &d
}

func TestUserStore_Integration(t *testing.T) {
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		users := postgres.NewPostgresUserStore(tx, quiet())
		user := createUser(t, tx, "owner@example.com")

		got, err := users.GetByEmail(ctx, "OWNER@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Empty(t, got.Password)

		dup, err := domain.NewUser("Other", "Owner@Example.com", "Secret123!")
		require.NoError(t, err)
		dup.HashedPassword = "hash"
		assert.ErrorIs(t, users.Create(ctx, dup), store.ErrEmailExists)

		_, err = users.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrUserNotFound)
	})
}

func TestTaskStore_Integration(t *testing.T) {
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		tasks := postgres.NewPostgresTaskStore(tx, quiet())
		owner := createUser(t, tx, "tasks-owner@example.com")
		other := createUser(t, tx, "tasks-other@example.com")

		overdue := createTask(t, tx, owner.ID, "Pay rent", domain.TaskStatusPending, domain.TaskPriorityHigh, days(-2))
		done := createTask(t, tx, owner.ID, "Buy milk", domain.TaskStatusCompleted, domain.TaskPriorityHigh, days(-1))
		future := createTask(t, tx, owner.ID, "Plan trip", domain.TaskStatusPending, domain.TaskPriorityLow, days(10))
		createTask(t, tx, other.ID, "Not yours", domain.TaskStatusPending, domain.TaskPriorityHigh, days(-3))

		t.Run("list is scoped to owner", func(t *testing.T) {
			list, total, err := tasks.List(ctx, owner.ID, domain.TaskFilter{})
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			for _, task := range list {
				assert.Equal(t, owner.ID, task.UserID)
			}
		})

		t.Run("list filters and searches", func(t *testing.T) {
			high := domain.TaskPriorityHigh
			list, total, err := tasks.List(ctx, owner.ID, domain.TaskFilter{Priority: &high, Search: "RENT"})
			require.NoError(t, err)
			assert.Equal(t, 1, total)
			require.Len(t, list, 1)
			assert.Equal(t, overdue.ID, list[0].ID)
		})

		t.Run("list paginates", func(t *testing.T) {
			list, total, err := tasks.List(ctx, owner.ID, domain.TaskFilter{
				Sort: domain.SortTitle, Order: domain.OrderAsc, Page: 2, PerPage: 2,
			})
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			require.Len(t, list, 1)
			assert.Equal(t, future.ID, list[0].ID)
		})

		t.Run("overdue is pending and past due", func(t *testing.T) {
			list, err := tasks.ListOverdue(ctx, owner.ID, time.Now())
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, overdue.ID, list[0].ID)
		})

		t.Run("high priority is pending only", func(t *testing.T) {
			list, err := tasks.ListHighPriority(ctx, owner.ID)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, overdue.ID, list[0].ID)
		})

		t.Run("update round trips", func(t *testing.T) {
			future.MarkCompleted(time.Now())
			require.NoError(t, tasks.Update(ctx, future))

			got, err := tasks.GetByID(ctx, future.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.TaskStatusCompleted, got.Status)
			assert.True(t, got.Completed)
		})

		t.Run("soft delete hides the task", func(t *testing.T) {
			require.NoError(t, tasks.SoftDelete(ctx, done.ID, time.Now()))

			_, err := tasks.GetByID(ctx, done.ID)
			assert.ErrorIs(t, err, store.ErrTaskNotFound)
			assert.ErrorIs(t, tasks.SoftDelete(ctx, done.ID, time.Now()), store.ErrTaskNotFound)

			var deletedAt sql.NullTime
			require.NoError(t, tx.QueryRowContext(ctx,
				`SELECT deleted_at FROM tasks WHERE id = $1`, done.ID).Scan(&deletedAt))
			assert.True(t, deletedAt.Valid)
		})
	})
}

func TestTokenStore_Integration(t *testing.T) {
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		tokens := postgres.NewPostgresTokenStore(tx, quiet())
		user := createUser(t, tx, "tokens@example.com")
		now := time.Now().UTC()

		live := &domain.AccessToken{ID: uuid.New(), UserID: user.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
		expired := &domain.AccessToken{ID: uuid.New(), UserID: user.ID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now}
		require.NoError(t, tokens.Create(ctx, live))
		require.NoError(t, tokens.Create(ctx, expired))

		pruned, err := tokens.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), pruned)

		ok, err := tokens.Exists(ctx, live.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		revoked, err := tokens.DeleteAllForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), revoked)

		ok, err = tokens.Exists(ctx, live.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestJobStore_Integration(t *testing.T) {
	db := testdb.GetTestDB(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		jobs := postgres.NewPostgresJobStore(tx, quiet())
		now := time.Now().UTC()
		rec := &job.Record{
			ID:          uuid.New(),
			Type:        "mail.task_created",
			Payload:     []byte(`{"task_id":"x"}`),
			Status:      job.StatusPending,
			MaxAttempts: 2,
			RunAt:       now.Add(-time.Second),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		require.NoError(t, jobs.Save(ctx, rec))

		pending, err := jobs.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.JSONEq(t, `{"task_id":"x"}`, string(pending[0].Payload))

		claimed, err := jobs.Claim(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, claimed.Attempts)
		assert.Equal(t, job.StatusProcessing, claimed.Status)

		_, err = jobs.Claim(ctx, rec.ID)
		assert.ErrorIs(t, err, job.ErrNotClaimable)

		processing, err := jobs.ListProcessing(ctx, time.Time{})
		require.NoError(t, err)
		assert.Len(t, processing, 1)

		runAt := now.Add(time.Minute)
		require.NoError(t, jobs.Retry(ctx, rec.ID, "smtp down", runAt))
		pending, err = jobs.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "smtp down", pending[0].LastError)
		assert.WithinDuration(t, runAt, pending[0].RunAt, time.Millisecond)

		_, err = jobs.Claim(ctx, rec.ID)
		require.NoError(t, err)
		require.NoError(t, jobs.Fail(ctx, rec.ID, "smtp down"))

		pending, err = jobs.ListPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
