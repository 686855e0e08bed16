package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/redact"
	"github.com/phrazzld/tasker-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil") // ALLOW-PANIC
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = `id, user_id, title, description, status, priority, due_date, completed, created_at, updated_at, deleted_at`

// sortExpressions maps accepted sort keys to SQL. Only these strings are ever
// interpolated into a query.
var sortExpressions = map[string]string{
	domain.SortCreatedAt: "created_at",
	domain.SortDueDate:   "due_date",
	domain.SortPriority:  "CASE priority WHEN 'LOW' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'HIGH' THEN 3 END",
	domain.SortTitle:     "LOWER(title)",
}

// Create implements store.TaskStore.Create.
// Returns store.ErrInvalidEntity if the owning user doesn't exist.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO tasks (id, user_id, title, description, status, priority, due_date, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		task.DueDate,
		task.Completed,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("foreign key violation during task creation",
				slog.String("task_id", task.ID.String()),
				slog.String("user_id", task.UserID.String()))
			return fmt.Errorf("%w: user with ID %s not found", store.ErrInvalidEntity, task.UserID)
		}
		log.Error("failed to create task",
			slog.String("error", redact.Error(err)),
			slog.String("task_id", task.ID.String()),
			slog.String("user_id", task.UserID.String()))
		return MapError(err)
	}

	log.Info("task created successfully",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", task.UserID.String()),
		slog.String("status", string(task.Status)))
	return nil
}

// GetByID implements store.TaskStore.GetByID.
// Returns store.ErrTaskNotFound if the task does not exist or was soft-deleted.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND deleted_at IS NULL`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			slog.String("task_id", id.String()),
			slog.String("error", redact.Error(err)))
		return nil, MapError(err)
	}

	return task, nil
}

// List implements store.TaskStore.List. It returns one page of the user's
// tasks together with the total number of matching tasks.
func (s *PostgresTaskStore) List(
	ctx context.Context,
	userID uuid.UUID,
	filter domain.TaskFilter,
) ([]*domain.Task, int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	filter = filter.Normalize()

	where, args := buildTaskWhere(userID, filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM tasks WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.Error("failed to count tasks",
			slog.String("user_id", userID.String()),
			slog.String("error", redact.Error(err)))
		return nil, 0, MapError(err)
	}
	if total == 0 {
		return []*domain.Task{}, 0, nil
	}

	direction := "DESC"
	if filter.Order == domain.OrderAsc {
		direction = "ASC"
	}
	nulls := ""
	if filter.Sort == domain.SortDueDate {
		nulls = " NULLS LAST"
	}

	query := fmt.Sprintf(
		`SELECT %s FROM tasks WHERE %s ORDER BY %s %s%s, id ASC LIMIT $%d OFFSET $%d`,
		taskColumns,
		where,
		sortExpressions[filter.Sort],
		direction,
		nulls,
		len(args)+1,
		len(args)+2,
	)
	args = append(args, filter.PerPage, filter.Offset())

	tasks, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// buildTaskWhere renders the filter as a parameterized WHERE clause.
func buildTaskWhere(userID uuid.UUID, f domain.TaskFilter) (string, []interface{}) {
	conds := []string{"user_id = $1", "deleted_at IS NULL"}
	args := []interface{}{userID}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.Priority != nil {
		add("priority = $%d", string(*f.Priority))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			`(title ILIKE $%d ESCAPE '\' OR description ILIKE $%d ESCAPE '\')`, n, n))
	}
	if f.DueFrom != nil {
		add("due_date >= $%d", *f.DueFrom)
	}
	if f.DueTo != nil {
		add("due_date <= $%d", *f.DueTo)
	}

	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListOverdue implements store.TaskStore.ListOverdue. Pending tasks due
// before today are returned, earliest due date first.
func (s *PostgresTaskStore) ListOverdue(
	ctx context.Context,
	userID uuid.UUID,
	today time.Time,
) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL AND status = $2
			AND due_date IS NOT NULL AND due_date < $3
		ORDER BY due_date ASC, created_at ASC
	`
	return s.queryTasks(ctx, query, userID, string(domain.TaskStatusPending), domain.StartOfDay(today))
}

// ListHighPriority implements store.TaskStore.ListHighPriority. Pending HIGH
// tasks are returned, newest first.
func (s *PostgresTaskStore) ListHighPriority(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL AND status = $2 AND priority = $3
		ORDER BY created_at DESC
	`
	return s.queryTasks(ctx, query, userID,
		string(domain.TaskStatusPending), string(domain.TaskPriorityHigh))
}

// Update implements store.TaskStore.Update. Every mutable column is written.
// Returns store.ErrTaskNotFound if the task does not exist or was soft-deleted.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during update",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, priority = $4,
			due_date = $5, completed = $6, updated_at = $7
		WHERE id = $8 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		task.DueDate,
		task.Completed,
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", redact.Error(err)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
		log.Debug("task not found for update", slog.String("task_id", task.ID.String()))
		return err
	}

	log.Info("task updated successfully",
		slog.String("task_id", task.ID.String()),
		slog.String("status", string(task.Status)))
	return nil
}

// SoftDelete implements store.TaskStore.SoftDelete. The row is kept with
// deleted_at set.
// Returns store.ErrTaskNotFound if the task does not exist or was already deleted.
func (s *PostgresTaskStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("task_id", id.String()),
			slog.String("error", redact.Error(err)))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
		log.Debug("task not found for delete", slog.String("task_id", id.String()))
		return err
	}

	log.Info("task deleted successfully", slog.String("task_id", id.String()))
	return nil
}

// WithTx implements store.TaskStore.WithTx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *PostgresTaskStore) queryTasks(
	ctx context.Context,
	query string,
	args ...interface{},
) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("error", redact.Error(err)))
		return nil, MapError(err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Error("failed to close task rows", slog.String("error", redact.Error(cerr)))
		}
	}()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", slog.String("error", redact.Error(err)))
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", slog.String("error", redact.Error(err)))
		return nil, MapError(err)
	}

	return tasks, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task      domain.Task
		status    string
		priority  string
		dueDate   sql.NullTime
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&status,
		&priority,
		&dueDate,
		&task.Completed,
		&task.CreatedAt,
		&task.UpdatedAt,
		&deletedAt,
	); err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.Priority = domain.TaskPriority(priority)
	if dueDate.Valid {
		d := domain.StartOfDay(dueDate.Time)
		task.DueDate = &d
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		task.DeletedAt = &t
	}
	return &task, nil
}
