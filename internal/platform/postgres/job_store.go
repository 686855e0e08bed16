package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/job"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/redact"
	"github.com/phrazzld/tasker-api/internal/store"
)

// PostgresJobStore implements the job.Store interface using PostgreSQL
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresJobStore creates a new PostgresJobStore
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil") // ALLOW-PANIC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
		now:    time.Now,
	}
}

var _ job.Store = (*PostgresJobStore)(nil)

const jobColumns = `id, type, payload, status, attempts, max_attempts, COALESCE(last_error, ''), run_at, created_at, updated_at`

// Save persists a job to the database
func (s *PostgresJobStore) Save(ctx context.Context, rec *job.Record) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	payload := rec.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	query := `
		INSERT INTO jobs (id, type, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Type,
		payload,
		rec.Status,
		rec.Attempts,
		rec.MaxAttempts,
		rec.RunAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save job",
			"job_id", rec.ID,
			"job_type", rec.Type,
			"error", redact.Error(err))
		return fmt.Errorf("failed to save job to database: %w", MapError(err))
	}

	return nil
}

// Claim moves a pending job to processing and increments its attempts
func (s *PostgresJobStore) Claim(ctx context.Context, id uuid.UUID) (*job.Record, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE jobs
		SET status = $1, attempts = attempts + 1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + jobColumns

	rec, err := scanJob(s.db.QueryRowContext(ctx, query,
		job.StatusProcessing,
		s.now().UTC(),
		id,
		job.StatusPending,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrNotClaimable
		}
		log.Error("failed to claim job", "job_id", id, "error", redact.Error(err))
		return nil, fmt.Errorf("failed to claim job: %w", MapError(err))
	}

	return rec, nil
}

// Complete marks a job as completed
func (s *PostgresJobStore) Complete(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, job.StatusCompleted, sql.NullString{}, nil)
}

// Retry returns a job to pending with a later run_at
func (s *PostgresJobStore) Retry(ctx context.Context, id uuid.UUID, lastError string, runAt time.Time) error {
	runAt = runAt.UTC()
	return s.setStatus(ctx, id, job.StatusPending, nullString(lastError), &runAt)
}

// Fail marks a job as permanently failed
func (s *PostgresJobStore) Fail(ctx context.Context, id uuid.UUID, lastError string) error {
	return s.setStatus(ctx, id, job.StatusFailed, nullString(lastError), nil)
}

// Reset returns a job to pending without consuming an attempt
func (s *PostgresJobStore) Reset(ctx context.Context, id uuid.UUID, reason string) error {
	return s.setStatus(ctx, id, job.StatusPending, nullString(reason), nil)
}

func (s *PostgresJobStore) setStatus(
	ctx context.Context,
	id uuid.UUID,
	status job.Status,
	lastError sql.NullString,
	runAt *time.Time,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE jobs
		SET status = $1, last_error = $2, run_at = COALESCE($3::timestamptz, run_at), updated_at = $4
		WHERE id = $5
	`
	result, err := s.db.ExecContext(ctx, query, status, lastError, runAt, s.now().UTC(), id)
	if err != nil {
		log.Error("failed to update job status",
			"job_id", id,
			"status", status,
			"error", redact.Error(err))
		return fmt.Errorf("failed to update job status: %w", MapError(err))
	}

	if err := CheckRowsAffected(result, fmt.Errorf("%w: job", store.ErrNotFound)); err != nil {
		log.Warn("no job found with ID to update status", "job_id", id)
		return err
	}

	return nil
}

// ListPending retrieves pending jobs, earliest run_at first
func (s *PostgresJobStore) ListPending(ctx context.Context, limit int) ([]*job.Record, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		ORDER BY run_at ASC, created_at ASC
	`
	args := []interface{}{job.StatusPending}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

// ListProcessing retrieves processing jobs last updated before olderThan
func (s *PostgresJobStore) ListProcessing(ctx context.Context, olderThan time.Time) ([]*job.Record, error) {
	if olderThan.IsZero() {
		query := `
			SELECT ` + jobColumns + `
			FROM jobs
			WHERE status = $1
			ORDER BY created_at ASC
		`
		return s.list(ctx, query, job.StatusProcessing)
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND updated_at < $2
		ORDER BY created_at ASC
	`
	return s.list(ctx, query, job.StatusProcessing, olderThan.UTC())
}

func (s *PostgresJobStore) list(ctx context.Context, query string, args ...interface{}) ([]*job.Record, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query jobs", "error", redact.Error(err))
		return nil, fmt.Errorf("failed to query jobs: %w", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Error("failed to close job rows", "error", redact.Error(cerr))
		}
	}()

	var records []*job.Record
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			log.Error("failed to scan job row", "error", redact.Error(err))
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating job rows", "error", redact.Error(err))
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return records, nil
}

// WithTx returns a store bound to tx
func (s *PostgresJobStore) WithTx(tx *sql.Tx) job.Store {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
		now:    s.now,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*job.Record, error) {
	var rec job.Record
	var status string
	if err := row.Scan(
		&rec.ID,
		&rec.Type,
		&rec.Payload,
		&status,
		&rec.Attempts,
		&rec.MaxAttempts,
		&rec.LastError,
		&rec.RunAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = job.Status(status)
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
