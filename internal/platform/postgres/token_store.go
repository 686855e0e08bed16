package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/redact"
	"github.com/phrazzld/tasker-api/internal/store"
)

// PostgresTokenStore implements the store.TokenStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTokenStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTokenStore creates a new PostgreSQL implementation of the TokenStore interface.
func NewPostgresTokenStore(db store.DBTX, logger *slog.Logger) *PostgresTokenStore {
	if db == nil {
		panic("db cannot be nil") // ALLOW-PANIC
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTokenStore{
		db:     db,
		logger: logger.With(slog.String("component", "token_store")),
	}
}

var _ store.TokenStore = (*PostgresTokenStore)(nil)

// Create implements store.TokenStore.Create.
func (s *PostgresTokenStore) Create(ctx context.Context, token *domain.AccessToken) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO access_tokens (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, token.ID, token.UserID, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		log.Error("failed to create access token",
			slog.String("user_id", token.UserID.String()),
			slog.String("error", redact.Error(err)))
		return MapError(err)
	}

	return nil
}

// Exists implements store.TokenStore.Exists.
func (s *PostgresTokenStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM access_tokens WHERE id = $1)`
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		log.Error("failed to look up access token", slog.String("error", redact.Error(err)))
		return false, MapError(err)
	}

	return exists, nil
}

// DeleteAllForUser implements store.TokenStore.DeleteAllForUser.
func (s *PostgresTokenStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, userID)
	if err != nil {
		log.Error("failed to revoke access tokens",
			slog.String("user_id", userID.String()),
			slog.String("error", redact.Error(err)))
		return 0, MapError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	log.Info("access tokens revoked",
		slog.String("user_id", userID.String()),
		slog.Int64("count", n))
	return n, nil
}

// DeleteExpired implements store.TokenStore.DeleteExpired.
func (s *PostgresTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		log.Error("failed to prune access tokens", slog.String("error", redact.Error(err)))
		return 0, MapError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	log.Info("expired access tokens pruned", slog.Int64("count", n))
	return n, nil
}

// WithTx implements store.TokenStore.WithTx.
func (s *PostgresTokenStore) WithTx(tx *sql.Tx) store.TokenStore {
	return &PostgresTokenStore{
		db:     tx,
		logger: s.logger,
	}
}
