package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
)

// TokenStore persists issued access tokens so they can be revoked before
// their JWT expiry.
type TokenStore interface {
	// Create records an issued token.
	// Returns ErrUserNotFound if the owning user does not exist.
	Create(ctx context.Context, token *domain.AccessToken) error

	// Exists reports whether the token with the given jti is still recorded.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// DeleteAllForUser revokes every token issued to the user and returns
	// how many were removed.
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// DeleteExpired removes tokens whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// WithTx returns a new TokenStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TokenStore
}
