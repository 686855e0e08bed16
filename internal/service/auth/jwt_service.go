// Package auth issues and validates the bearer tokens used by the API and
// hashes user passwords.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for the user.
	// The returned claims carry the token's jti and expiry so callers can
	// record it for later revocation.
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, *Claims, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// TokenLifetime is the validity window of newly issued tokens.
	TokenLifetime() time.Duration
}

// Claims is the validated content of an access token.
type Claims struct {
	// UserID is the unique identifier of the user the token was issued for.
	UserID uuid.UUID

	// ID is the token's jti, the key of its AccessToken record.
	ID uuid.UUID

	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
