package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccessToken records a bearer token issued to a user. ID matches the JWT
// "jti" claim; a token whose record is gone has been revoked.
type AccessToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token's lifetime has elapsed at now.
func (t *AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
