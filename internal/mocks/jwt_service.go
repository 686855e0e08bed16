package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/service/auth"
)

// MockJWTService implements auth.JWTService for testing
type MockJWTService struct {
	// GenerateTokenFn allows test cases to mock the GenerateToken behavior
	GenerateTokenFn func(ctx context.Context, userID uuid.UUID) (string, *auth.Claims, error)

	// ValidateTokenFn allows test cases to mock the ValidateToken behavior
	ValidateTokenFn func(ctx context.Context, tokenString string) (*auth.Claims, error)

	// Default values used when functions aren't explicitly defined
	Token       string
	Claims      *auth.Claims
	Err         error
	ValidateErr error
	Lifetime    time.Duration
}

var _ auth.JWTService = (*MockJWTService)(nil)

// GenerateToken implements the auth.JWTService interface. Without a custom
// function or default Claims it returns fresh claims for userID.
func (m *MockJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, *auth.Claims, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, userID)
	}
	if m.Err != nil {
		return "", nil, m.Err
	}

	claims := m.Claims
	if claims == nil {
		now := time.Now().UTC()
		claims = &auth.Claims{
			UserID:    userID,
			ID:        uuid.New(),
			Subject:   userID.String(),
			IssuedAt:  now,
			ExpiresAt: now.Add(m.TokenLifetime()),
		}
	}
	token := m.Token
	if token == "" {
		token = "token-" + claims.ID.String()
	}
	return token, claims, nil
}

// ValidateToken implements the auth.JWTService interface
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, tokenString)
	}
	return m.Claims, m.ValidateErr
}

// TokenLifetime implements the auth.JWTService interface
func (m *MockJWTService) TokenLifetime() time.Duration {
	if m.Lifetime == 0 {
		return time.Hour
	}
	return m.Lifetime
}
