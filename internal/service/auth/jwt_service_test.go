package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "test-secret-that-is-long-enough-for-testing"
	wrongSecret = "wrong-secret-that-is-long-enough-for-testing"
)

var fixedTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestJWTService(t *testing.T, secret string, lifetime time.Duration, now func() time.Time) *hmacJWTService {
	t.Helper()
	svc, err := newHMACJWTService(secret, lifetime, now)
	require.NoError(t, err)
	return svc
}

func at(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, svc.TokenLifetime())

	_, err = NewJWTService(config.AuthConfig{JWTSecret: "short", TokenLifetimeMinutes: 60})
	assert.Error(t, err)

	_, err = NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 0})
	assert.Error(t, err)
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	tokenLifetime := 60 * time.Minute
	userID := uuid.New()
	svc := newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime))

	token, issued, err := svc.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEqual(t, uuid.Nil, issued.ID)
	assert.Equal(t, fixedTime.Add(tokenLifetime).Unix(), issued.ExpiresAt.Unix())

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(tokenLifetime).Unix(), claims.ExpiresAt.Unix())
}

func TestGenerateToken_UniqueJTI(t *testing.T) {
	t.Parallel()

	svc := newTestJWTService(t, testSecret, time.Hour, at(fixedTime))
	userID := uuid.New()

	_, first, err := svc.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	_, second, err := svc.GenerateToken(context.Background(), userID)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	tokenLifetime := 60 * time.Minute
	userID := uuid.New()

	tests := []struct {
		name      string
		setupFunc func(t *testing.T) (JWTService, string)
		wantErr   error
	}{
		{
			name: "valid token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				svc := newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime))
				token, _, _ := svc.GenerateToken(context.Background(), userID)
				return svc, token
			},
		},
		{
			name: "within clock skew after expiry",
			setupFunc: func(t *testing.T) (JWTService, string) {
				gen := newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime))
				token, _, _ := gen.GenerateToken(context.Background(), userID)
				val := newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Minute)))
				return val, token
			},
		},
		{
			name: "expired token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				gen := newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime))
				token, _, _ := gen.GenerateToken(context.Background(), userID)
				val := newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Hour)))
				return val, token
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "not yet valid",
			setupFunc: func(t *testing.T) (JWTService, string) {
				gen := newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime.Add(time.Hour)))
				token, _, _ := gen.GenerateToken(context.Background(), userID)
				val := newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime))
				return val, token
			},
			wantErr: ErrTokenNotYetValid,
		},
		{
			name: "invalid signature",
			setupFunc: func(t *testing.T) (JWTService, string) {
				gen := newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime))
				token, _, _ := gen.GenerateToken(context.Background(), userID)
				val := newTestJWTService(t, wrongSecret, tokenLifetime, at(fixedTime))
				return val, token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "malformed token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				return newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime)), "this.is.not.a.valid.jwt.token"
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "empty token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				return newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime)), ""
			},
			wantErr: ErrMissingToken,
		},
		{
			name: "missing jti",
			setupFunc: func(t *testing.T) (JWTService, string) {
				claims := jwtCustomClaims{
					UserID: userID,
					RegisteredClaims: jwt.RegisteredClaims{
						Subject:   userID.String(),
						IssuedAt:  jwt.NewNumericDate(fixedTime),
						ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
					},
				}
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
				require.NoError(t, err)
				return newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime)), token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "unexpected signing method",
			setupFunc: func(t *testing.T) (JWTService, string) {
				claims := jwtCustomClaims{
					UserID: userID,
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
					},
				}
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
				require.NoError(t, err)
				return newTestJWTService(t, testSecret, tokenLifetime, at(fixedTime)), token
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, token := tt.setupFunc(t)
			claims, err := svc.ValidateToken(context.Background(), token)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
			} else {
				require.NoError(t, err)
				require.NotNil(t, claims)
				assert.Equal(t, userID, claims.UserID)
			}
		})
	}
}
