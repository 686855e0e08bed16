package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/api/shared"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/redact"
	"github.com/phrazzld/tasker-api/internal/service/auth"
)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
}

// AuthMiddleware authenticates requests with bearer tokens.
type AuthMiddleware struct {
	authenticator Authenticator
	logger        *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(authenticator Authenticator, logger *slog.Logger) *AuthMiddleware {
	if authenticator == nil {
		panic("authenticator cannot be nil for AuthMiddleware") // ALLOW-PANIC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        logger.With(slog.String("component", "auth_middleware")),
	}
}

// Authenticate requires an "Authorization: Bearer <token>" header and puts
// the user ID in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return m.handler(next, false)
}

// AuthenticateSocket is Authenticate for the websocket upgrade. Browsers cannot
// set headers on a websocket handshake, so a ?token= query parameter is also
// accepted.
func (m *AuthMiddleware) AuthenticateSocket(next http.Handler) http.Handler {
	return m.handler(next, true)
}

func (m *AuthMiddleware) handler(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok && allowQuery {
			token = r.URL.Query().Get("token")
			ok = token != ""
		}
		if !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Unauthenticated.")
			return
		}

		userID, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			m.reject(w, r, err)
			return
		}

		ctx := shared.WithUserID(r.Context(), userID)
		log := logger.FromContextOrDefault(ctx, m.logger).With(slog.String("user_id", userID.String()))
		ctx = logger.WithLogger(ctx, log)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrRevokedToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
	default:
		logger.FromContextOrDefault(r.Context(), m.logger).
			Error("failed to validate token", "error", redact.Error(err))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetUserID extracts the authenticated user ID from the request context.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	return shared.UserIDFromContext(r.Context())
}
