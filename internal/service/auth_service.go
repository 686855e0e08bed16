package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/redact"
	"github.com/phrazzld/tasker-api/internal/service/auth"
	"github.com/phrazzld/tasker-api/internal/store"
)

// PasswordManager hashes new passwords and verifies submitted ones.
type PasswordManager interface {
	auth.PasswordHasher
	auth.PasswordVerifier
}

// AuthResult is an authenticated user with a freshly issued access token.
type AuthResult struct {
	User        *domain.User
	AccessToken string
	ExpiresAt   time.Time
	ExpiresIn   time.Duration
}

// AuthService registers users and manages their access tokens.
type AuthService interface {
	// Register creates a user and issues their first token.
	// Returns store.ErrEmailExists if the email is taken.
	Register(ctx context.Context, name, email, password string) (*AuthResult, error)

	// Login verifies credentials and issues a token.
	// Returns ErrInvalidCredentials for an unknown email or a wrong password.
	Login(ctx context.Context, email, password string) (*AuthResult, error)

	// Logout revokes every token issued to the user.
	Logout(ctx context.Context, userID uuid.UUID) error

	// Authenticate validates a bearer token and returns its user.
	// Returns auth.ErrRevokedToken for a token revoked by Logout.
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)

	// CurrentUser loads the authenticated user.
	CurrentUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// PruneExpiredTokens deletes token records past their expiry.
	PruneExpiredTokens(ctx context.Context) (int64, error)
}

type authServiceImpl struct {
	users     store.UserStore
	tokens    store.TokenStore
	jwt       auth.JWTService
	passwords PasswordManager
	db        *sql.DB
	logger    *slog.Logger
	now       func() time.Time
}

// AuthOption configures optional AuthService behavior.
type AuthOption func(*authServiceImpl)

// WithTransactions makes Register create the user and its first access token
// in a single transaction on db.
func WithTransactions(db *sql.DB) AuthOption {
	return func(s *authServiceImpl) {
		s.db = db
	}
}

// NewAuthService creates a new AuthService.
// It returns an error if any of the required dependencies are nil.
func NewAuthService(
	users store.UserStore,
	tokens store.TokenStore,
	jwt auth.JWTService,
	passwords PasswordManager,
	logger *slog.Logger,
	opts ...AuthOption,
) (AuthService, error) {
	if users == nil {
		return nil, domain.NewValidationError("users", "cannot be nil", domain.ErrValidation)
	}
	if tokens == nil {
		return nil, domain.NewValidationError("tokens", "cannot be nil", domain.ErrValidation)
	}
	if jwt == nil {
		return nil, domain.NewValidationError("jwt", "cannot be nil", domain.ErrValidation)
	}
	if passwords == nil {
		return nil, domain.NewValidationError("passwords", "cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &authServiceImpl{
		users:     users,
		tokens:    tokens,
		jwt:       jwt,
		passwords: passwords,
		logger:    logger.With(slog.String("component", "auth_service")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register implements AuthService.Register
func (s *authServiceImpl) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := domain.NewUser(name, email, password)
	if err != nil {
		log.Debug("registration rejected", "error", err)
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		log.Error("failed to hash password", "error", redact.Error(err))
		return nil, NewServiceError("auth", "register", err)
	}
	user.HashedPassword = hash

	var result *AuthResult
	err = s.inTx(ctx, func(users store.UserStore, tokens store.TokenStore) error {
		if err := users.Create(ctx, user); err != nil {
			if errors.Is(err, store.ErrEmailExists) {
				log.Debug("attempted to register an existing email")
				return err
			}
			log.Error("failed to create user", "error", redact.Error(err))
			return NewServiceError("auth", "register", err)
		}

		var err error
		result, err = s.issue(ctx, tokens, user, "register")
		return err
	})
	if err != nil {
		var svcErr *ServiceError
		if errors.Is(err, store.ErrEmailExists) || errors.As(err, &svcErr) {
			return nil, err
		}
		return nil, NewServiceError("auth", "register", err)
	}

	log.Info("user registered", "user_id", user.ID)
	return result, nil
}

// inTx runs fn with stores bound to one transaction when transactions are
// enabled, and with the plain stores otherwise.
func (s *authServiceImpl) inTx(ctx context.Context, fn func(store.UserStore, store.TokenStore) error) error {
	if s.db == nil {
		return fn(s.users, s.tokens)
	}
	return store.RunInTransaction(ctx, s.db, func(_ context.Context, tx *sql.Tx) error {
		return fn(s.users.WithTx(tx), s.tokens.WithTx(tx))
	})
}

// Login implements AuthService.Login
func (s *authServiceImpl) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Debug("login for unknown email")
			return nil, ErrInvalidCredentials
		}
		log.Error("failed to look up user for login", "error", redact.Error(err))
		return nil, NewServiceError("auth", "login", err)
	}

	if err := s.passwords.Compare(user.HashedPassword, password); err != nil {
		log.Debug("login with wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, s.tokens, user, "login")
}

func (s *authServiceImpl) issue(
	ctx context.Context,
	tokens store.TokenStore,
	user *domain.User,
	op string,
) (*AuthResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	token, claims, err := s.jwt.GenerateToken(ctx, user.ID)
	if err != nil {
		log.Error("failed to generate token", "user_id", user.ID, "error", redact.Error(err))
		return nil, NewServiceError("auth", op, err)
	}

	record := &domain.AccessToken{
		ID:        claims.ID,
		UserID:    user.ID,
		ExpiresAt: claims.ExpiresAt,
		CreatedAt: s.now().UTC(),
	}
	if err := tokens.Create(ctx, record); err != nil {
		log.Error("failed to record access token", "user_id", user.ID, "error", redact.Error(err))
		return nil, NewServiceError("auth", op, err)
	}

	return &AuthResult{
		User:        user,
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt,
		ExpiresIn:   s.jwt.TokenLifetime(),
	}, nil
}

// Logout implements AuthService.Logout
func (s *authServiceImpl) Logout(ctx context.Context, userID uuid.UUID) error {
	n, err := s.tokens.DeleteAllForUser(ctx, userID)
	if err != nil {
		return NewServiceError("auth", "logout", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("user logged out",
		"user_id", userID,
		"revoked_tokens", n)
	return nil
}

// Authenticate implements AuthService.Authenticate
func (s *authServiceImpl) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, auth.ErrMissingToken
	}

	claims, err := s.jwt.ValidateToken(ctx, token)
	if err != nil {
		return uuid.Nil, err
	}

	ok, err := s.tokens.Exists(ctx, claims.ID)
	if err != nil {
		return uuid.Nil, NewServiceError("auth", "authenticate", err)
	}
	if !ok {
		return uuid.Nil, auth.ErrRevokedToken
	}
	return claims.UserID, nil
}

// CurrentUser implements AuthService.CurrentUser
func (s *authServiceImpl) CurrentUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// The token outlived its user.
			return nil, fmt.Errorf("%w: user no longer exists", auth.ErrInvalidToken)
		}
		return nil, NewServiceError("auth", "current_user", err)
	}
	return user, nil
}

// PruneExpiredTokens implements AuthService.PruneExpiredTokens
func (s *authServiceImpl) PruneExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, NewServiceError("auth", "prune_tokens", err)
	}
	return n, nil
}
