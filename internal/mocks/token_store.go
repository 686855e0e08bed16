package mocks

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/store"
)

// MockTokenStore implements store.TokenStore for testing
type MockTokenStore struct {
	CreateFn           func(ctx context.Context, token *domain.AccessToken) error
	ExistsFn           func(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteAllForUserFn func(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpiredFn    func(ctx context.Context, now time.Time) (int64, error)

	// Tokens backs the default implementation, keyed by jti
	Tokens map[uuid.UUID]*domain.AccessToken

	mu sync.Mutex
}

var _ store.TokenStore = (*MockTokenStore)(nil)

// NewMockTokenStore creates an empty MockTokenStore.
func NewMockTokenStore() *MockTokenStore {
	return &MockTokenStore{Tokens: make(map[uuid.UUID]*domain.AccessToken)}
}

// Create implements store.TokenStore
func (m *MockTokenStore) Create(ctx context.Context, token *domain.AccessToken) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Tokens == nil {
		m.Tokens = make(map[uuid.UUID]*domain.AccessToken)
	}
	m.Tokens[token.ID] = token
	return nil
}

// Exists implements store.TokenStore
func (m *MockTokenStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.ExistsFn != nil {
		return m.ExistsFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Tokens[id]
	return ok, nil
}

// DeleteAllForUser implements store.TokenStore
func (m *MockTokenStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	if m.DeleteAllForUserFn != nil {
		return m.DeleteAllForUserFn(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, tok := range m.Tokens {
		if tok.UserID == userID {
			delete(m.Tokens, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpired implements store.TokenStore
func (m *MockTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFn != nil {
		return m.DeleteExpiredFn(ctx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, tok := range m.Tokens {
		if tok.Expired(now) {
			delete(m.Tokens, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of recorded tokens.
func (m *MockTokenStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Tokens)
}

// WithTx implements store.TokenStore; the mock ignores tx.
func (m *MockTokenStore) WithTx(*sql.Tx) store.TokenStore {
	return m
}
