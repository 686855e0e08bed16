package job

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It backs the runner in tests and in
// tools that have no database.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	now     func() time.Time

	// SaveErr, when set, is returned by Save.
	SaveErr error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]*Record),
		now:     time.Now,
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != StatusPending {
		return nil, ErrNotClaimable
	}
	rec.Status = StatusProcessing
	rec.Attempts++
	rec.UpdatedAt = s.now().UTC()
	cp := *rec
	return &cp, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(rec *Record) {
		rec.Status = StatusCompleted
		rec.LastError = ""
	})
}

// Retry implements Store.
func (s *MemoryStore) Retry(_ context.Context, id uuid.UUID, lastError string, runAt time.Time) error {
	return s.update(id, func(rec *Record) {
		rec.Status = StatusPending
		rec.LastError = lastError
		rec.RunAt = runAt.UTC()
	})
}

// Fail implements Store.
func (s *MemoryStore) Fail(_ context.Context, id uuid.UUID, lastError string) error {
	return s.update(id, func(rec *Record) {
		rec.Status = StatusFailed
		rec.LastError = lastError
	})
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, id uuid.UUID, reason string) error {
	return s.update(id, func(rec *Record) {
		rec.Status = StatusPending
		rec.LastError = reason
	})
}

// ListPending implements Store.
func (s *MemoryStore) ListPending(_ context.Context, limit int) ([]*Record, error) {
	out := s.filter(func(rec *Record) bool { return rec.Status == StatusPending })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListProcessing implements Store.
func (s *MemoryStore) ListProcessing(_ context.Context, olderThan time.Time) ([]*Record, error) {
	return s.filter(func(rec *Record) bool {
		return rec.Status == StatusProcessing &&
			(olderThan.IsZero() || rec.UpdatedAt.Before(olderThan))
	}), nil
}

// WithTx implements Store. Transactions are not supported, so the same store
// is returned.
func (s *MemoryStore) WithTx(*sql.Tx) Store {
	return s
}

// Get returns a copy of the record with id.
func (s *MemoryStore) Get(id uuid.UUID) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

func (s *MemoryStore) update(id uuid.UUID, fn func(rec *Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotClaimable
	}
	fn(rec)
	rec.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) filter(keep func(rec *Record) bool) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.records {
		if keep(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RunAt.Before(out[j].RunAt)
	})
	return out
}
