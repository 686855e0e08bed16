package mocks

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
	"github.com/phrazzld/tasker-api/internal/store"
)

// MockTaskStore implements store.TaskStore for testing. The default
// implementation keeps tasks in memory, honors soft deletes and applies the
// filter's status, priority, search and due range. List orders by created_at
// only, in the filter's direction.
type MockTaskStore struct {
	CreateFn           func(ctx context.Context, task *domain.Task) error
	GetByIDFn          func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	ListFn             func(ctx context.Context, userID uuid.UUID, filter domain.TaskFilter) ([]*domain.Task, int, error)
	ListOverdueFn      func(ctx context.Context, userID uuid.UUID, today time.Time) ([]*domain.Task, error)
	ListHighPriorityFn func(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)
	UpdateFn           func(ctx context.Context, task *domain.Task) error
	SoftDeleteFn       func(ctx context.Context, id uuid.UUID, at time.Time) error

	Tasks map[uuid.UUID]*domain.Task

	// Calls counts invocations per method name
	Calls map[string]int

	mu sync.Mutex
}

var _ store.TaskStore = (*MockTaskStore)(nil)

// NewMockTaskStore creates an empty MockTaskStore.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		Tasks: make(map[uuid.UUID]*domain.Task),
		Calls: make(map[string]int),
	}
}

func (m *MockTaskStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[name]++
}

// CallCount returns how many times method name was called.
func (m *MockTaskStore) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

// Add stores a copy of task directly, bypassing Create.
func (m *MockTaskStore) Add(task *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Tasks == nil {
		m.Tasks = make(map[uuid.UUID]*domain.Task)
	}
	cp := *task
	m.Tasks[task.ID] = &cp
}

// Get returns the stored task including soft-deleted ones.
func (m *MockTaskStore) Get(id uuid.UUID) (*domain.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Create implements store.TaskStore
func (m *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	m.record("Create")
	if m.CreateFn != nil {
		return m.CreateFn(ctx, task)
	}
	m.Add(task)
	return nil
}

// GetByID implements store.TaskStore
func (m *MockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	m.record("GetByID")
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	t, ok := m.Get(id)
	if !ok || t.IsDeleted() {
		return nil, store.ErrTaskNotFound
	}
	return t, nil
}

func (m *MockTaskStore) live(userID uuid.UUID, keep func(*domain.Task) bool) []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, t := range m.Tasks {
		if t.UserID != userID || t.IsDeleted() || !keep(t) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// List implements store.TaskStore
func (m *MockTaskStore) List(ctx context.Context, userID uuid.UUID, filter domain.TaskFilter) ([]*domain.Task, int, error) {
	m.record("List")
	if m.ListFn != nil {
		return m.ListFn(ctx, userID, filter)
	}
	f := filter.Normalize()
	search := strings.ToLower(f.Search)

	tasks := m.live(userID, func(t *domain.Task) bool {
		if f.Status != nil && t.Status != *f.Status {
			return false
		}
		if f.Priority != nil && t.Priority != *f.Priority {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			return false
		}
		if f.DueFrom != nil && (t.DueDate == nil || t.DueDate.Before(*f.DueFrom)) {
			return false
		}
		if f.DueTo != nil && (t.DueDate == nil || t.DueDate.After(*f.DueTo)) {
			return false
		}
		return true
	})

	sort.Slice(tasks, func(i, j int) bool {
		if f.Order == domain.OrderAsc {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	total := len(tasks)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return tasks[start:end], total, nil
}

// ListOverdue implements store.TaskStore
func (m *MockTaskStore) ListOverdue(ctx context.Context, userID uuid.UUID, today time.Time) ([]*domain.Task, error) {
	m.record("ListOverdue")
	if m.ListOverdueFn != nil {
		return m.ListOverdueFn(ctx, userID, today)
	}
	tasks := m.live(userID, func(t *domain.Task) bool { return t.IsOverdue(today) })
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].DueDate.Before(*tasks[j].DueDate) })
	return tasks, nil
}

// ListHighPriority implements store.TaskStore
func (m *MockTaskStore) ListHighPriority(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	m.record("ListHighPriority")
	if m.ListHighPriorityFn != nil {
		return m.ListHighPriorityFn(ctx, userID)
	}
	tasks := m.live(userID, func(t *domain.Task) bool {
		return t.Status == domain.TaskStatusPending && t.Priority == domain.TaskPriorityHigh
	})
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

// Update implements store.TaskStore
func (m *MockTaskStore) Update(ctx context.Context, task *domain.Task) error {
	m.record("Update")
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, task)
	}
	existing, ok := m.Get(task.ID)
	if !ok || existing.IsDeleted() {
		return store.ErrTaskNotFound
	}
	m.Add(task)
	return nil
}

// SoftDelete implements store.TaskStore
func (m *MockTaskStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.record("SoftDelete")
	if m.SoftDeleteFn != nil {
		return m.SoftDeleteFn(ctx, id, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tasks[id]
	if !ok || t.IsDeleted() {
		return store.ErrTaskNotFound
	}
	deletedAt := at.UTC()
	t.DeletedAt = &deletedAt
	return nil
}

// WithTx implements store.TaskStore; the mock ignores tx.
func (m *MockTaskStore) WithTx(*sql.Tx) store.TaskStore {
	return m
}
