package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/domain"
)

// Loader fills the destination passed to Remember on a cache miss.
type Loader func(ctx context.Context) error

// TaskCache caches derived views of a user's tasks.
type TaskCache interface {
	// Remember decodes the cached value for (userID, name) into dst. On a miss
	// it calls load, which must fill dst, and caches dst for ttl.
	Remember(ctx context.Context, userID uuid.UUID, name string, ttl time.Duration, dst interface{}, load Loader) error

	// InvalidateUser drops every entry cached for userID.
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
}

// ListKey names the cached page selected by filter.
func ListKey(filter domain.TaskFilter) string {
	sum := sha256.Sum256([]byte(filter.CacheKeyParams()))
	return "tasks:" + hex.EncodeToString(sum[:])
}

// OverdueKey names the overdue list as of today's date, so entries roll over
// at midnight UTC.
func OverdueKey(today time.Time) string {
	return "overdue:" + domain.StartOfDay(today).Format(domain.DateFormat)
}

// HighPriorityKey names the high-priority list.
func HighPriorityKey() string {
	return "high_priority"
}

// NopCache always misses and never stores anything.
type NopCache struct{}

var _ TaskCache = NopCache{}

// Remember calls load directly.
func (NopCache) Remember(ctx context.Context, _ uuid.UUID, _ string, _ time.Duration, _ interface{}, load Loader) error {
	return load(ctx)
}

// InvalidateUser does nothing.
func (NopCache) InvalidateUser(context.Context, uuid.UUID) error {
	return nil
}
