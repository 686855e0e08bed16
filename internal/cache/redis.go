package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasker-api/internal/platform/logger"
	"github.com/phrazzld/tasker-api/internal/redact"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tasker:user:"

// generationTTL keeps a user's generation counter well past any entry TTL.
const generationTTL = 24 * time.Hour

// RedisCache implements TaskCache on Redis. Values are stored as JSON.
type RedisCache struct {
	client redis.UniversalClient
	logger *slog.Logger
}

var _ TaskCache = (*RedisCache)(nil)

// NewRedisCache creates a RedisCache.
func NewRedisCache(client redis.UniversalClient, logger *slog.Logger) *RedisCache {
	if client == nil {
		panic("redis client cannot be nil") // ALLOW-PANIC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		client: client,
		logger: logger.With(slog.String("component", "task_cache")),
	}
}

// NewRedisClient parses a redis:// URL and verifies the server responds.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func entryKey(userID uuid.UUID, name string) string {
	return keyPrefix + userID.String() + ":" + name
}

func indexKey(userID uuid.UUID) string {
	return keyPrefix + userID.String() + ":keys"
}

// generationKey counts invalidations of a user's entries.
func generationKey(userID uuid.UUID) string {
	return keyPrefix + userID.String() + ":gen"
}

// Remember implements TaskCache. Redis failures are logged and fall through
// to load so reads keep working without the cache. A value loaded while the
// user's entries were invalidated is returned but not stored.
func (c *RedisCache) Remember(
	ctx context.Context,
	userID uuid.UUID,
	name string,
	ttl time.Duration,
	dst interface{},
	load Loader,
) error {
	log := logger.FromContextOrDefault(ctx, c.logger)
	key := entryKey(userID, name)
	genKey := generationKey(userID)

	gen, genErr := c.client.Get(ctx, genKey).Result()
	if genErr != nil && !errors.Is(genErr, redis.Nil) {
		log.Warn("cache generation read failed", "key", genKey, "error", redact.Error(genErr))
	}

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		jsonErr := json.Unmarshal(data, dst)
		if jsonErr == nil {
			log.Debug("cache hit", "key", key)
			return nil
		}
		log.Warn("discarding undecodable cache entry", "key", key, "error", jsonErr)
	case errors.Is(err, redis.Nil):
		log.Debug("cache miss", "key", key)
	default:
		log.Warn("cache read failed", "key", key, "error", redact.Error(err))
	}

	if err := load(ctx); err != nil {
		return err
	}

	encoded, err := json.Marshal(dst)
	if err != nil {
		log.Warn("failed to encode cache entry", "key", key, "error", err)
		return nil
	}

	if genErr != nil && !errors.Is(genErr, redis.Nil) {
		return nil
	}

	idx := indexKey(userID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, ttl)
			pipe.SAdd(ctx, idx, key)
			pipe.Expire(ctx, idx, ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		log.Debug("skipping cache write, entries invalidated during load", "key", key)
	default:
		log.Warn("cache write failed", "key", key, "error", redact.Error(err))
	}
	return nil
}

var errStaleFill = errors.New("cache generation changed during load")

// InvalidateUser implements TaskCache.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, c.logger)
	idx := indexKey(userID)

	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Error("failed to read cache index", "user_id", userID, "error", redact.Error(err))
		return fmt.Errorf("failed to read cache index: %w", err)
	}

	keys = append(keys, idx)
	genKey := generationKey(userID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		return nil
	})
	if err != nil {
		log.Error("failed to invalidate cache", "user_id", userID, "error", redact.Error(err))
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	log.Debug("cache invalidated", "user_id", userID, "keys", len(keys)-1)
	return nil
}
