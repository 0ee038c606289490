// Package cache provides a small read-through cache over Redis for the hot
// catalog reads (questions, assignments) the session engine performs on
// every start. Ranking is deliberately never cached: result views recompute
// from persisted attempts.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default TTLs per data class. Catalog rows change rarely while attempts are
// running; existence checks are cheap to recompute.
const (
	CatalogTTL = 5 * time.Minute
	FastTTL    = 1 * time.Minute
)

type Helper struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewHelper creates a cache helper. A nil client disables caching; every
// read goes straight to the loader.
func NewHelper(client *redis.Client, prefix string, logger *slog.Logger) *Helper {
	return &Helper{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (h *Helper) key(k string) string {
	return h.prefix + k
}

// GetOrLoad fills dest from cache when possible, otherwise runs load and
// stores its result. Cache failures degrade to a direct load, never to an
// error for the caller.
func (h *Helper) GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func() (interface{}, error)) error {
	if h.client != nil {
		raw, err := h.client.Get(ctx, h.key(key)).Bytes()
		if err == nil {
			if err := json.Unmarshal(raw, dest); err == nil {
				return nil
			}
			h.logger.Warn("Discarding undecodable cache entry", "key", key)
		} else if err != redis.Nil {
			h.logger.Warn("Cache read failed", "key", key, "error", err)
		}
	}

	value, err := load()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if h.client != nil {
		if err := h.client.Set(ctx, h.key(key), raw, ttl).Err(); err != nil {
			h.logger.Warn("Cache write failed", "key", key, "error", err)
		}
	}

	return json.Unmarshal(raw, dest)
}

// Invalidate drops the given keys. Missing keys are not an error.
func (h *Helper) Invalidate(ctx context.Context, keys ...string) {
	if h.client == nil || len(keys) == 0 {
		return
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = h.key(k)
	}
	if err := h.client.Del(ctx, prefixed...).Err(); err != nil {
		h.logger.Warn("Cache invalidation failed", "keys", keys, "error", err)
	}
}
