// Package cache keeps rendered session summaries in Redis.  Entries are
// keyed by session id so a reservation change can drop exactly the
// summary it made stale.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/class-reservation/internal/config"
)

// SummaryCache stores summary response bodies per session.
type SummaryCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSummaryCache returns nil when caching is disabled or Redis is
// unavailable.  All methods treat a nil cache as empty.
func NewSummaryCache(cfg config.CacheConfig, rdb *redis.Client) *SummaryCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return &SummaryCache{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// Key is the Redis key holding the summary of sessionID.
func (c *SummaryCache) Key(sessionID uint64) string {
	return c.prefix + ":session:" + strconv.FormatUint(sessionID, 10)
}

// Get returns the cached body.  A miss is (nil, false, nil).
func (c *SummaryCache) Get(ctx context.Context, sessionID uint64) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	body, err := c.rdb.Get(ctx, c.Key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// Put stores body for sessionID.
func (c *SummaryCache) Put(ctx context.Context, sessionID uint64, body []byte) error {
	if c == nil {
		return nil
	}
	return c.rdb.Set(ctx, c.Key(sessionID), body, c.ttl).Err()
}

// InvalidateSession drops the cached summary of sessionID.
func (c *SummaryCache) InvalidateSession(ctx context.Context, sessionID uint64) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.Key(sessionID)).Err()
}
