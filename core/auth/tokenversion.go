package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tansanrao/nexus/pkg/logger"
)

// TokenVersionCache fronts the per-user token_version lookup with Redis so
// access-token verification doesn't round-trip to Postgres on every
// request. Entries are invalidated by an explicit version bump (global
// logout), not a TTL wait — adapted from the teacher's TokenBlacklist,
// which keys revocations the same way but by jti/expiry instead of by
// user/version.
type TokenVersionCache struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewTokenVersionCache(client *redis.Client) *TokenVersionCache {
	return &TokenVersionCache{
		redis:  client,
		prefix: "auth:token_version:",
		ttl:    time.Hour,
	}
}

// Get returns the cached token_version for a user, or ok=false on a cache
// miss (caller should fall back to the database and call Set).
func (c *TokenVersionCache) Get(ctx context.Context, userID int64) (version int64, ok bool) {
	if c.redis == nil {
		return 0, false
	}
	val, err := c.redis.Get(ctx, c.key(userID)).Result()
	if err != nil {
		return 0, false
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// Set populates the cache after a database lookup.
func (c *TokenVersionCache) Set(ctx context.Context, userID, version int64) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, c.key(userID), strconv.FormatInt(version, 10), c.ttl).Err(); err != nil {
		logger.WithError(err).Warn("token version cache set failed")
	}
}

// Invalidate forces the next verification to re-check the database,
// used right after IncrementTokenVersion so a logged-out session doesn't
// keep passing against a stale cached version for up to ttl.
func (c *TokenVersionCache) Invalidate(ctx context.Context, userID int64) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.key(userID)).Err(); err != nil {
		logger.WithError(err).Warn("token version cache invalidate failed")
	}
}

func (c *TokenVersionCache) key(userID int64) string {
	return c.prefix + strconv.FormatInt(userID, 10)
}
