// Package ledger tracks per-user token versions. The credential store holds
// the authoritative value; Redis keeps a short-lived cache-aside copy.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL bounds how stale a cached version can be after an external
// write that skipped Invalidate.
const DefaultCacheTTL = 60 * time.Second

// publishScript writes a version only if it is newer than the cached one, so
// a reader that fetched before a bump cannot put the old value back.
const publishScript = `
local cur = tonumber(redis.call("GET", KEYS[1]) or "")
if cur and cur >= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`

var publishLua = redis.NewScript(publishScript)

// Source is the authoritative token version store.
type Source interface {
	TokenVersion(ctx context.Context, userID string) (uint64, error)
	PersistTokenVersion(ctx context.Context, userID string, version uint64) error
}

// Ledger reads and bumps token versions.
type Ledger struct {
	source Source
	redis  redis.UniversalClient
	ttl    time.Duration
	log    zerolog.Logger
}

// New creates a Ledger. A nil redisClient disables caching.
func New(source Source, redisClient redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *Ledger {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Ledger{source: source, redis: redisClient, ttl: ttl, log: logger}
}

// Key returns the cache key of userID's version.
func Key(userID string) string {
	return "token_version:" + userID
}

// Current returns the live token version. Cache failures fall through to the
// source and are logged.
func (l *Ledger) Current(ctx context.Context, userID string) (uint64, error) {
	if l.redis != nil {
		raw, err := l.redis.Get(ctx, Key(userID)).Result()
		switch {
		case err == nil:
			if v, perr := strconv.ParseUint(raw, 10, 64); perr == nil {
				return v, nil
			}
			l.log.Warn().Str("user_id", userID).Msg("ledger: discarding malformed cached version")
		case !errors.Is(err, redis.Nil):
			l.log.Warn().Err(err).Str("user_id", userID).Msg("ledger: cache read failed")
		}
	}

	v, err := l.source.TokenVersion(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("ledger: %w", err)
	}

	l.publish(ctx, userID, v)
	return v, nil
}

// Publish caches v as userID's version after a write made elsewhere. It never
// lowers a cached version. When the cache write fails the cached copy is
// dropped instead.
func (l *Ledger) Publish(ctx context.Context, userID string, v uint64) {
	if l.redis == nil {
		return
	}
	if err := l.publish(ctx, userID, v); err != nil {
		l.Invalidate(ctx, userID)
	}
}

func (l *Ledger) publish(ctx context.Context, userID string, v uint64) error {
	if l.redis == nil {
		return nil
	}
	err := publishLua.Run(ctx, l.redis, []string{Key(userID)},
		strconv.FormatUint(v, 10), l.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.log.Warn().Err(err).Str("user_id", userID).Msg("ledger: cache write failed")
		return err
	}
	return nil
}

// Bump increments the persisted version by one and caches the new value.
// Every token minted before the bump stops validating.
func (l *Ledger) Bump(ctx context.Context, userID string) (uint64, error) {
	v, err := l.source.TokenVersion(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("ledger: %w", err)
	}

	next := v + 1
	if err := l.source.PersistTokenVersion(ctx, userID, next); err != nil {
		return 0, fmt.Errorf("ledger: %w", err)
	}

	l.Publish(ctx, userID, next)
	return next, nil
}

// Invalidate drops the cached version after a write made elsewhere.
func (l *Ledger) Invalidate(ctx context.Context, userID string) {
	if l.redis == nil {
		return
	}
	if err := l.redis.Del(ctx, Key(userID)).Err(); err != nil {
		l.log.Warn().Err(err).Str("user_id", userID).Msg("ledger: cache invalidation failed")
	}
}
