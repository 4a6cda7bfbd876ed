package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is a fixed-window counter per id. The first hit of a window sets
// the key TTL; the count resets when the key expires. A nil Window or one
// with Max <= 0 never limits.
type Window struct {
	redis     redis.UniversalClient
	prefix    string
	max       int64
	window    time.Duration
	opTimeout time.Duration
}

// NewWindow creates a counter whose keys are prefix+id.
func NewWindow(redisClient redis.UniversalClient, prefix string, max int, window, opTimeout time.Duration) *Window {
	return &Window{
		redis:     redisClient,
		prefix:    prefix,
		max:       int64(max),
		window:    window,
		opTimeout: opTimeout,
	}
}

func (w *Window) enabled() bool {
	return w != nil && w.redis != nil && w.max > 0 && w.window > 0
}

// Key returns the Redis key for id.
func (w *Window) Key(id string) string {
	return w.prefix + id
}

// Allow returns ErrRateLimited once id has reached the limit in the current
// window.
func (w *Window) Allow(ctx context.Context, id string) error {
	if !w.enabled() {
		return nil
	}
	count, err := w.Count(ctx, id)
	if err != nil {
		return err
	}
	if int64(count) >= w.max {
		return ErrRateLimited
	}
	return nil
}

// Hit counts one event for id and returns the new count. It returns
// ErrRateLimited together with the count when the hit reached the limit.
func (w *Window) Hit(ctx context.Context, id string) (int64, error) {
	if !w.enabled() {
		return 0, nil
	}
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	key := w.Key(id)
	count, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := w.redis.Expire(ctx, key, w.window).Err(); err != nil {
			return count, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count >= w.max {
		return count, ErrRateLimited
	}
	return count, nil
}

// Reset clears the counter of id.
func (w *Window) Reset(ctx context.Context, id string) error {
	if !w.enabled() {
		return nil
	}
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	if err := w.redis.Del(ctx, w.Key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the events recorded for id in the current window. Missing
// keys count as zero.
func (w *Window) Count(ctx context.Context, id string) (int, error) {
	if !w.enabled() {
		return 0, nil
	}
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	count, err := w.redis.Get(ctx, w.Key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (w *Window) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, w.opTimeout)
}
