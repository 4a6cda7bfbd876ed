package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a session record does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrRedisUnavailable wraps store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
)

const maxWatchRetries = 3

// Config controls session lifetime and the suspicious-activity heuristics.
type Config struct {
	// TTL applies to records and the per-user index; refreshed on activity.
	TTL time.Duration
	// MaxDistinctIPs is the largest number of distinct IPs across active
	// sessions that is still considered normal.
	MaxDistinctIPs int
	// MaxDistinctUserAgents is the same bound for user agents.
	MaxDistinctUserAgents int
	// RapidLoginWindow and MaxRapidLogins bound how many sessions may start
	// within a short span.
	RapidLoginWindow time.Duration
	MaxRapidLogins   int
	// OpTimeout bounds each store round trip. Zero means the caller's context only.
	OpTimeout time.Duration
}

// DefaultConfig returns a 24h TTL and thresholds of 3 IPs, 2 user agents and
// 2 logins per 5 minutes.
func DefaultConfig() Config {
	return Config{
		TTL:                   24 * time.Hour,
		MaxDistinctIPs:        3,
		MaxDistinctUserAgents: 2,
		RapidLoginWindow:      5 * time.Minute,
		MaxRapidLogins:        2,
	}
}

// Registry is a Redis-backed session registry with a per-user index of
// active session ids.
type Registry struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
	log    zerolog.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = logger
	}
}

// NewRegistry creates a Registry backed by redisClient. Zero config fields
// fall back to DefaultConfig.
func NewRegistry(redisClient redis.UniversalClient, cfg Config, opts ...Option) *Registry {
	defaults := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.MaxDistinctIPs <= 0 {
		cfg.MaxDistinctIPs = defaults.MaxDistinctIPs
	}
	if cfg.MaxDistinctUserAgents <= 0 {
		cfg.MaxDistinctUserAgents = defaults.MaxDistinctUserAgents
	}
	if cfg.RapidLoginWindow <= 0 {
		cfg.RapidLoginWindow = defaults.RapidLoginWindow
	}
	if cfg.MaxRapidLogins <= 0 {
		cfg.MaxRapidLogins = defaults.MaxRapidLogins
	}

	r := &Registry{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the record key for a session id.
func Key(sessionID string) string {
	return "session:" + sessionID
}

// IndexKey returns the key of the user's active-session set.
func IndexKey(userID string) string {
	return "user_sessions:" + userID
}

// Create stores a new active session and indexes it under the user.
//
//	Performance: 1 round trip (MULTI SET SADD EXPIRE EXEC).
func (r *Registry) Create(ctx context.Context, userID, device, ipAddress, userAgent string) (*Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.now()
	rec := &Record{
		ID:           uuid.NewString(),
		UserID:       userID,
		Device:       device,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		LoginTime:    now,
		LastActivity: now,
		Active:       true,
	}

	data, err := Encode(rec)
	if err != nil {
		return nil, err
	}

	indexKey := IndexKey(userID)
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, Key(rec.ID), data, r.config.TTL)
		pipe.SAdd(ctx, indexKey, rec.ID)
		pipe.Expire(ctx, indexKey, r.config.TTL)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return rec, nil
}

// Get returns the record for sessionID without refreshing its TTL.
//
//	Performance: 1 Redis GET.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.get(ctx, r.redis, sessionID)
}

// UpdateActivity bumps LastActivity and re-persists the record with the full
// TTL. It is a no-op when the record does not exist.
//
//	Performance: 2 round trips (GET, then MULTI SET EXPIRE EXEC).
func (r *Registry) UpdateActivity(ctx context.Context, sessionID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rec, err := r.get(ctx, r.redis, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	rec.LastActivity = r.now()
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, Key(sessionID), data, r.config.TTL)
		if rec.Active {
			pipe.Expire(ctx, IndexKey(rec.UserID), r.config.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ListActive returns the user's active sessions ordered by login time.
// Index entries whose record vanished or is inactive are pruned.
//
//	Performance: SMEMBERS + pipelined GETs, plus one SREM when the index drifted.
func (r *Registry) ListActive(ctx context.Context, userID string) ([]*Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	indexKey := IndexKey(userID)
	ids, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err = r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Get(ctx, Key(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	active := make([]*Record, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		rec, err := Decode(data)
		if err != nil {
			r.log.Warn().Err(err).Str("session_id", ids[i]).Msg("session: dropping undecodable record from index")
			stale = append(stale, ids[i])
			continue
		}
		if !rec.Active || rec.UserID != userID {
			stale = append(stale, ids[i])
			continue
		}
		active = append(active, rec)
	}

	if len(stale) > 0 {
		if err := r.redis.SRem(ctx, indexKey, stale...).Err(); err != nil {
			r.log.Warn().Err(err).Str("user_id", userID).Msg("session: failed to prune index")
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].LoginTime.Before(active[j].LoginTime)
	})
	return active, nil
}

// Invalidate flags the session inactive, keeping its TTL, and removes it from
// the user's index in one transaction. It reports whether an active session
// was flipped; absent or already inactive sessions are a no-op.
func (r *Registry) Invalidate(ctx context.Context, sessionID string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.invalidate(ctx, sessionID)
}

// InvalidateAll invalidates every indexed session of the user, then deletes
// the index. It returns the number of sessions flipped to inactive.
//
// A session created concurrently after the index is read is not captured.
func (r *Registry) InvalidateAll(ctx context.Context, userID string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	indexKey := IndexKey(userID)
	ids, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count := 0
	for _, id := range ids {
		flipped, err := r.invalidate(ctx, id)
		if err != nil {
			return count, err
		}
		if flipped {
			count++
		}
	}

	if err := r.redis.Del(ctx, indexKey).Err(); err != nil {
		return count, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

func (r *Registry) invalidate(ctx context.Context, sessionID string) (bool, error) {
	key := Key(sessionID)
	flipped := false

	txf := func(tx *redis.Tx) error {
		flipped = false
		rec, err := r.get(ctx, tx, sessionID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		wasActive := rec.Active
		rec.Active = false
		data, err := Encode(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if wasActive {
				pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			}
			pipe.SRem(ctx, IndexKey(rec.UserID), sessionID)
			return nil
		})
		if err == nil {
			flipped = wasActive
		}
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.redis.Watch(ctx, txf, key)
		if err == nil {
			return flipped, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrCorrupt) {
			return false, err
		}
		if errors.Is(err, ErrRedisUnavailable) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return false, fmt.Errorf("%w: invalidate contention on %s", ErrRedisUnavailable, sessionID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Registry) get(ctx context.Context, client getter, sessionID string) (*Record, error) {
	data, err := client.Get(ctx, Key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rec, nil
}

func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.config.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.config.OpTimeout)
}
