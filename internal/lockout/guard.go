package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds the brute-force lockout policy.
type Config struct {
	// Threshold is the number of consecutive failures that locks an identity.
	Threshold int
	// Duration is how long an identity stays locked once Threshold is reached.
	Duration time.Duration
	// Window is the TTL of a pre-lock failure counter. It is shorter than
	// Duration so near-miss counters decay.
	Window time.Duration
	// OpTimeout bounds each store round trip. Zero means the caller's context only.
	OpTimeout time.Duration
}

// DefaultConfig returns the production defaults: 5 failures, 30 minute lock,
// 15 minute counter window.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Duration:  30 * time.Minute,
		Window:    15 * time.Minute,
	}
}

// ErrUnavailable indicates the lockout backend could not be reached.
var ErrUnavailable = errors.New("lockout backend unavailable")

// Status is the outcome of a lock check.
type Status uint8

const (
	// StatusUnlocked means no live lock exists for the identity.
	StatusUnlocked Status = iota
	// StatusLocked means the identity is locked until State.LockedUntil.
	StatusLocked
	// StatusUnknown means the store could not be consulted.
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusUnlocked:
		return "unlocked"
	case StatusLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// State is the typed result of Guard.Check. Callers that want strict
// behaviour on infrastructure failure can branch on StatusUnknown instead of
// using the fail-open IsLocked projection.
type State struct {
	Status      Status
	LockedUntil time.Time
	Err         error
}

// Locked reports whether the identity is definitely locked.
func (s State) Locked() bool {
	return s.Status == StatusLocked
}

// Result is returned by RecordFailure.
type Result struct {
	Locked            bool
	RemainingAttempts int
	Attempts          int
	LockedUntil       time.Time
}

// Info is a read-only view of a lockout record. LockedUntil is zero while the
// identity is below the threshold.
type Info struct {
	Attempts    int
	LockedUntil time.Time
}

const (
	fieldAttempts    = "attempts"
	fieldLockedUntil = "locked_until"
)

// recordFailureScript increments the counter and applies the TTL in one step
// so concurrent failures cannot under-count. An expired lock is discarded
// before counting.
const recordFailureScript = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local window_ms = tonumber(ARGV[3])
local lock_ms = tonumber(ARGV[4])

local locked_until = tonumber(redis.call("HGET", key, "locked_until") or "0")
if locked_until > 0 and now_ms >= locked_until then
  redis.call("DEL", key)
end

local attempts = redis.call("HINCRBY", key, "attempts", 1)
if attempts >= threshold then
  local until_ms = now_ms + lock_ms
  redis.call("HSET", key, "locked_until", until_ms)
  redis.call("PEXPIRE", key, lock_ms)
  return {attempts, until_ms}
end

redis.call("PEXPIRE", key, window_ms)
return {attempts, 0}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// Guard tracks failed logins per identity and enforces temporary lockout.
//
// Failures are counted for identities that do not exist as well, so the
// response to a probe does not reveal whether an account is registered.
type Guard struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
	log    zerolog.Logger
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger sets the logger used for fail-open decisions.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Guard) {
		g.log = logger
	}
}

// New creates a Guard backed by redisClient.
func New(redisClient redis.UniversalClient, cfg Config, opts ...Option) *Guard {
	defaults := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = defaults.Duration
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}

	g := &Guard{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key returns the store key for identity.
func Key(identity string) string {
	return "lockout:" + NormalizeIdentity(identity)
}

// NormalizeIdentity folds case and surrounding whitespace so "A@x.com " and
// "a@x.com" share one counter.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Threshold returns the configured failure threshold.
func (g *Guard) Threshold() int {
	return g.config.Threshold
}

// Check reads the lockout record. An expired lock is deleted and reported as
// unlocked.
func (g *Guard) Check(ctx context.Context, identity string) State {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	key := Key(identity)
	info, err := g.read(ctx, key)
	if err != nil {
		return State{Status: StatusUnknown, Err: err}
	}
	if info.LockedUntil.IsZero() {
		return State{Status: StatusUnlocked}
	}

	if !g.now().Before(info.LockedUntil) {
		if err := g.redis.Del(ctx, key).Err(); err != nil {
			g.log.Warn().Err(err).Str("key", key).Msg("lockout: failed to delete expired record")
		}
		return State{Status: StatusUnlocked}
	}

	return State{Status: StatusLocked, LockedUntil: info.LockedUntil}
}

// IsLocked is the fail-open projection of Check: when the store cannot be
// consulted the identity is reported as not locked and the error is logged.
func (g *Guard) IsLocked(ctx context.Context, identity string) bool {
	state := g.Check(ctx, identity)
	if state.Status == StatusUnknown {
		g.log.Warn().
			Err(state.Err).
			Str("identity", NormalizeIdentity(identity)).
			Msg("lockout: store unavailable, failing open")
		return false
	}
	return state.Locked()
}

// RecordFailure counts one failed attempt and locks the identity when the
// threshold is reached.
func (g *Guard) RecordFailure(ctx context.Context, identity string) (Result, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	raw, err := recordFailureLua.Run(
		ctx,
		g.redis,
		[]string{Key(identity)},
		g.now().UnixMilli(),
		g.config.Threshold,
		g.config.Window.Milliseconds(),
		g.config.Duration.Milliseconds(),
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := raw.([]interface{})
	if !ok || len(parts) != 2 {
		return Result{}, fmt.Errorf("%w: invalid lockout script response", ErrUnavailable)
	}
	attempts, ok1 := parts[0].(int64)
	untilMS, ok2 := parts[1].(int64)
	if !ok1 || !ok2 {
		return Result{}, fmt.Errorf("%w: invalid lockout script response", ErrUnavailable)
	}

	if untilMS > 0 {
		return Result{
			Locked:      true,
			Attempts:    int(attempts),
			LockedUntil: time.UnixMilli(untilMS),
		}, nil
	}

	return Result{
		Attempts:          int(attempts),
		RemainingAttempts: g.config.Threshold - int(attempts),
	}, nil
}

// Reset deletes the counter. Call it only after a verified authentication or
// an administrative unlock.
func (g *Guard) Reset(ctx context.Context, identity string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.redis.Del(ctx, Key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Info returns the current attempt count and lock expiry for user-facing
// messages. An expired lock is reported as absent.
func (g *Guard) Info(ctx context.Context, identity string) (Info, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	info, err := g.read(ctx, Key(identity))
	if err != nil {
		return Info{}, err
	}
	if !info.LockedUntil.IsZero() && !g.now().Before(info.LockedUntil) {
		return Info{}, nil
	}
	return info, nil
}

func (g *Guard) read(ctx context.Context, key string) (Info, error) {
	vals, err := g.redis.HMGet(ctx, key, fieldAttempts, fieldLockedUntil).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Info{}, nil
		}
		return Info{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var info Info
	if len(vals) > 0 {
		info.Attempts = int(parseInt(vals[0]))
	}
	if len(vals) > 1 {
		if ms := parseInt(vals[1]); ms > 0 {
			info.LockedUntil = time.UnixMilli(ms)
		}
	}
	return info, nil
}

func (g *Guard) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.config.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.config.OpTimeout)
}

func parseInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
