package twofactor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/lmsauth/totp"
)

var (
	// ErrUnavailable wraps store failures.
	ErrUnavailable = errors.New("two-factor backend unavailable")
	// ErrNoPendingEnrollment is returned when no enrollment is in progress.
	ErrNoPendingEnrollment = errors.New("no pending two-factor enrollment")
)

// Config holds key lifetimes for two-factor state.
type Config struct {
	SecretTTL     time.Duration
	BackupCodeTTL time.Duration
	PendingTTL    time.Duration
	// ReplayTTL is how long a used time step stays marked. It must cover
	// the verification window on both sides.
	ReplayTTL time.Duration
	OpTimeout time.Duration
}

// DefaultConfig returns a one year secret lifetime, 30 day backup codes, a
// 10 minute enrollment window and a 90 second replay marker.
func DefaultConfig() Config {
	return Config{
		SecretTTL:     365 * 24 * time.Hour,
		BackupCodeTTL: 30 * 24 * time.Hour,
		PendingTTL:    10 * time.Minute,
		ReplayTTL:     90 * time.Second,
	}
}

// Lookup is the typed result of reading a user's secret. Found=false with a
// nil Err means 2FA is not enabled; a non-nil Err means the store could not
// be consulted.
type Lookup struct {
	Found  bool
	Secret string
	Err    error
}

// Store keeps TOTP secrets, hashed backup codes, pending enrollments and
// replay markers in Redis.
type Store struct {
	redis  redis.UniversalClient
	config Config
	log    zerolog.Logger
}

// New creates a Store. Zero config fields fall back to DefaultConfig.
func New(redisClient redis.UniversalClient, cfg Config, logger zerolog.Logger) *Store {
	defaults := DefaultConfig()
	if cfg.SecretTTL <= 0 {
		cfg.SecretTTL = defaults.SecretTTL
	}
	if cfg.BackupCodeTTL <= 0 {
		cfg.BackupCodeTTL = defaults.BackupCodeTTL
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaults.PendingTTL
	}
	if cfg.ReplayTTL <= 0 {
		cfg.ReplayTTL = defaults.ReplayTTL
	}
	return &Store{redis: redisClient, config: cfg, log: logger}
}

func secretKey(userID string) string  { return "2fa_secret:" + userID }
func backupKey(userID string) string  { return "backup_codes:" + userID }
func pendingKey(userID string) string { return "2fa_pending:" + userID }

func usedKey(userID string, step int64) string {
	return "2fa_used:" + userID + ":" + strconv.FormatInt(step, 10)
}

// Enable stores secret and the digests of backupCodes, replacing any previous
// enrollment and clearing a pending one.
func (s *Store) Enable(ctx context.Context, userID, secret string, backupCodes []string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	hashes := hashCodes(backupCodes)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, secretKey(userID), secret, s.config.SecretTTL)
		pipe.Del(ctx, backupKey(userID))
		if len(hashes) > 0 {
			pipe.SAdd(ctx, backupKey(userID), hashes...)
			pipe.Expire(ctx, backupKey(userID), s.config.BackupCodeTTL)
		}
		pipe.Del(ctx, pendingKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ReplaceBackupCodes discards every stored backup code and stores codes.
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, codes []string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	hashes := hashCodes(codes)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, backupKey(userID))
		if len(hashes) > 0 {
			pipe.SAdd(ctx, backupKey(userID), hashes...)
			pipe.Expire(ctx, backupKey(userID), s.config.BackupCodeTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Disable removes the secret, backup codes and any pending enrollment.
func (s *Store) Disable(ctx context.Context, userID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.redis.Del(ctx, secretKey(userID), backupKey(userID), pendingKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Lookup reads the user's secret.
func (s *Store) Lookup(ctx context.Context, userID string) Lookup {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	secret, err := s.redis.Get(ctx, secretKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Lookup{}
		}
		return Lookup{Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	return Lookup{Found: true, Secret: secret}
}

// Secret returns the user's secret. A store failure is logged and reported
// as absent.
func (s *Store) Secret(ctx context.Context, userID string) (string, bool) {
	l := s.Lookup(ctx, userID)
	if l.Err != nil {
		s.log.Warn().Err(l.Err).Str("user_id", userID).Msg("twofactor: secret lookup failed, treating as absent")
		return "", false
	}
	return l.Secret, l.Found
}

// IsEnabled reports whether the user has an active enrollment. A store
// failure is reported as not enabled.
func (s *Store) IsEnabled(ctx context.Context, userID string) bool {
	_, ok := s.Secret(ctx, userID)
	return ok
}

// VerifyBackupCode consumes code if it is one of the user's unused backup
// codes. The comparison is case-insensitive and the removal is a single SREM,
// so concurrent submissions of one code succeed at most once.
func (s *Store) VerifyBackupCode(ctx context.Context, userID, code string) (bool, error) {
	normalized := totp.NormalizeBackupCode(code)
	if normalized == "" {
		return false, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	removed, err := s.redis.SRem(ctx, backupKey(userID), totp.HashBackupCode(normalized)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return removed == 1, nil
}

// RemainingBackupCodes returns how many backup codes are still unused.
func (s *Store) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.redis.SCard(ctx, backupKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// SavePending records secret as an enrollment awaiting confirmation.
func (s *Store) SavePending(ctx context.Context, userID, secret string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.redis.Set(ctx, pendingKey(userID), secret, s.config.PendingTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// LoadPending returns the secret of an enrollment in progress.
func (s *Store) LoadPending(ctx context.Context, userID string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	secret, err := s.redis.Get(ctx, pendingKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoPendingEnrollment
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return secret, nil
}

// ClearPending drops an enrollment in progress.
func (s *Store) ClearPending(ctx context.Context, userID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.redis.Del(ctx, pendingKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// MarkStepUsed records that step was consumed by userID. It returns false
// when the step had already been used.
func (s *Store) MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.redis.SetNX(ctx, usedKey(userID, step), 1, s.config.ReplayTTL).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.config.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.OpTimeout)
}

func hashCodes(codes []string) []interface{} {
	out := make([]interface{}, 0, len(codes))
	for _, c := range codes {
		if totp.NormalizeBackupCode(c) == "" {
			continue
		}
		out = append(out, totp.HashBackupCode(c))
	}
	return out
}
