package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

// ErrSecondFactorLimited is returned once a user has used up their code
// attempts for the current window.
var ErrSecondFactorLimited = errors.New("too many two-factor attempts")

// SecondFactorConfig sets the per-user code attempt budget. MaxAttempts <= 0
// disables the limiter.
type SecondFactorConfig struct {
	MaxAttempts int
	Window      time.Duration
	OpTimeout   time.Duration
}

// SecondFactor throttles code guessing. Password lockout does not see code
// failures, so this is the only bound on them.
type SecondFactor struct {
	window *rate.Window
}

func NewSecondFactor(redisClient redis.UniversalClient, cfg SecondFactorConfig) *SecondFactor {
	return &SecondFactor{
		window: rate.NewWindow(redisClient, "2fa_attempts:", cfg.MaxAttempts, cfg.Window, cfg.OpTimeout),
	}
}

// Check returns ErrSecondFactorLimited when userID may not try another code.
func (l *SecondFactor) Check(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return mapLimited(l.window.Allow(ctx, userID), ErrSecondFactorLimited)
}

// RecordFailure counts one wrong code. The error is ErrSecondFactorLimited
// when this failure used up the budget.
func (l *SecondFactor) RecordFailure(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	_, err := l.window.Hit(ctx, userID)
	return mapLimited(err, ErrSecondFactorLimited)
}

// Reset clears the count after a correct code.
func (l *SecondFactor) Reset(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return l.window.Reset(ctx, userID)
}

func mapLimited(err, limited error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return limited
	}
	return err
}
