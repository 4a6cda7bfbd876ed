package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/internal/rate"
	"github.com/redis/go-redis/v9"
)

// ErrClientIPLimited is returned while an address is throttled.
var ErrClientIPLimited = errors.New("too many failed logins from client")

type ClientIPConfig struct {
	MaxFailures int
	Window      time.Duration
	OpTimeout   time.Duration
}

// ClientIP counts failed logins per address across all identities. A
// success does not reset it; the count only ages out.
type ClientIP struct {
	window *rate.Window
}

func NewClientIP(redisClient redis.UniversalClient, cfg ClientIPConfig) *ClientIP {
	return &ClientIP{
		window: rate.NewWindow(redisClient, "login_ip_failures:", cfg.MaxFailures, cfg.Window, cfg.OpTimeout),
	}
}

// Check returns ErrClientIPLimited when ip has reached the failure budget.
// Requests without a known address are never limited.
func (l *ClientIP) Check(ctx context.Context, ip string) error {
	if l == nil || ip == "" {
		return nil
	}
	return mapLimited(l.window.Allow(ctx, ip), ErrClientIPLimited)
}

func (l *ClientIP) RecordFailure(ctx context.Context, ip string) error {
	if l == nil || ip == "" {
		return nil
	}
	_, err := l.window.Hit(ctx, ip)
	return mapLimited(err, ErrClientIPLimited)
}
