package rate

import "errors"

var (
	// ErrRateLimited is returned once a counter reaches its limit.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
