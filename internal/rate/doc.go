// Package rate provides the Redis fixed-window counter behind the attempt
// throttles in internal/limiters.
//
// A window is INCR plus EXPIRE on the first hit. Callers choose the key
// prefix and decide what hitting the limit means.
package rate
