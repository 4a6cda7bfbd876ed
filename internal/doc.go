// Package internal holds the Redis-backed building blocks of the lmsauth
// engine. Nothing here is part of the public API.
//
//   - audit: activity event dispatch, sync or buffered
//   - ledger: cached token versions
//   - limiters: second-factor and client address throttles
//   - lockout: per-identity failure counters and locks
//   - observability: zerolog setup and the Sentry hook
//   - rate: fixed-window counter used by limiters
//   - security: posture report behind Engine.SecurityReport
//   - twofactor: TOTP secrets, pending enrollments and backup codes
package internal
