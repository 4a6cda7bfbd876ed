// Package limiters holds the attempt throttles layered on internal/rate.
//
//   - [SecondFactor] counts wrong TOTP and backup codes per user.
//   - [ClientIP] counts failed logins per client address.
//
// Limiters only count. The engine decides what a limited caller gets back.
// All methods are nil-safe.
package limiters
