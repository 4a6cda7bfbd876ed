// Package totp implements RFC 6238 time-based one-time passwords and backup
// code generation as pure functions.
//
// Nothing in this package reads the wall clock or holds state: every
// operation takes the instant it evaluates at, which keeps the algorithms
// testable against published vectors.
//
// # What this package must NOT do
//
//   - Talk to Redis or any other store. Persistence of secrets and backup
//     codes belongs to internal/twofactor.
//   - Decide login policy (whether 2FA is required, replay handling).
package totp
