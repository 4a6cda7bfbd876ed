// Package lmsauth is the authentication core of a learning-management
// backend: brute-force lockout per login identity, TOTP two-factor with
// single-use backup codes, per-device session tracking with an advisory
// suspicious-login heuristic, and global token revocation through a
// per-user token version.
//
// Build an [Engine] with [New]:
//
//	engine, err := lmsauth.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithCredentialStore(users).
//		Build()
//
// Engine methods are safe for concurrent use. Redis holds every piece of
// ephemeral state; the [CredentialStore] holds accounts and the
// authoritative token version.
//
// # Login flow
//
// Lock check, identity lookup, password check, active check, suspicious
// check, lockout reset, session creation, second factor (two-factor accounts
// only), token minting. Unknown identities and wrong passwords are
// indistinguishable to the caller and both count toward lockout.
//
// Wrong second-factor codes do not count toward lockout. They have their own
// per-user budget (TOTP.MaxCodeAttempts); once it is spent every code check
// returns [ErrTooManyAttempts] until the window ends. Lockout.MaxFailuresPerIP
// adds an optional throttle per client address.
//
// # Revocation
//
// Every token carries the user's token version. [Engine.LogoutAll] and
// [Engine.ChangePassword] increment it, so every outstanding token fails
// [Engine.Validate] and [Engine.Refresh] with [ErrTokenRevoked] at once.
// [Engine.Logout] only closes one session.
//
// # Failure policy
//
//   - Lockout store unreachable: logins proceed (fail open, logged at warn).
//   - Two-factor store unreachable: the account is treated as not enrolled
//     (logged at warn). Clearing TOTP.FailOpenOnLookupError makes these
//     logins fail with [ErrInfrastructure].
//   - Attempt throttle store unreachable: checks proceed (fail open).
//   - Activity sink failures never affect the operation.
package lmsauth
