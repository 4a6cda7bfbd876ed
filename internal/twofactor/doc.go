// Package twofactor persists per-user TOTP enrollment state in Redis.
//
// Keys:
//
//	2fa_secret:{userID}          base32 secret, ~1 year TTL
//	2fa_pending:{userID}         enrollment awaiting confirmation, 10 minutes
//	backup_codes:{userID}        SET of SHA-256 digests, ~30 days
//	2fa_used:{userID}:{step}     replay marker
//
// Plaintext backup codes are never stored.
package twofactor
