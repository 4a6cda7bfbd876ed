// Package password is the default Argon2id implementation of the engine's
// password hasher.
//
// Digests use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsRehash] reports digests produced with weaker parameters so
// the caller can re-hash after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other lmsauth package.
//   - Log plaintext passwords.
package password
