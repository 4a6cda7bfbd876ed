// Package session provides the Redis-backed session registry: one record per
// login plus a per-user index of active session ids.
//
// # Binary encoding
//
// Records are stored as a compact, versioned binary blob (see [Encode]). The
// leading schema byte lets future layouts be read next to old ones.
//
// # Index invariant
//
// Membership of an id in user_sessions:{userID} implies the record is active.
// [Registry.Invalidate] flips the flag and removes the id inside one
// MULTI/EXEC. Readers tolerate drift from expired records and prune it.
//
// # What this package must NOT do
//
//   - Import lmsauth, jwt, or internal/ledger (no upward imports).
//   - Block a login. [Registry.CheckSuspicious] is advisory only.
//   - Refresh TTLs on plain reads.
package session
