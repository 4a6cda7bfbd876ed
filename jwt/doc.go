// Package jwt mints and verifies the access/refresh token pairs issued at
// login. Every token carries the user id (uid), the bound session id (sid),
// the token version (tv) current at minting time and its type (typ).
//
// The package checks signatures and lifetimes only. Comparing tv against the
// live version and checking the session belong to the caller.
package jwt
