// Package middleware adapts lmsauth.Engine to net/http.
//
//   - [ClientInfo] copies the client IP, user agent and device hint of each
//     request into its context, where Login reads them.
//   - [RequireAuth] validates the bearer access token with Engine.Validate
//     and stores the claims for [ClaimsFromContext].
//
// Decisions are delegated to the engine; this package only maps errors to
// status codes.
package middleware
