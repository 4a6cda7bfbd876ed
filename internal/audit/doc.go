// Package audit delivers activity events (logins, logouts, password changes,
// 2FA changes, suspicious activity) to a caller-supplied sink.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, zerolog, no-op, fan-out).
//   - [Dispatcher]: inline or buffered async relay with drop-if-full semantics.
//   - [Event]: one record with status, actor, IP and user agent.
//
// # What this package must NOT do
//
//   - Decide which events to emit.
//   - Let a sink failure propagate to the operation that produced the event.
//   - Import lmsauth or any sibling internal package.
package audit
