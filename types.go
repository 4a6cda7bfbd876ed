package lmsauth

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/lmsauth/internal/audit"
	"github.com/MrEthical07/lmsauth/internal/security"
	"github.com/rs/zerolog"
)

// Account is the credential record owned by the external credential store.
// TokenVersion on this record is the authoritative token version.
type Account struct {
	ID             string
	Identity       string
	PasswordDigest string
	Active         bool
	TokenVersion   uint64
}

// CredentialStore is implemented by the application's user database.
//
// Lookups return ErrNotFound (or an error wrapping it) for absent accounts.
// PersistPasswordDigest must write the digest and the new version together.
type CredentialStore interface {
	FindByIdentity(ctx context.Context, identity string) (*Account, error)
	GetAccount(ctx context.Context, userID string) (*Account, error)
	PersistTokenVersion(ctx context.Context, userID string, version uint64) error
	PersistPasswordDigest(ctx context.Context, userID, digest string, version uint64) error
}

// PasswordHasher hashes new passwords and verifies candidates against stored
// digests. The default is password.Argon2.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(candidate, digest string) (bool, error)
}

// ActivityEvent is one entry of the user activity log.
type ActivityEvent = audit.Event

// ActivityLogger receives activity events. Failures are logged and never
// affect the operation that produced the event.
type ActivityLogger = audit.Sink

// LoginResult is returned by a successful login.
type LoginResult struct {
	UserID           string
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time

	// Suspicious reports the advisory session heuristic evaluated before the
	// session was created. It never blocks the login.
	Suspicious SuspiciousActivity

	// UsedBackupCode is set when the second factor was a backup code.
	UsedBackupCode       bool
	RemainingBackupCodes int
}

// SuspiciousActivity mirrors the session heuristic outcome.
type SuspiciousActivity struct {
	Suspicious   bool
	Reason       string
	NewIPAddress bool
	NewUserAgent bool
}

// TokenPair is returned by Refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Claims is the validated content of an access token.
type Claims struct {
	UserID       string
	SessionID    string
	TokenVersion uint64
	ExpiresAt    time.Time
}

// SessionInfo describes one active session.
type SessionInfo struct {
	SessionID    string
	UserID       string
	Device       string
	IPAddress    string
	UserAgent    string
	LoginTime    time.Time
	LastActivity time.Time
}

// LockoutStatus is the introspection view of an identity's lockout counter.
type LockoutStatus struct {
	Identity          string
	Attempts          int
	RemainingAttempts int
	Locked            bool
	LockedUntil       time.Time
}

// TwoFactorEnrollment is returned by BeginTwoFactorEnrollment. The secret is
// shown to the user once, typically as a QR code of ProvisioningURI.
type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string
	ExpiresAt       time.Time
}

// TwoFactorStatus reports a user's 2FA state.
type TwoFactorStatus struct {
	Enabled              bool
	RemainingBackupCodes int
}

// SecurityReport is a read-only summary of the engine's configuration with
// warnings for settings that weaken it. See Engine.SecurityReport.
type SecurityReport = security.Report

// PasswordConfigReport holds the active Argon2id parameters.
type PasswordConfigReport = security.PasswordReport

// ActivityLoggerFunc adapts a function to ActivityLogger.
type ActivityLoggerFunc = audit.SinkFunc

// NewJSONActivityLogger writes every event to w as one JSON line.
func NewJSONActivityLogger(w io.Writer) ActivityLogger {
	return audit.NewJSONWriterSink(w)
}

// NewZerologActivityLogger writes events through logger. Failures and
// suspicious activity are logged at warn, everything else at info.
func NewZerologActivityLogger(logger zerolog.Logger) ActivityLogger {
	return audit.NewLoggerSink(logger)
}

// NewChannelActivityLogger delivers events on the returned channel. A full
// channel blocks the dispatcher until the event is read or the sink times out.
func NewChannelActivityLogger(buffer int) (ActivityLogger, <-chan ActivityEvent) {
	sink := audit.NewChannelSink(buffer)
	return sink, sink.Events()
}

// MultiActivityLogger sends every event to each logger in order.
func MultiActivityLogger(loggers ...ActivityLogger) ActivityLogger {
	return audit.MultiSink(loggers)
}
