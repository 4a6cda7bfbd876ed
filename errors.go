package lmsauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for an unknown identity or a wrong
	// password. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while an identity is locked out.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned when the password is right but the
	// account is disabled.
	ErrAccountInactive = errors.New("account inactive")
	// ErrTokenRevoked is returned for a token whose version is stale or whose
	// session has been invalidated.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenInvalid is returned for a token that fails signature, type or
	// expiry checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTwoFactorRequired is returned by Login for accounts with 2FA enabled.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrInvalid2FACode is returned when neither the TOTP code nor a backup
	// code matched.
	ErrInvalid2FACode = errors.New("invalid two-factor code")
	// ErrTwoFactorAlreadyEnabled is returned when enrolling an enrolled user.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorNotEnrolled is returned when 2FA is not enabled or no
	// enrollment is pending.
	ErrTwoFactorNotEnrolled = errors.New("two-factor not enrolled")
	// ErrTooManyAttempts is returned while a user's second-factor attempts or
	// a client address's login failures are throttled.
	ErrTooManyAttempts = errors.New("too many attempts, try again later")
	// ErrNotFound is returned when a user or session does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrPasswordPolicy is returned when the hasher rejects the new password.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInfrastructure is returned when a backing store is unreachable and
	// the operation has no safe default.
	ErrInfrastructure = errors.New("authentication backend unavailable")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// InvalidCredentialsError carries how many attempts remain before lockout.
// It matches ErrInvalidCredentials with errors.Is.
type InvalidCredentialsError struct {
	RemainingAttempts int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrInvalidCredentials, e.RemainingAttempts)
}

func (e *InvalidCredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// AccountLockedError carries the lock expiry. It matches ErrAccountLocked
// with errors.Is.
type AccountLockedError struct {
	LockedUntil time.Time
}

func (e *AccountLockedError) Error() string {
	if e.LockedUntil.IsZero() {
		return ErrAccountLocked.Error()
	}
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.LockedUntil.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RemainingAttempts extracts the attempt count from an invalid-credentials
// error. ok is false for any other error.
func RemainingAttempts(err error) (remaining int, ok bool) {
	var ice *InvalidCredentialsError
	if errors.As(err, &ice) {
		return ice.RemainingAttempts, true
	}
	return 0, false
}

// LockedUntil extracts the lock expiry from an account-locked error.
func LockedUntil(err error) (time.Time, bool) {
	var ale *AccountLockedError
	if errors.As(err, &ale) {
		return ale.LockedUntil, true
	}
	return time.Time{}, false
}

func infraError(err error) error {
	return fmt.Errorf("%w: %v", ErrInfrastructure, err)
}
