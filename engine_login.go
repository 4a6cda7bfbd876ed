package lmsauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth/internal/limiters"
	"github.com/MrEthical07/lmsauth/internal/lockout"
	"github.com/MrEthical07/lmsauth/totp"
)

// Login authenticates identity with a password and returns a token pair
// bound to a new session.
//
// Client IP, user agent and device are read from ctx (see WithClientIP).
// Unknown identities and wrong passwords both count toward lockout and both
// return an *InvalidCredentialsError. Accounts with two-factor enabled get
// ErrTwoFactorRequired; the session is created but no tokens are issued, and
// the caller must retry with LoginWith2FA.
func (e *Engine) Login(ctx context.Context, identity, password string) (*LoginResult, error) {
	return e.login(ctx, identity, password, "", false)
}

// LoginWith2FA is Login with a second factor. code may be a current TOTP code
// or one unused backup code. For accounts without two-factor the code is
// ignored.
func (e *Engine) LoginWith2FA(ctx context.Context, identity, password, code string) (*LoginResult, error) {
	return e.login(ctx, identity, password, code, true)
}

func (e *Engine) login(ctx context.Context, identity, password, code string, withCode bool) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observe(MetricLoginLatency, start)

	identity = strings.TrimSpace(identity)
	meta := metaFromContext(ctx)

	if err := e.ipFailures.Check(ctx, meta.ip); err != nil {
		if errors.Is(err, limiters.ErrClientIPLimited) {
			e.metricInc(MetricLoginThrottled)
			e.emit(ctx, activity{eventType: EventLogin, identity: identity, err: ErrTooManyAttempts})
			return nil, ErrTooManyAttempts
		}
		e.log.Warn().Err(err).Str("ip", meta.ip).Msg("client throttle check failed, failing open")
	}

	// Lock check. An unreadable lockout record must not block logins.
	state := e.lockout.Check(ctx, identity)
	switch state.Status {
	case lockout.StatusLocked:
		e.metricInc(MetricLoginLocked)
		err := &AccountLockedError{LockedUntil: state.LockedUntil}
		e.emit(ctx, activity{eventType: EventLogin, identity: identity, err: err})
		return nil, err
	case lockout.StatusUnknown:
		e.metricInc(MetricLockoutFailOpen)
		e.log.Warn().Err(state.Err).Str("identity", lockout.NormalizeIdentity(identity)).Msg("lockout check failed, failing open")
	}

	acct, err := e.credentials.FindByIdentity(ctx, identity)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, e.infra("find_by_identity", err)
	}
	if acct == nil {
		return nil, e.rejectCredentials(ctx, identity, "", meta.ip)
	}

	ok, err := e.hasher.Verify(password, acct.PasswordDigest)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", acct.ID).Msg("stored password digest unreadable")
	}
	if !ok {
		return nil, e.rejectCredentials(ctx, identity, acct.ID, meta.ip)
	}

	if !acct.Active {
		e.metricInc(MetricLoginInactive)
		e.emit(ctx, activity{eventType: EventLogin, userID: acct.ID, identity: identity, err: ErrAccountInactive})
		return nil, ErrAccountInactive
	}

	e.maybeRehash(ctx, acct, password)

	suspicious := e.assessLogin(ctx, acct.ID, identity, meta)

	if err := e.lockout.Reset(ctx, identity); err != nil {
		e.log.Warn().Err(err).Str("identity", lockout.NormalizeIdentity(identity)).Msg("lockout reset failed")
	}

	rec, err := e.sessions.Create(ctx, acct.ID, meta.device, meta.ip, meta.userAgent)
	if err != nil {
		return nil, e.infra("create_session", err)
	}
	e.metricInc(MetricSessionCreated)

	result := &LoginResult{
		UserID:     acct.ID,
		SessionID:  rec.ID,
		Suspicious: suspicious,
	}

	enabled, secret, err := e.twoFactorSecret(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if enabled {
		if !withCode {
			e.metricInc(MetricTwoFactorRequired)
			e.emit(ctx, activity{eventType: EventLogin, userID: acct.ID, identity: identity, sessionID: rec.ID, err: ErrTwoFactorRequired})
			return nil, ErrTwoFactorRequired
		}

		usedBackup, err := e.verifySecondFactor(ctx, acct.ID, secret, code)
		if err != nil {
			e.emit(ctx, activity{eventType: EventLogin, userID: acct.ID, identity: identity, sessionID: rec.ID, err: err})
			return nil, err
		}
		if usedBackup {
			result.UsedBackupCode = true
			remaining, err := e.twoFactor.RemainingBackupCodes(ctx, acct.ID)
			if err != nil {
				e.log.Warn().Err(err).Str("user_id", acct.ID).Msg("backup code count unavailable")
			}
			result.RemainingBackupCodes = remaining
		}
	}

	version, err := e.ledger.Current(ctx, acct.ID)
	if err != nil {
		return nil, e.infra("token_version", err)
	}

	pair, err := e.tokens.MintPair(acct.ID, rec.ID, version)
	if err != nil {
		return nil, e.infra("mint_tokens", err)
	}
	result.AccessToken = pair.AccessToken
	result.RefreshToken = pair.RefreshToken
	result.AccessExpiresAt = pair.AccessExpiresAt
	result.RefreshExpiresAt = pair.RefreshExpiresAt

	e.metricInc(MetricLoginSuccess)
	e.emit(ctx, activity{eventType: EventLogin, userID: acct.ID, identity: identity, sessionID: rec.ID})

	return result, nil
}

// rejectCredentials counts a failed attempt and picks the error to return.
// userID is empty for unknown identities; the response is the same.
func (e *Engine) rejectCredentials(ctx context.Context, identity, userID, ip string) error {
	e.metricInc(MetricLoginFailure)

	if err := e.ipFailures.RecordFailure(ctx, ip); err != nil && !errors.Is(err, limiters.ErrClientIPLimited) {
		e.log.Warn().Err(err).Str("ip", ip).Msg("failed to record client failure")
	}

	res, err := e.lockout.RecordFailure(ctx, identity)
	if err != nil {
		e.metricInc(MetricLockoutFailOpen)
		e.log.Warn().Err(err).Str("identity", lockout.NormalizeIdentity(identity)).Msg("failed to record login failure")
		e.emit(ctx, activity{eventType: EventLogin, userID: userID, identity: identity, err: ErrInvalidCredentials})
		return ErrInvalidCredentials
	}

	if res.Locked {
		e.metricInc(MetricAccountLocked)
		e.log.Warn().
			Str("identity", lockout.NormalizeIdentity(identity)).
			Time("locked_until", res.LockedUntil).
			Msg("identity locked after repeated failures")
		lockErr := &AccountLockedError{LockedUntil: res.LockedUntil}
		e.emit(ctx, activity{eventType: EventLogin, userID: userID, identity: identity, err: lockErr})
		return lockErr
	}

	credErr := &InvalidCredentialsError{RemainingAttempts: res.RemainingAttempts}
	e.emit(ctx, activity{eventType: EventLogin, userID: userID, identity: identity, err: credErr})
	return credErr
}

// assessLogin runs the advisory session heuristic. It never fails the login.
func (e *Engine) assessLogin(ctx context.Context, userID, identity string, meta requestMeta) SuspiciousActivity {
	if !e.config.Suspicious.Enabled {
		return SuspiciousActivity{}
	}

	a, err := e.sessions.CheckSuspicious(ctx, userID, meta.ip, meta.userAgent)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("suspicious activity check skipped")
		return SuspiciousActivity{}
	}

	out := SuspiciousActivity{
		Suspicious:   a.Suspicious,
		Reason:       a.Reason,
		NewIPAddress: a.NewIPAddress,
		NewUserAgent: a.NewUserAgent,
	}
	if a.Suspicious {
		e.metricInc(MetricSuspiciousLogin)
		e.log.Warn().
			Str("user_id", userID).
			Str("ip", meta.ip).
			Str("reason", a.Reason).
			Int("active_sessions", a.ActiveSessions).
			Msg("suspicious login")
		e.emit(ctx, activity{
			eventType: EventSuspiciousActivity,
			userID:    userID,
			identity:  identity,
			reason:    a.Reason,
		})
	}
	return out
}

// twoFactorSecret reports whether userID has 2FA enabled. A lookup failure
// counts as "not enrolled" unless TOTP.FailOpenOnLookupError is cleared.
func (e *Engine) twoFactorSecret(ctx context.Context, userID string) (bool, string, error) {
	lookup := e.twoFactor.Lookup(ctx, userID)
	if lookup.Err != nil {
		if e.config.TOTP.FailOpenOnLookupError {
			e.log.Warn().Err(lookup.Err).Str("user_id", userID).Msg("2fa lookup failed, treating as not enrolled")
			return false, "", nil
		}
		return false, "", e.infra("2fa_lookup", lookup.Err)
	}
	return lookup.Found, lookup.Secret, nil
}

// verifySecondFactor accepts a TOTP code in the configured window or
// consumes a backup code. usedBackup reports which one matched. Wrong codes
// count against the user's code attempt budget.
func (e *Engine) verifySecondFactor(ctx context.Context, userID, secret, code string) (usedBackup bool, err error) {
	if err := e.checkCodeBudget(ctx, userID); err != nil {
		return false, err
	}

	usedBackup, err = e.matchSecondFactor(ctx, userID, secret, code)
	e.settleCodeAttempt(ctx, userID, err)
	return usedBackup, err
}

// checkCodeBudget refuses a code check once the user has used up their
// attempts. An unreadable counter fails open.
func (e *Engine) checkCodeBudget(ctx context.Context, userID string) error {
	err := e.codeAttempts.Check(ctx, userID)
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrSecondFactorLimited) {
		e.metricInc(MetricTwoFactorThrottled)
		return ErrTooManyAttempts
	}
	e.log.Warn().Err(err).Str("user_id", userID).Msg("2fa attempt check failed, failing open")
	return nil
}

// settleCodeAttempt counts a wrong code or clears the count after a good one.
func (e *Engine) settleCodeAttempt(ctx context.Context, userID string, verifyErr error) {
	switch {
	case verifyErr == nil:
		if err := e.codeAttempts.Reset(ctx, userID); err != nil {
			e.log.Warn().Err(err).Str("user_id", userID).Msg("2fa attempt reset failed")
		}
	case errors.Is(verifyErr, ErrInvalid2FACode):
		err := e.codeAttempts.RecordFailure(ctx, userID)
		if errors.Is(err, limiters.ErrSecondFactorLimited) {
			e.log.Warn().Str("user_id", userID).Msg("2fa attempts exhausted")
		} else if err != nil {
			e.log.Warn().Err(err).Str("user_id", userID).Msg("failed to record 2fa failure")
		}
	}
}

func (e *Engine) matchSecondFactor(ctx context.Context, userID, secret, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		e.metricInc(MetricTwoFactorFailure)
		return false, ErrInvalid2FACode
	}

	ok, step, verr := totp.VerifyCustom(secret, code, e.now(), e.config.TOTP.Window, totp.Options{})
	if verr != nil {
		e.log.Error().Err(verr).Str("user_id", userID).Msg("stored totp secret unreadable")
	}
	if ok {
		if err := e.claimStep(ctx, userID, step); err != nil {
			return false, err
		}
		e.metricInc(MetricTwoFactorSuccess)
		return false, nil
	}

	used, err := e.twoFactor.VerifyBackupCode(ctx, userID, code)
	if err != nil {
		return false, e.infra("backup_code", err)
	}
	if used {
		e.metricInc(MetricBackupCodeUsed)
		e.metricInc(MetricTwoFactorSuccess)
		return true, nil
	}

	e.metricInc(MetricTwoFactorFailure)
	return false, ErrInvalid2FACode
}

type rehasher interface {
	NeedsRehash(digest string) bool
}

// maybeRehash upgrades a digest produced with weaker parameters. The token
// version is left unchanged. Failures are logged only.
func (e *Engine) maybeRehash(ctx context.Context, acct *Account, password string) {
	rh, ok := e.hasher.(rehasher)
	if !ok || !rh.NeedsRehash(acct.PasswordDigest) {
		return
	}

	digest, err := e.hasher.Hash(password)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", acct.ID).Msg("password rehash failed")
		return
	}
	if err := e.credentials.PersistPasswordDigest(ctx, acct.ID, digest, acct.TokenVersion); err != nil {
		e.log.Warn().Err(err).Str("user_id", acct.ID).Msg("password rehash not persisted")
	}
}

// claimStep marks an accepted TOTP step as used when replay protection is
// on. A step that was already used yields ErrInvalid2FACode.
func (e *Engine) claimStep(ctx context.Context, userID string, step int64) error {
	if !e.config.TOTP.EnforceReplayProtection {
		return nil
	}
	fresh, err := e.twoFactor.MarkStepUsed(ctx, userID, step)
	if err != nil {
		if !e.config.TOTP.FailOpenOnLookupError {
			return e.infra("2fa_replay_mark", err)
		}
		e.log.Warn().Err(err).Str("user_id", userID).Msg("totp replay check skipped")
		return nil
	}
	if !fresh {
		e.metricInc(MetricTwoFactorReplay)
		e.metricInc(MetricTwoFactorFailure)
		return ErrInvalid2FACode
	}
	return nil
}
