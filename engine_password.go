package lmsauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/lmsauth/password"
)

// ChangePassword verifies current, stores the digest of next together with
// an incremented token version, and closes every session of the user. All
// previously issued tokens stop validating.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(current, acct.PasswordDigest)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", userID).Msg("stored password digest unreadable")
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emit(ctx, activity{eventType: EventPasswordChange, userID: userID, err: ErrInvalidCredentials})
		return ErrInvalidCredentials
	}

	if current == next {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emit(ctx, activity{eventType: EventPasswordChange, userID: userID, err: ErrPasswordReuse})
		return ErrPasswordReuse
	}

	digest, err := e.hasher.Hash(next)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			err = fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
			e.emit(ctx, activity{eventType: EventPasswordChange, userID: userID, err: err})
			return err
		}
		return fmt.Errorf("hash password: %w", err)
	}

	if err := e.credentials.PersistPasswordDigest(ctx, userID, digest, acct.TokenVersion+1); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return e.infra("persist_password", err)
	}
	e.ledger.Publish(ctx, userID, acct.TokenVersion+1)

	// The version bump already revokes every token; closing the sessions
	// keeps ListSessions accurate.
	n, err := e.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("sessions not closed after password change")
	}
	for i := 0; i < n; i++ {
		e.metricInc(MetricSessionInvalidated)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emit(ctx, activity{eventType: EventPasswordChange, userID: userID})
	return nil
}
