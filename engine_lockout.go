package lmsauth

import (
	"context"
	"strings"
)

// Unlock clears the failure counter and any active lock of identity.
func (e *Engine) Unlock(ctx context.Context, identity string) error {
	if err := e.ready(); err != nil {
		return err
	}
	identity = strings.TrimSpace(identity)

	if err := e.lockout.Reset(ctx, identity); err != nil {
		return e.infra("lockout_reset", err)
	}
	e.emit(ctx, activity{eventType: EventAccountUnlocked, identity: identity})
	return nil
}

// LockoutStatus reports the failure counter of identity. An expired lock is
// reported as unlocked with zero attempts.
func (e *Engine) LockoutStatus(ctx context.Context, identity string) (LockoutStatus, error) {
	if err := e.ready(); err != nil {
		return LockoutStatus{}, err
	}
	identity = strings.TrimSpace(identity)

	info, err := e.lockout.Info(ctx, identity)
	if err != nil {
		return LockoutStatus{}, e.infra("lockout_info", err)
	}

	out := LockoutStatus{
		Identity:    identity,
		Attempts:    info.Attempts,
		LockedUntil: info.LockedUntil,
		Locked:      !info.LockedUntil.IsZero(),
	}
	if !out.Locked {
		out.RemainingAttempts = e.lockout.Threshold() - info.Attempts
		if out.RemainingAttempts < 0 {
			out.RemainingAttempts = 0
		}
	}
	return out, nil
}
