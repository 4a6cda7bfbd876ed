package lmsauth

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/lmsauth/session"
)

// Logout invalidates one session. Other sessions and the token version are
// untouched, so only tokens bound to this session stop validating. Logging
// out an unknown or already closed session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	var userID string
	if rec, err := e.sessions.Get(ctx, sessionID); err == nil {
		userID = rec.UserID
	}

	flipped, err := e.sessions.Invalidate(ctx, sessionID)
	if err != nil {
		return e.infra("invalidate_session", err)
	}
	if flipped {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
		e.emit(ctx, activity{eventType: EventLogout, userID: userID, sessionID: sessionID})
	}
	return nil
}

// LogoutAll invalidates every session of userID and bumps the token version,
// revoking all outstanding tokens. It returns the number of sessions closed.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}

	n, err := e.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		return 0, e.infra("invalidate_all_sessions", err)
	}

	if _, err := e.ledger.Bump(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return n, ErrNotFound
		}
		return n, e.infra("bump_token_version", err)
	}

	e.metricInc(MetricLogoutAll)
	for i := 0; i < n; i++ {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emit(ctx, activity{
		eventType: EventLogoutAll,
		userID:    userID,
		metadata:  map[string]string{"sessions": strconv.Itoa(n)},
	})
	return n, nil
}

// ListSessions returns the user's active sessions, oldest login first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	records, err := e.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, e.infra("list_sessions", err)
	}

	out := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, toSessionInfo(rec))
	}
	return out, nil
}

// RevokeSession closes one of userID's sessions, typically from a "signed in
// devices" page. A session owned by someone else is reported as ErrNotFound.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	rec, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrNotFound
		}
		return e.infra("get_session", err)
	}
	if rec.UserID != userID || !rec.Active {
		return ErrNotFound
	}

	flipped, err := e.sessions.Invalidate(ctx, sessionID)
	if err != nil {
		return e.infra("invalidate_session", err)
	}
	if flipped {
		e.metricInc(MetricSessionInvalidated)
		e.emit(ctx, activity{eventType: EventSessionRevoked, userID: userID, sessionID: sessionID})
	}
	return nil
}

// TouchSession records activity on a session and extends its lifetime.
// Unknown sessions are ignored.
func (e *Engine) TouchSession(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.sessions.UpdateActivity(ctx, sessionID); err != nil {
		return e.infra("touch_session", err)
	}
	return nil
}
