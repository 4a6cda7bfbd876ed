package lmsauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/session"
)

// Validate verifies an access token and returns its claims. A token whose
// version is behind the user's current version, or whose session is no
// longer active, returns ErrTokenRevoked even before it expires.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if err := e.checkLive(ctx, claims); err != nil {
		return nil, err
	}

	out := &Claims{
		UserID:       claims.UID,
		SessionID:    claims.SID,
		TokenVersion: claims.Version,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Refresh exchanges a refresh token for a new pair bound to the same session
// and records activity on that session.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if err := e.checkLive(ctx, claims); err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emit(ctx, activity{eventType: EventTokenRefresh, userID: claims.UID, sessionID: claims.SID, err: err})
		return nil, err
	}

	if err := e.sessions.UpdateActivity(ctx, claims.SID); err != nil {
		e.log.Warn().Err(err).Str("session_id", claims.SID).Msg("session activity not recorded")
	}

	pair, err := e.tokens.MintPair(claims.UID, claims.SID, claims.Version)
	if err != nil {
		return nil, e.infra("mint_tokens", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emit(ctx, activity{eventType: EventTokenRefresh, userID: claims.UID, sessionID: claims.SID})

	return &TokenPair{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// checkLive compares the carried version with the ledger and requires the
// bound session to be active and owned by the token subject.
func (e *Engine) checkLive(ctx context.Context, claims *jwt.Claims) error {
	current, err := e.ledger.Current(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricTokenRevoked)
			return ErrTokenRevoked
		}
		return e.infra("token_version", err)
	}
	if claims.Version != current {
		e.metricInc(MetricTokenRevoked)
		return ErrTokenRevoked
	}

	rec, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricTokenRevoked)
			return ErrTokenRevoked
		}
		return e.infra("get_session", err)
	}
	if !rec.Active || rec.UserID != claims.UID {
		e.metricInc(MetricTokenRevoked)
		return ErrTokenRevoked
	}
	return nil
}
