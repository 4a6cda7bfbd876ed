package lmsauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/lmsauth/internal/audit"
)

// Activity event types, re-exported for ActivityLogger implementations.
const (
	EventLogin              = audit.TypeLogin
	EventLogout             = audit.TypeLogout
	EventLogoutAll          = audit.TypeLogoutAll
	EventPasswordChange     = audit.TypePasswordChange
	EventTokenRefresh       = audit.TypeTokenRefresh
	EventSuspiciousActivity = audit.TypeSuspiciousActivity
	EventTwoFactorEnabled   = audit.TypeTwoFactorEnabled
	EventTwoFactorDisabled  = audit.TypeTwoFactorDisabled
	EventBackupCodesRenewed = audit.TypeBackupCodesRenewed
	EventSessionRevoked     = audit.TypeSessionRevoked
	EventAccountUnlocked    = audit.TypeAccountUnlocked
)

type activity struct {
	eventType string
	userID    string
	identity  string
	sessionID string
	err       error
	reason    string
	metadata  map[string]string
}

func (e *Engine) emit(ctx context.Context, a activity) {
	if e == nil || e.audit == nil {
		return
	}

	meta := metaFromContext(ctx)
	event := audit.Event{
		Timestamp: e.now().UTC(),
		Type:      a.eventType,
		Status:    audit.StatusSuccess,
		UserID:    a.userID,
		Identity:  a.identity,
		SessionID: a.sessionID,
		IPAddress: meta.ip,
		UserAgent: meta.userAgent,
		Reason:    a.reason,
		Metadata:  a.metadata,
	}
	if a.err != nil {
		event.Status = audit.StatusFailure
		if event.Reason == "" {
			event.Reason = activityReason(a.err)
		}
	}

	e.audit.Emit(ctx, event)
}

func activityReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrTwoFactorRequired):
		return "2fa_required"
	case errors.Is(err, ErrInvalid2FACode):
		return "invalid_2fa_code"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrPasswordReuse):
		return "password_reuse"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, ErrInfrastructure):
		return "backend_unavailable"
	default:
		return "internal_error"
	}
}
