package lmsauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/lmsauth/internal/twofactor"
	"github.com/MrEthical07/lmsauth/totp"
)

// BeginTwoFactorEnrollment generates a secret and keeps it pending for
// TOTP.EnrollmentTTL. Two-factor is not enforced until the user proves
// possession with ConfirmTwoFactorEnrollment. Calling it again replaces the
// pending secret.
func (e *Engine) BeginTwoFactorEnrollment(ctx context.Context, userID string) (*TwoFactorEnrollment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acct, err := e.loadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	lookup := e.twoFactor.Lookup(ctx, userID)
	if lookup.Err != nil {
		return nil, e.infra("2fa_lookup", lookup.Err)
	}
	if lookup.Found {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, err := totp.GenerateSecret(e.random, totp.DefaultSecretLength)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	if err := e.twoFactor.SavePending(ctx, userID, secret); err != nil {
		return nil, e.infra("2fa_save_pending", err)
	}

	account := acct.Identity
	if account == "" {
		account = acct.ID
	}

	return &TwoFactorEnrollment{
		Secret:          secret,
		ProvisioningURI: totp.ProvisioningURI(e.config.TOTP.Issuer, account, secret),
		ExpiresAt:       e.now().Add(e.config.TOTP.EnrollmentTTL),
	}, nil
}

// ConfirmTwoFactorEnrollment enables two-factor when code matches the pending
// secret and returns the backup codes. The codes are stored hashed and are
// shown only here.
func (e *Engine) ConfirmTwoFactorEnrollment(ctx context.Context, userID, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	secret, err := e.twoFactor.LoadPending(ctx, userID)
	if err != nil {
		if errors.Is(err, twofactor.ErrNoPendingEnrollment) {
			return nil, ErrTwoFactorNotEnrolled
		}
		return nil, e.infra("2fa_load_pending", err)
	}

	if err := e.checkCodeBudget(ctx, userID); err != nil {
		return nil, err
	}
	ok, step, err := totp.VerifyCustom(secret, strings.TrimSpace(code), e.now(), e.config.TOTP.Window, totp.Options{})
	if err != nil {
		return nil, fmt.Errorf("verify totp: %w", err)
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		e.settleCodeAttempt(ctx, userID, ErrInvalid2FACode)
		return nil, ErrInvalid2FACode
	}
	// The confirming code must not open a login in the same step.
	if err := e.claimStep(ctx, userID, step); err != nil {
		e.settleCodeAttempt(ctx, userID, err)
		return nil, err
	}
	e.settleCodeAttempt(ctx, userID, nil)

	codes, err := totp.GenerateBackupCodes(e.random, e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	if err := e.twoFactor.Enable(ctx, userID, secret, codes); err != nil {
		return nil, e.infra("2fa_enable", err)
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emit(ctx, activity{eventType: EventTwoFactorEnabled, userID: userID})
	return codes, nil
}

// CancelTwoFactorEnrollment drops a pending enrollment. It is a no-op when
// none is pending.
func (e *Engine) CancelTwoFactorEnrollment(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.twoFactor.ClearPending(ctx, userID); err != nil {
		return e.infra("2fa_clear_pending", err)
	}
	return nil
}

// DisableTwoFactor removes the secret and every backup code. code must be a
// current TOTP code or an unused backup code.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	secret, err := e.enrolledSecret(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := e.verifySecondFactor(ctx, userID, secret, code); err != nil {
		e.emit(ctx, activity{eventType: EventTwoFactorDisabled, userID: userID, err: err})
		return err
	}

	if err := e.twoFactor.Disable(ctx, userID); err != nil {
		return e.infra("2fa_disable", err)
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.emit(ctx, activity{eventType: EventTwoFactorDisabled, userID: userID})
	return nil
}

// RegenerateBackupCodes replaces every backup code with a fresh set. code
// must be a current TOTP code or an unused backup code.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	secret, err := e.enrolledSecret(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := e.verifySecondFactor(ctx, userID, secret, code); err != nil {
		return nil, err
	}

	codes, err := totp.GenerateBackupCodes(e.random, e.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	if err := e.twoFactor.ReplaceBackupCodes(ctx, userID, codes); err != nil {
		return nil, e.infra("2fa_replace_backup_codes", err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emit(ctx, activity{eventType: EventBackupCodesRenewed, userID: userID})
	return codes, nil
}

// TwoFactorStatus reports whether two-factor is enabled and how many backup
// codes remain.
func (e *Engine) TwoFactorStatus(ctx context.Context, userID string) (TwoFactorStatus, error) {
	if err := e.ready(); err != nil {
		return TwoFactorStatus{}, err
	}

	lookup := e.twoFactor.Lookup(ctx, userID)
	if lookup.Err != nil {
		return TwoFactorStatus{}, e.infra("2fa_lookup", lookup.Err)
	}
	if !lookup.Found {
		return TwoFactorStatus{}, nil
	}

	remaining, err := e.twoFactor.RemainingBackupCodes(ctx, userID)
	if err != nil {
		return TwoFactorStatus{}, e.infra("2fa_backup_count", err)
	}
	return TwoFactorStatus{Enabled: true, RemainingBackupCodes: remaining}, nil
}

func (e *Engine) enrolledSecret(ctx context.Context, userID string) (string, error) {
	lookup := e.twoFactor.Lookup(ctx, userID)
	if lookup.Err != nil {
		return "", e.infra("2fa_lookup", lookup.Err)
	}
	if !lookup.Found {
		return "", ErrTwoFactorNotEnrolled
	}
	return lookup.Secret, nil
}
