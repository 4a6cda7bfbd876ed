package lmsauth

import "github.com/MrEthical07/lmsauth/internal/security"

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: e.config.Token.SigningMethod,
		AccessTTL:        e.config.Token.AccessTTL,
		RefreshTTL:       e.config.Token.RefreshTTL,
		SessionTTL:       e.config.Session.TTL,
		VersionCacheTTL:  e.config.Token.VersionCacheTTL,
		Password: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		MaxFailedAttempts:  e.config.Lockout.MaxFailedAttempts,
		LockoutDuration:    e.config.Lockout.Duration,
		MaxFailuresPerIP:   e.config.Lockout.MaxFailuresPerIP,
		MaxCodeAttempts:    e.config.TOTP.MaxCodeAttempts,
		CodeAttemptWindow:  e.config.TOTP.CodeAttemptWindow,
		ReplayProtection:   e.config.TOTP.EnforceReplayProtection,
		TwoFactorFailOpen:  e.config.TOTP.FailOpenOnLookupError,
		SuspiciousEnabled:  e.config.Suspicious.Enabled,
		ActivityAsync:      e.config.Activity.Async,
		ActivityDropIfFull: e.config.Activity.DropIfFull,
	})
}
