package security

import "time"

// Minimum Argon2id memory (KiB) recommended for interactive logins.
const recommendedArgon2Memory = 19 * 1024

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	SessionTTL            time.Duration
	VersionCacheTTL       time.Duration
	Argon2                PasswordReport
	LockoutThreshold      int
	LockoutDuration       time.Duration
	ClientThrottleActive  bool
	CodeThrottleActive    bool
	ReplayProtection      bool
	TwoFactorFailOpen     bool
	SuspiciousDetection   bool
	AsyncActivity         bool
	ActivityDropsWhenFull bool
	Warnings              []string
}

type ReportInput struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	SessionTTL         time.Duration
	VersionCacheTTL    time.Duration
	Password           PasswordReport
	MaxFailedAttempts  int
	LockoutDuration    time.Duration
	MaxFailuresPerIP   int
	MaxCodeAttempts    int
	CodeAttemptWindow  time.Duration
	ReplayProtection   bool
	TwoFactorFailOpen  bool
	SuspiciousEnabled  bool
	ActivityAsync      bool
	ActivityDropIfFull bool
}

// BuildReport summarizes input and lists settings that weaken the posture.
func BuildReport(input ReportInput) Report {
	r := Report{
		SigningAlgorithm:      input.SigningAlgorithm,
		AccessTTL:             input.AccessTTL,
		RefreshTTL:            input.RefreshTTL,
		SessionTTL:            input.SessionTTL,
		VersionCacheTTL:       input.VersionCacheTTL,
		Argon2:                input.Password,
		LockoutThreshold:      input.MaxFailedAttempts,
		LockoutDuration:       input.LockoutDuration,
		ClientThrottleActive:  input.MaxFailuresPerIP > 0,
		CodeThrottleActive:    input.MaxCodeAttempts > 0 && input.CodeAttemptWindow > 0,
		ReplayProtection:      input.ReplayProtection,
		TwoFactorFailOpen:     input.TwoFactorFailOpen,
		SuspiciousDetection:   input.SuspiciousEnabled,
		AsyncActivity:         input.ActivityAsync,
		ActivityDropsWhenFull: input.ActivityAsync && input.ActivityDropIfFull,
	}

	if input.SigningAlgorithm == "hs256" {
		r.Warnings = append(r.Warnings, "hs256 shares the signing key with every verifier")
	}
	if input.Password.Memory < recommendedArgon2Memory {
		r.Warnings = append(r.Warnings, "argon2 memory below 19 MiB")
	}
	if input.AccessTTL > time.Hour {
		r.Warnings = append(r.Warnings, "access tokens live longer than an hour")
	}
	if input.VersionCacheTTL > input.AccessTTL {
		r.Warnings = append(r.Warnings, "version cache outlives access tokens")
	}
	if input.TwoFactorFailOpen {
		r.Warnings = append(r.Warnings, "2fa lookup failures let logins through")
	}
	if !input.ReplayProtection {
		r.Warnings = append(r.Warnings, "totp codes can be replayed within their window")
	}
	if r.ActivityDropsWhenFull {
		r.Warnings = append(r.Warnings, "activity events are dropped when the buffer is full")
	}
	return r
}
