package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func hardened() ReportInput {
	return ReportInput{
		SigningAlgorithm:  "ed25519",
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        7 * 24 * time.Hour,
		SessionTTL:        24 * time.Hour,
		VersionCacheTTL:   time.Minute,
		Password:          PasswordReport{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32},
		MaxFailedAttempts: 5,
		LockoutDuration:   30 * time.Minute,
		MaxCodeAttempts:   5,
		CodeAttemptWindow: 5 * time.Minute,
		ReplayProtection:  true,
		SuspiciousEnabled: true,
	}
}

func TestHardenedConfigHasNoWarnings(t *testing.T) {
	r := BuildReport(hardened())
	require.Empty(t, r.Warnings)
	require.True(t, r.CodeThrottleActive)
	require.False(t, r.ClientThrottleActive)
	require.Equal(t, uint32(64*1024), r.Argon2.Memory)
}

func TestWeakSettingsAreFlagged(t *testing.T) {
	in := hardened()
	in.SigningAlgorithm = "hs256"
	in.Password.Memory = 8 * 1024
	in.TwoFactorFailOpen = true
	in.ReplayProtection = false
	in.ActivityAsync = true
	in.ActivityDropIfFull = true
	in.MaxFailuresPerIP = 20

	r := BuildReport(in)
	require.True(t, r.ClientThrottleActive)
	require.True(t, r.ActivityDropsWhenFull)
	require.Equal(t, []string{
		"hs256 shares the signing key with every verifier",
		"argon2 memory below 19 MiB",
		"2fa lookup failures let logins through",
		"totp codes can be replayed within their window",
		"activity events are dropped when the buffer is full",
	}, r.Warnings)
}

func TestLongLivedTokensFlagged(t *testing.T) {
	in := hardened()
	in.AccessTTL = 2 * time.Hour
	in.VersionCacheTTL = 3 * time.Hour

	r := BuildReport(in)
	require.Equal(t, []string{
		"access tokens live longer than an hour",
		"version cache outlives access tokens",
	}, r.Warnings)
}
