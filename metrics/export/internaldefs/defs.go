package internaldefs

import (
	"github.com/MrEthical07/lmsauth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   lmsauth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   lmsauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: lmsauth.MetricLoginSuccess, Name: "lmsauth_login_success_total", Help: "Successful logins."},
	{ID: lmsauth.MetricLoginFailure, Name: "lmsauth_login_failure_total", Help: "Logins rejected for an unknown identity or wrong password."},
	{ID: lmsauth.MetricLoginLocked, Name: "lmsauth_login_locked_total", Help: "Logins rejected because the identity was locked."},
	{ID: lmsauth.MetricLoginInactive, Name: "lmsauth_login_inactive_total", Help: "Logins rejected because the account was inactive."},
	{ID: lmsauth.MetricAccountLocked, Name: "lmsauth_account_locked_total", Help: "Identities locked after repeated failures."},
	{ID: lmsauth.MetricTwoFactorRequired, Name: "lmsauth_twofactor_required_total", Help: "Logins that stopped at the second factor."},
	{ID: lmsauth.MetricTwoFactorSuccess, Name: "lmsauth_twofactor_success_total", Help: "Accepted second factors."},
	{ID: lmsauth.MetricTwoFactorFailure, Name: "lmsauth_twofactor_failure_total", Help: "Rejected second factors."},
	{ID: lmsauth.MetricTwoFactorReplay, Name: "lmsauth_twofactor_replay_total", Help: "TOTP codes rejected as replays."},
	{ID: lmsauth.MetricBackupCodeUsed, Name: "lmsauth_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: lmsauth.MetricBackupCodeRegenerated, Name: "lmsauth_backup_code_regenerated_total", Help: "Backup code set regenerations."},
	{ID: lmsauth.MetricTwoFactorEnabled, Name: "lmsauth_twofactor_enabled_total", Help: "Two-factor enrollments confirmed."},
	{ID: lmsauth.MetricTwoFactorDisabled, Name: "lmsauth_twofactor_disabled_total", Help: "Two-factor enrollments removed."},
	{ID: lmsauth.MetricSuspiciousLogin, Name: "lmsauth_suspicious_login_total", Help: "Logins flagged by the session heuristic."},
	{ID: lmsauth.MetricSessionCreated, Name: "lmsauth_session_created_total", Help: "Created sessions."},
	{ID: lmsauth.MetricSessionInvalidated, Name: "lmsauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: lmsauth.MetricLogout, Name: "lmsauth_logout_total", Help: "Single-session logouts."},
	{ID: lmsauth.MetricLogoutAll, Name: "lmsauth_logout_all_total", Help: "Logout-all operations."},
	{ID: lmsauth.MetricRefreshSuccess, Name: "lmsauth_refresh_success_total", Help: "Successful refreshes."},
	{ID: lmsauth.MetricRefreshFailure, Name: "lmsauth_refresh_failure_total", Help: "Failed refreshes."},
	{ID: lmsauth.MetricTokenRevoked, Name: "lmsauth_token_revoked_total", Help: "Tokens rejected as revoked."},
	{ID: lmsauth.MetricPasswordChangeSuccess, Name: "lmsauth_password_change_success_total", Help: "Successful password changes."},
	{ID: lmsauth.MetricPasswordChangeInvalidOld, Name: "lmsauth_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: lmsauth.MetricPasswordChangeReuseRejected, Name: "lmsauth_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: lmsauth.MetricTwoFactorThrottled, Name: "lmsauth_twofactor_throttled_total", Help: "Second-factor attempts refused after too many wrong codes."},
	{ID: lmsauth.MetricLoginThrottled, Name: "lmsauth_login_throttled_total", Help: "Logins refused because the client address failed too often."},
	{ID: lmsauth.MetricLockoutFailOpen, Name: "lmsauth_lockout_fail_open_total", Help: "Lockout store failures that let a login proceed."},
	{ID: lmsauth.MetricInfrastructureError, Name: "lmsauth_infrastructure_error_total", Help: "Operations failed by an unreachable backend."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: lmsauth.MetricValidateLatency, Name: "lmsauth_validate_latency_seconds", Help: "Validate latency histogram."},
	{ID: lmsauth.MetricLoginLatency, Name: "lmsauth_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramBounds are the upper bounds of the engine buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket for exporters without labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName is the counter for activity events dropped under
// backpressure.
const AuditDroppedName = "lmsauth_audit_dropped_total"

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
