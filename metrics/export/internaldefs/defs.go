package internaldefs

import (
	stepup "github.com/Mauriceanney/shipsaas-sub000"
)

// CounterDef defines a public type used by stepup APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   stepup.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by stepup APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   stepup.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the step-up engine.
var CounterDefs = []CounterDef{
	{ID: stepup.MetricSetupStarted, Name: "stepup_setup_started_total", Help: "TOTP setup flows started."},
	{ID: stepup.MetricEnabled, Name: "stepup_enabled_total", Help: "Successful two-factor enablements."},
	{ID: stepup.MetricEnableRejected, Name: "stepup_enable_rejected_total", Help: "Enable confirmations rejected for an invalid code."},
	{ID: stepup.MetricDisabled, Name: "stepup_disabled_total", Help: "Two-factor disable operations."},
	{ID: stepup.MetricChallengeIssued, Name: "stepup_challenge_issued_total", Help: "Pending verification challenges issued."},
	{ID: stepup.MetricChallengeVerified, Name: "stepup_challenge_verified_total", Help: "Challenges resolved by a valid second factor."},
	{ID: stepup.MetricChallengeFailed, Name: "stepup_challenge_failed_total", Help: "Verification attempts with an invalid code."},
	{ID: stepup.MetricChallengeExpired, Name: "stepup_challenge_expired_total", Help: "Verification attempts against an expired challenge."},
	{ID: stepup.MetricVerifyRateLimited, Name: "stepup_verify_rate_limited_total", Help: "Verification attempts denied by rate limiting."},
	{ID: stepup.MetricTOTPSuccess, Name: "stepup_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: stepup.MetricTOTPFailure, Name: "stepup_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: stepup.MetricBackupCodeUsed, Name: "stepup_backup_code_used_total", Help: "Successful backup-code redemptions."},
	{ID: stepup.MetricBackupCodeFailed, Name: "stepup_backup_code_failed_total", Help: "Failed backup-code attempts."},
	{ID: stepup.MetricBackupCodeRegenerated, Name: "stepup_backup_code_regenerated_total", Help: "Backup-code regeneration operations."},
	{ID: stepup.MetricDeviceTrusted, Name: "stepup_device_trusted_total", Help: "Trusted-device tokens issued."},
	{ID: stepup.MetricDeviceBypass, Name: "stepup_device_bypass_total", Help: "Challenge bypasses granted to trusted devices."},
	{ID: stepup.MetricDeviceRevoked, Name: "stepup_device_revoked_total", Help: "Trusted-device revocations."},
	{ID: stepup.MetricRateLimitDenied, Name: "stepup_rate_limit_denied_total", Help: "Rate-limit checks that denied requests."},
	{ID: stepup.MetricRateLimitFallback, Name: "stepup_rate_limit_fallback_total", Help: "Rate-limit checks served by the in-process fallback."},
	{ID: stepup.MetricBreakerOpened, Name: "stepup_breaker_opened_total", Help: "Rate-limit circuit breaker open transitions."},
	{ID: stepup.MetricBreakerClosed, Name: "stepup_breaker_closed_total", Help: "Rate-limit circuit breaker close transitions."},
}

// HistogramDefs is an exported constant or variable used by the step-up engine.
var HistogramDefs = []HistogramDef{
	{ID: stepup.MetricVerifyLatency, Name: "stepup_verify_latency_seconds", Help: "Verification latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the step-up engine.
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

// HistogramBoundSuffix is an exported constant or variable used by the step-up engine.
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

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
