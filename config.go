package stepup

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by stepup APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	TOTP          TOTPConfig
	BackupCodes   BackupCodeConfig
	TrustedDevice TrustedDeviceConfig
	Challenge     ChallengeConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig holds the versionable code-derivation triple (Digits, Period,
// Algorithm) plus the accepted clock-drift window. The triple is fixed per
// deployment; alternate parameter sets are supported by constructing a new
// engine, never by mixing parameters at verification time.
type TOTPConfig struct {
	Issuer    string
	Digits    int    // code length, default 6
	Period    int    // step length in seconds, default 30
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"

	// Skew is the number of adjacent time steps accepted in each direction
	// to tolerate clock drift. Default 1 (one step before and after now).
	Skew int
}

// BackupCodeConfig defines a public type used by stepup APIs.
//
// BackupCodeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BackupCodeConfig struct {
	Count  int // codes per batch, default 10
	Length int // hex characters per code, default 10
}

// TrustedDeviceConfig defines a public type used by stepup APIs.
//
// TrustedDeviceConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TrustedDeviceConfig struct {
	TTL time.Duration // device exemption lifetime, default 30 days
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig defines a public type used by stepup APIs.
//
// ChallengeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ChallengeConfig struct {
	// TTL bounds the window between primary-credential success and second
	// factor verification. Default 5 minutes.
	TTL time.Duration

	// SigningKey is the HMAC key for pending-challenge tokens. When empty,
	// Build generates a random per-process key; tokens then do not survive
	// restarts and are not portable across instances.
	SigningKey []byte

	RedisPrefix string // default "suc"

	// AttemptLimit and AttemptWindow bound verification attempts per caller
	// IP in the two-factor-attempt namespace. Defaults: 5 per minute.
	AttemptLimit  int
	AttemptWindow time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// FailMode decides the answer when both the shared counter store and the
// in-process fallback are unable to evaluate a check.
type FailMode uint8

const (
	// FailClosed is an exported constant or variable used by the step-up engine.
	FailClosed FailMode = iota
	// FailOpen is an exported constant or variable used by the step-up engine.
	FailOpen
)

// RateLimitConfig defines a public type used by stepup APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	RedisPrefix string // default "rl"

	// OpTimeout bounds each shared-store round trip. An elapsed timeout is a
	// shared-store failure and feeds the circuit breaker. Default 2s.
	OpTimeout time.Duration

	// FailureThreshold consecutive shared-store failures open the breaker.
	// Default 3.
	FailureThreshold int

	// RetryTimeout is how long the breaker stays open before the next call
	// is allowed to probe the shared store again. Production default 30s;
	// tests shrink this.
	RetryTimeout time.Duration

	FallbackMaxEntries    int           // default 10000
	FallbackSweepInterval time.Duration // default 60s
	FallbackIdleEviction  time.Duration // default 1h

	// DefaultFailMode applies to namespaces without an explicit entry in
	// FailModes. FailClosed is the default: authentication-sensitive
	// namespaces deny when nothing can be evaluated.
	DefaultFailMode FailMode
	FailModes       map[string]FailMode
}

// AuditConfig defines a public type used by stepup APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by stepup APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production preset: 6-digit SHA1 codes on a
// 30-second step with one step of drift tolerance, ten 10-character backup
// codes, 30-day device trust, a 5-minute challenge window, and fail-closed
// rate limiting. Callers must still set TOTP.Issuer before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		BackupCodes: BackupCodeConfig{
			Count:  10,
			Length: 10,
		},
		TrustedDevice: TrustedDeviceConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Challenge: ChallengeConfig{
			TTL:           5 * time.Minute,
			RedisPrefix:   "suc",
			AttemptLimit:  5,
			AttemptWindow: time.Minute,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix:           "rl",
			OpTimeout:             2 * time.Second,
			FailureThreshold:      3,
			RetryTimeout:          30 * time.Second,
			FallbackMaxEntries:    10000,
			FallbackSweepInterval: 60 * time.Second,
			FallbackIdleEviction:  time.Hour,
			DefaultFailMode:       FailClosed,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Challenge.SigningKey = cloneBytes(cfg.Challenge.SigningKey)
	if cfg.RateLimit.FailModes != nil {
		out.RateLimit.FailModes = make(map[string]FailMode, len(cfg.RateLimit.FailModes))
		for ns, mode := range cfg.RateLimit.FailModes {
			out.RateLimit.FailModes[ns] = mode
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return errors.New("TOTP Digits must be between 6 and 10")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be positive")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 4 {
		return errors.New("TOTP Skew must be between 0 and 4")
	}

	if c.BackupCodes.Count <= 0 {
		return errors.New("BackupCodes Count must be positive")
	}
	if c.BackupCodes.Length < 8 || c.BackupCodes.Length%2 != 0 {
		return errors.New("BackupCodes Length must be an even number of at least 8 hex characters")
	}

	if c.TrustedDevice.TTL <= 0 {
		return errors.New("TrustedDevice TTL must be positive")
	}

	if c.Challenge.TTL <= 0 {
		return errors.New("Challenge TTL must be positive")
	}
	if len(c.Challenge.SigningKey) > 0 && len(c.Challenge.SigningKey) < 32 {
		return errors.New("Challenge SigningKey must be at least 32 bytes when provided")
	}
	if c.Challenge.AttemptLimit <= 0 {
		return errors.New("Challenge AttemptLimit must be positive")
	}
	if c.Challenge.AttemptWindow <= 0 {
		return errors.New("Challenge AttemptWindow must be positive")
	}

	if c.RateLimit.OpTimeout <= 0 {
		return errors.New("RateLimit OpTimeout must be positive")
	}
	if c.RateLimit.FailureThreshold <= 0 {
		return errors.New("RateLimit FailureThreshold must be positive")
	}
	if c.RateLimit.RetryTimeout <= 0 {
		return errors.New("RateLimit RetryTimeout must be positive")
	}
	if c.RateLimit.FallbackMaxEntries <= 0 {
		return errors.New("RateLimit FallbackMaxEntries must be positive")
	}
	if c.RateLimit.FallbackSweepInterval <= 0 {
		return errors.New("RateLimit FallbackSweepInterval must be positive")
	}
	if c.RateLimit.FallbackIdleEviction <= 0 {
		return errors.New("RateLimit FallbackIdleEviction must be positive")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be positive when audit is enabled")
	}

	return nil
}
