package stepup

import (
	"context"
	"time"
)

// FactorType selects the second factor presented during verification.
type FactorType string

const (
	// FactorTOTP is an exported constant or variable used by the step-up engine.
	FactorTOTP FactorType = "totp"
	// FactorBackupCode is an exported constant or variable used by the step-up engine.
	FactorBackupCode FactorType = "backup"
)

// VerificationOutcome is the protocol result of [Engine.AttemptVerification].
// Outcomes are not errors: a denied or malformed attempt is normal operation
// of the state machine. Only infrastructure failures surface as errors.
type VerificationOutcome uint8

const (
	// OutcomeVerified is an exported constant or variable used by the step-up engine.
	OutcomeVerified VerificationOutcome = iota
	// OutcomeInvalidFormat is an exported constant or variable used by the step-up engine.
	OutcomeInvalidFormat
	// OutcomeInvalidCode is an exported constant or variable used by the step-up engine.
	OutcomeInvalidCode
	// OutcomeRateLimited is an exported constant or variable used by the step-up engine.
	OutcomeRateLimited
	// OutcomeChallengeExpired is an exported constant or variable used by the step-up engine.
	OutcomeChallengeExpired
)

// String returns the stable wire name of the outcome.
func (o VerificationOutcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeInvalidFormat:
		return "invalid_format"
	case OutcomeInvalidCode:
		return "invalid_code"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeChallengeExpired:
		return "challenge_expired"
	default:
		return "unknown"
	}
}

// VerificationResult is returned by [Engine.AttemptVerification].
type VerificationResult struct {
	Outcome VerificationOutcome

	// RemainingBackupCodes is populated on OutcomeVerified so the caller can
	// warn the user when recovery codes run low.
	RemainingBackupCodes int

	// DeviceToken holds the plaintext trusted-device token when the caller
	// requested device trust and verification succeeded. It is returned
	// exactly once and never persisted.
	DeviceToken string

	// Device describes the trusted-device record issued alongside DeviceToken.
	Device *DeviceView
}

// SetupResult is returned by [Engine.Setup]. The secret and backup codes are
// shown to the user exactly once; only hashes of the backup codes persist.
type SetupResult struct {
	SecretBase32    string
	ProvisioningURI string
	BackupCodes     []string
}

// Credential is the per-user two-factor record held by the [IdentityStore].
// Enabled implies a non-empty Secret. Disabling clears Secret and BackupCodes
// in a single UpdateCredential call, never independently.
type Credential struct {
	Secret      []byte
	Enabled     bool
	BackupCodes []BackupCodeRecord
}

// BackupCodeRecord stores the BLAKE2b-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// TrustedDeviceRecord is the persisted form of a trusted device. Only the
// token hash is stored; the plaintext token lives in the caller's cookie.
type TrustedDeviceRecord struct {
	ID         string
	UserID     string
	TokenHash  [32]byte
	Label      string
	LastUsedAt time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// DeviceView is the owner-facing projection of a trusted device, returned by
// [Engine.TrustedDevices]. It never includes the token hash.
type DeviceView struct {
	ID         string
	Label      string
	LastUsedAt time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// RateLimitResult is returned by [Engine.CheckRateLimit]. Limit and Remaining
// always reflect the caller's nominal limit, even while the fallback path
// enforces a stricter conservative limit internally, so response headers stay
// consistent for clients.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// IdentityStore is the interface callers must implement to integrate stepup
// with their user database. It is a generic keyed record store; this core
// does not care about the storage engine behind it.
//
// GetCredential returns (nil, nil) when the user has never provisioned
// two-factor. Any storage failure must be returned as a non-nil error; the
// engine maps it to [ErrStorageUnavailable] and never retries silently.
type IdentityStore interface {
	GetCredential(ctx context.Context, userID string) (*Credential, error)
	UpdateCredential(ctx context.Context, userID string, cred *Credential) error

	InsertTrustedDevice(ctx context.Context, record TrustedDeviceRecord) error
	ListTrustedDevices(ctx context.Context, userID string) ([]TrustedDeviceRecord, error)
	TouchTrustedDevice(ctx context.Context, userID, deviceID string, lastUsedAt time.Time) error
	DeleteTrustedDevice(ctx context.Context, userID, deviceID string) error
	DeleteAllTrustedDevices(ctx context.Context, userID string) error
}
