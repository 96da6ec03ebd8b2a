package stepup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Setup describes the setup operation and its observable behavior.
//
// Setup provisions a fresh shared secret and backup-code batch for the user
// without enabling two-factor. The secret, provisioning URI, and plaintext
// backup codes are returned exactly once; only hashes persist. Calling Setup
// again before ConfirmEnable replaces the pending secret. Returns
// [ErrAlreadyEnabled] once the credential is active.
func (e *Engine) Setup(ctx context.Context, userID string) (*SetupResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	cred, err := e.identity.GetCredential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if cred != nil && cred.Enabled {
		return nil, ErrAlreadyEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	codes, err := generateBackupCodes(e.config.BackupCodes.Count, e.config.BackupCodes.Length)
	if err != nil {
		return nil, err
	}

	next := &Credential{
		Secret:      secret,
		Enabled:     false,
		BackupCodes: hashBackupCodes(userID, codes, e.config.BackupCodes.Length),
	}
	if err := e.identity.UpdateCredential(ctx, userID, next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	e.metricInc(MetricSetupStarted)
	e.emitAudit(ctx, AuditSetupStarted, userID, true, "", "", nil)

	return &SetupResult{
		SecretBase32:    secretBase32,
		ProvisioningURI: e.totp.ProvisionURI(secretBase32, userID),
		BackupCodes:     codes,
	}, nil
}

// ConfirmEnable describes the confirmenable operation and its observable behavior.
//
// ConfirmEnable verifies a fresh time-based code against the pending secret
// and flips the credential to enabled. A wrong code returns [ErrInvalidCode]
// and leaves the credential disabled.
func (e *Engine) ConfirmEnable(ctx context.Context, userID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	cred, err := e.identity.GetCredential(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if cred == nil || len(cred.Secret) == 0 {
		return ErrNotProvisioned
	}
	if cred.Enabled {
		return ErrAlreadyEnabled
	}

	ok, err := e.totp.VerifyCode(cred.Secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricEnableRejected)
		e.emitAudit(ctx, AuditEnableRejected, userID, false, FactorTOTP, ErrInvalidCode.Error(), nil)
		return ErrInvalidCode
	}

	cred.Enabled = true
	if err := e.identity.UpdateCredential(ctx, userID, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	e.metricInc(MetricEnabled)
	e.emitAudit(ctx, AuditEnabled, userID, true, FactorTOTP, "", nil)
	return nil
}

// Disable describes the disable operation and its observable behavior.
//
// Disable re-verifies current possession of the secret with a fresh code and
// then clears the secret and backup codes in a single credential update.
func (e *Engine) Disable(ctx context.Context, userID, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	cred, err := e.identity.GetCredential(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if cred == nil || !cred.Enabled {
		return ErrNotEnabled
	}

	ok, err := e.totp.VerifyCode(cred.Secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, AuditDisabled, userID, false, FactorTOTP, ErrInvalidCode.Error(), nil)
		return ErrInvalidCode
	}

	// Secret and backup codes go together, never independently.
	cleared := &Credential{}
	if err := e.identity.UpdateCredential(ctx, userID, cleared); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	e.metricInc(MetricDisabled)
	e.emitAudit(ctx, AuditDisabled, userID, true, FactorTOTP, "", nil)
	return nil
}

// RegenerateBackupCodes describes the regeneratebackupcodes operation and its observable behavior.
//
// RegenerateBackupCodes replaces the stored batch after a fresh time-based
// code check and returns the new plaintext codes exactly once. Previously
// issued codes stop working immediately.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	cred, err := e.identity.GetCredential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if cred == nil || !cred.Enabled {
		return nil, ErrNotEnabled
	}

	ok, err := e.totp.VerifyCode(cred.Secret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	codes, err := generateBackupCodes(e.config.BackupCodes.Count, e.config.BackupCodes.Length)
	if err != nil {
		return nil, err
	}

	cred.BackupCodes = hashBackupCodes(userID, codes, e.config.BackupCodes.Length)
	if err := e.identity.UpdateCredential(ctx, userID, cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, AuditBackupRegenerated, userID, true, FactorTOTP, "", nil)
	return codes, nil
}

// IssueChallenge describes the issuechallenge operation and its observable behavior.
//
// IssueChallenge opens a pending verification for the user immediately after
// primary-credential success and returns the signed transport token. Any
// prior pending challenge for the user is invalidated.
func (e *Engine) IssueChallenge(ctx context.Context, userID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	cred, err := e.identity.GetCredential(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if cred == nil || !cred.Enabled {
		return "", ErrNotEnabled
	}

	token, err := e.challenges.Issue(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, AuditChallengeIssued, userID, true, "", "", nil)
	return token, nil
}

// AttemptVerification describes the attemptverification operation and its observable behavior.
//
// AttemptVerification resolves the pending token, applies the
// two-factor-attempt rate limit keyed by the caller IP from ctx, validates
// the code shape for the factor, and dispatches to the code engine or the
// backup-code vault. Protocol failures are outcomes, not errors: a denied,
// malformed, wrong, or expired attempt returns a result with the matching
// [VerificationOutcome] and a nil error. Only infrastructure failures
// (identity store, challenge backend) return an error.
//
// On success the pending challenge is cleared and, when trustDevice is set,
// a trusted-device token is issued and returned alongside the result. A
// failed attempt leaves the challenge valid for retries within the rate
// limit and the challenge TTL.
func (e *Engine) AttemptVerification(ctx context.Context, pendingToken, code string, factor FactorType, trustDevice bool, deviceLabel string) (*VerificationResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeVerifyLatency(start)

	userID, challengeID, err := e.challenges.Resolve(ctx, pendingToken)
	if err != nil {
		if errors.Is(err, errChallengeExpired) || errors.Is(err, errChallengeNotFound) {
			e.metricInc(MetricChallengeExpired)
			e.emitAudit(ctx, AuditChallengeExpired, "", false, factor, ErrChallengeExpired.Error(), nil)
			return &VerificationResult{Outcome: OutcomeChallengeExpired}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}

	identifier := clientIPFromContext(ctx)
	if identifier == "" {
		identifier = userID
	}
	rl := e.limiter.Check(ctx, NamespaceTwoFactorAttempt, identifier, e.config.Challenge.AttemptLimit, e.config.Challenge.AttemptWindow)
	if !rl.Allowed {
		e.metricInc(MetricVerifyRateLimited)
		e.emitAudit(ctx, AuditRateLimited, userID, false, factor, ErrRateLimited.Error(), nil)
		return &VerificationResult{Outcome: OutcomeRateLimited}, nil
	}

	if !e.wellFormed(factor, code) {
		e.metricInc(MetricChallengeFailed)
		e.emitAudit(ctx, AuditChallengeFailed, userID, false, factor, ErrInvalidFormat.Error(), nil)
		return &VerificationResult{Outcome: OutcomeInvalidFormat}, nil
	}

	cred, err := e.identity.GetCredential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if cred == nil || !cred.Enabled {
		// A challenge should not outlive the credential, but a disable can
		// race an open challenge. Answer like a wrong code so the endpoint
		// never reveals enablement state.
		e.metricInc(MetricChallengeFailed)
		e.emitAudit(ctx, AuditChallengeFailed, userID, false, factor, ErrInvalidCode.Error(), nil)
		return &VerificationResult{Outcome: OutcomeInvalidCode}, nil
	}

	var remaining int
	switch factor {
	case FactorBackupCode:
		index, found := redeemBackupCode(userID, code, e.config.BackupCodes.Length, cred.BackupCodes)
		if !found {
			e.metricInc(MetricBackupCodeFailed)
			e.metricInc(MetricChallengeFailed)
			e.emitAudit(ctx, AuditChallengeFailed, userID, false, factor, ErrInvalidCode.Error(), nil)
			return &VerificationResult{Outcome: OutcomeInvalidCode}, nil
		}
		cred.BackupCodes = removeBackupCode(cred.BackupCodes, index)
		if err := e.identity.UpdateCredential(ctx, userID, cred); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		remaining = len(cred.BackupCodes)
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, AuditBackupCodeUsed, userID, true, factor, "", map[string]string{"remaining": strconv.Itoa(remaining)})

	default:
		ok, err := e.totp.VerifyCode(cred.Secret, code, time.Now())
		if err != nil {
			return nil, err
		}
		if !ok {
			e.metricInc(MetricTOTPFailure)
			e.metricInc(MetricChallengeFailed)
			e.emitAudit(ctx, AuditChallengeFailed, userID, false, factor, ErrInvalidCode.Error(), nil)
			return &VerificationResult{Outcome: OutcomeInvalidCode}, nil
		}
		remaining = len(cred.BackupCodes)
		e.metricInc(MetricTOTPSuccess)
	}

	// Terminal success. A failed clear is tolerable: the challenge dies by
	// TTL and a replayed token cannot mint a second success audit trail
	// cheaper than a fresh code.
	if err := e.challenges.Clear(ctx, userID, challengeID); err != nil {
		e.emitAudit(ctx, AuditChallengeVerified, userID, true, factor, "challenge clear failed", nil)
	}

	result := &VerificationResult{
		Outcome:              OutcomeVerified,
		RemainingBackupCodes: remaining,
	}

	if trustDevice {
		token, record, err := e.devices.Issue(ctx, userID, deviceLabel)
		if err != nil {
			return nil, err
		}
		result.DeviceToken = token
		result.Device = &DeviceView{
			ID:         record.ID,
			Label:      record.Label,
			LastUsedAt: record.LastUsedAt,
			ExpiresAt:  record.ExpiresAt,
			CreatedAt:  record.CreatedAt,
		}
		e.metricInc(MetricDeviceTrusted)
		e.emitAudit(ctx, AuditDeviceTrusted, userID, true, factor, "", map[string]string{"device_id": record.ID})
	}

	e.metricInc(MetricChallengeVerified)
	e.emitAudit(ctx, AuditChallengeVerified, userID, true, factor, "", nil)
	return result, nil
}

func (e *Engine) wellFormed(factor FactorType, code string) bool {
	switch factor {
	case FactorBackupCode:
		return canonicalizeBackupCode(code, e.config.BackupCodes.Length) != ""
	default:
		trimmed := strings.TrimSpace(code)
		return len(trimmed) == e.config.TOTP.Digits && isNumericString(trimmed)
	}
}

// CheckRateLimit describes the checkratelimit operation and its observable behavior.
//
// CheckRateLimit exposes the sliding-window limiter for any caller-chosen
// namespace, for example password-reset throttling keyed by account id. It
// never returns an error; degradation is absorbed by the fallback path and
// the per-namespace FailMode.
func (e *Engine) CheckRateLimit(ctx context.Context, namespace, identifier string, limit int, window time.Duration) RateLimitResult {
	if e == nil || e.limiter == nil {
		return RateLimitResult{Allowed: false, Limit: limit, ResetAt: time.Now().Add(window)}
	}
	return e.limiter.Check(ctx, namespace, identifier, limit, window)
}

// IsTrustedDevice describes the istrusteddevice operation and its observable behavior.
//
// IsTrustedDevice reports whether the presented token exempts this login
// from the two-factor challenge. It must be called fresh on every login and
// never grants primary-credential bypass.
func (e *Engine) IsTrustedDevice(ctx context.Context, userID, deviceToken string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	trusted, err := e.devices.IsTrusted(ctx, userID, deviceToken)
	if err != nil {
		return false, err
	}
	if trusted {
		e.metricInc(MetricDeviceBypass)
		e.emitAudit(ctx, AuditDeviceBypass, userID, true, "", "", nil)
	}
	return trusted, nil
}

// TrustedDevices lists the user's non-expired trusted devices.
func (e *Engine) TrustedDevices(ctx context.Context, userID string) ([]DeviceView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.devices.List(ctx, userID)
}

// RevokeTrustedDevice deletes a single trusted device immediately.
func (e *Engine) RevokeTrustedDevice(ctx context.Context, userID, deviceID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.devices.Revoke(ctx, userID, deviceID); err != nil {
		return err
	}
	e.metricInc(MetricDeviceRevoked)
	e.emitAudit(ctx, AuditDeviceRevoked, userID, true, "", "", map[string]string{"device_id": deviceID})
	return nil
}

// RevokeAllTrustedDevices deletes every trusted device owned by the user.
func (e *Engine) RevokeAllTrustedDevices(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.devices.RevokeAll(ctx, userID); err != nil {
		return err
	}
	e.metricInc(MetricDeviceRevoked)
	e.emitAudit(ctx, AuditDeviceRevokedAll, userID, true, "", "", nil)
	return nil
}
