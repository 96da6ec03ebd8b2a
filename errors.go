package stepup

import "errors"

var (
	// ErrUnauthenticated is an exported constant or variable used by the step-up engine.
	ErrUnauthenticated = errors.New("no valid pending challenge")
	// ErrAlreadyEnabled is an exported constant or variable used by the step-up engine.
	ErrAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrNotEnabled is an exported constant or variable used by the step-up engine.
	ErrNotEnabled = errors.New("two-factor not enabled")
	// ErrNotProvisioned is an exported constant or variable used by the step-up engine.
	ErrNotProvisioned = errors.New("two-factor not provisioned")
	// ErrInvalidFormat is an exported constant or variable used by the step-up engine.
	ErrInvalidFormat = errors.New("malformed verification code")
	// ErrInvalidCode is an exported constant or variable used by the step-up engine.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrRateLimited is an exported constant or variable used by the step-up engine.
	ErrRateLimited = errors.New("verification attempts rate limited")
	// ErrChallengeExpired is an exported constant or variable used by the step-up engine.
	ErrChallengeExpired = errors.New("pending challenge expired")
	// ErrChallengeUnavailable is an exported constant or variable used by the step-up engine.
	ErrChallengeUnavailable = errors.New("challenge backend unavailable")
	// ErrStorageUnavailable is an exported constant or variable used by the step-up engine.
	ErrStorageUnavailable = errors.New("identity store unavailable")
	// ErrDeviceNotFound is an exported constant or variable used by the step-up engine.
	ErrDeviceNotFound = errors.New("trusted device not found")
	// ErrEngineNotReady is an exported constant or variable used by the step-up engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
