package stepup

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const deviceTokenBytes = 32

// deviceRegistry issues, validates, and revokes trusted-device exemption
// tokens on top of the caller's identity store. A device token bypasses the
// two-factor challenge only; it never substitutes for primary credentials
// and is re-checked on every login, never cached across requests.
type deviceRegistry struct {
	store IdentityStore
	ttl   time.Duration
}

func newDeviceRegistry(store IdentityStore, cfg TrustedDeviceConfig) *deviceRegistry {
	return &deviceRegistry{store: store, ttl: cfg.TTL}
}

func hashDeviceToken(raw []byte) [32]byte {
	return blake2b.Sum256(raw)
}

// Issue creates a trusted-device record for the user and returns the
// plaintext token exactly once. Only the token hash is persisted.
func (r *deviceRegistry) Issue(ctx context.Context, userID, label string) (string, TrustedDeviceRecord, error) {
	raw := make([]byte, deviceTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", TrustedDeviceRecord{}, err
	}

	now := time.Now().UTC()
	record := TrustedDeviceRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenHash:  hashDeviceToken(raw),
		Label:      label,
		LastUsedAt: now,
		ExpiresAt:  now.Add(r.ttl),
		CreatedAt:  now,
	}

	if err := r.store.InsertTrustedDevice(ctx, record); err != nil {
		return "", TrustedDeviceRecord{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), record, nil
}

// IsTrusted reports whether the presented token matches a non-expired device
// record owned by userID. On a match the record's LastUsedAt is updated
// best-effort; a failed touch never fails the check.
func (r *deviceRegistry) IsTrusted(ctx context.Context, userID, plaintextToken string) (bool, error) {
	raw, err := base64.RawURLEncoding.DecodeString(plaintextToken)
	if err != nil || len(raw) != deviceTokenBytes {
		return false, nil
	}
	target := hashDeviceToken(raw)

	records, err := r.store.ListTrustedDevices(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	now := time.Now().UTC()
	for _, record := range records {
		if record.TokenHash != target {
			continue
		}
		// Expired records never validate; sweeping them is a read-time
		// concern, not an active job.
		if !record.ExpiresAt.After(now) {
			return false, nil
		}
		_ = r.store.TouchTrustedDevice(ctx, userID, record.ID, now)
		return true, nil
	}

	return false, nil
}

// List returns the owner-facing views of all non-expired devices.
func (r *deviceRegistry) List(ctx context.Context, userID string) ([]DeviceView, error) {
	records, err := r.store.ListTrustedDevices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	now := time.Now().UTC()
	views := make([]DeviceView, 0, len(records))
	for _, record := range records {
		if !record.ExpiresAt.After(now) {
			continue
		}
		views = append(views, DeviceView{
			ID:         record.ID,
			Label:      record.Label,
			LastUsedAt: record.LastUsedAt,
			ExpiresAt:  record.ExpiresAt,
			CreatedAt:  record.CreatedAt,
		})
	}
	return views, nil
}

// Revoke deletes a single device. Revocation is immediate and unconditional.
func (r *deviceRegistry) Revoke(ctx context.Context, userID, deviceID string) error {
	if err := r.store.DeleteTrustedDevice(ctx, userID, deviceID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// RevokeAll deletes every device owned by the user.
func (r *deviceRegistry) RevokeAll(ctx context.Context, userID string) error {
	if err := r.store.DeleteAllTrustedDevices(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
