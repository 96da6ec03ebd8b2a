package stepup

import (
	"context"
	"testing"
	"time"
)

func newTestRegistry(ttl time.Duration) (*deviceRegistry, *fakeIdentityStore) {
	store := newFakeIdentityStore()
	return newDeviceRegistry(store, TrustedDeviceConfig{TTL: ttl}), store
}

func TestIssueAndValidateDeviceToken(t *testing.T) {
	registry, store := newTestRegistry(30 * 24 * time.Hour)

	token, record, err := registry.Issue(context.Background(), "u1", "laptop")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if token == "" || record.ID == "" {
		t.Fatal("expected plaintext token and record id")
	}
	if record.TokenHash == ([32]byte{}) {
		t.Fatal("expected stored token hash")
	}

	trusted, err := registry.IsTrusted(context.Background(), "u1", token)
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if !trusted {
		t.Fatal("expected issued token to validate")
	}

	// Successful bypass refreshes last-used best-effort.
	if store.devices["u1"][0].LastUsedAt.Before(record.CreatedAt) {
		t.Fatal("expected LastUsedAt refreshed on successful check")
	}
}

func TestDeviceTokenNeverValidatesForAnotherUser(t *testing.T) {
	registry, _ := newTestRegistry(30 * 24 * time.Hour)

	token, _, err := registry.Issue(context.Background(), "userA", "laptop")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	trusted, err := registry.IsTrusted(context.Background(), "userB", token)
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("expected user A's token rejected for user B")
	}
}

func TestExpiredDeviceNeverValidates(t *testing.T) {
	registry, store := newTestRegistry(time.Hour)

	token, record, err := registry.Issue(context.Background(), "u1", "old-phone")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	store.mu.Lock()
	for i := range store.devices["u1"] {
		if store.devices["u1"][i].ID == record.ID {
			store.devices["u1"][i].ExpiresAt = time.Now().Add(-time.Minute)
		}
	}
	store.mu.Unlock()

	trusted, err := registry.IsTrusted(context.Background(), "u1", token)
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("expected expired record rejected regardless of token correctness")
	}
}

func TestMalformedDeviceTokenRejectedWithoutError(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)

	for _, candidate := range []string{"", "short", "!!!not-base64!!!", "YWJj"} {
		trusted, err := registry.IsTrusted(context.Background(), "u1", candidate)
		if err != nil {
			t.Fatalf("IsTrusted(%q) returned error: %v", candidate, err)
		}
		if trusted {
			t.Fatalf("expected malformed token %q rejected", candidate)
		}
	}
}

func TestListFiltersExpiredDevices(t *testing.T) {
	registry, store := newTestRegistry(time.Hour)

	if _, _, err := registry.Issue(context.Background(), "u1", "live"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	_, stale, err := registry.Issue(context.Background(), "u1", "stale")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	store.mu.Lock()
	for i := range store.devices["u1"] {
		if store.devices["u1"][i].ID == stale.ID {
			store.devices["u1"][i].ExpiresAt = time.Now().Add(-time.Minute)
		}
	}
	store.mu.Unlock()

	views, err := registry.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(views) != 1 || views[0].Label != "live" {
		t.Fatalf("expected only the live device listed, got %+v", views)
	}
}

func TestRevokeAllRemovesEveryDevice(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)

	tokens := make([]string, 0, 3)
	for _, label := range []string{"a", "b", "c"} {
		token, _, err := registry.Issue(context.Background(), "u1", label)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		tokens = append(tokens, token)
	}

	if err := registry.RevokeAll(context.Background(), "u1"); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}

	for _, token := range tokens {
		trusted, err := registry.IsTrusted(context.Background(), "u1", token)
		if err != nil {
			t.Fatalf("IsTrusted failed: %v", err)
		}
		if trusted {
			t.Fatal("expected all tokens rejected after RevokeAll")
		}
	}
}
