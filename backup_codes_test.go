package stepup

import (
	"strings"
	"testing"
)

func TestGenerateBackupCodesShape(t *testing.T) {
	codes, err := generateBackupCodes(10, 10)
	if err != nil {
		t.Fatalf("generateBackupCodes failed: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}

	for _, code := range codes {
		if !strings.Contains(code, "-") {
			t.Fatalf("expected display separator in %q", code)
		}
		canonical := canonicalizeBackupCode(code, 10)
		if canonical == "" {
			t.Fatalf("expected generated code %q to canonicalize", code)
		}
		if len(canonical) != 10 || !isHexString(canonical) {
			t.Fatalf("unexpected canonical form %q", canonical)
		}
	}
}

func TestCanonicalizeRejectsWrongShape(t *testing.T) {
	for _, candidate := range []string{
		"",
		"ABCD",
		"ABCDEF123",    // too short
		"ABCDEF12345X", // non-hex
		"ABCDEF1234AB", // too long
	} {
		if got := canonicalizeBackupCode(candidate, 10); got != "" {
			t.Fatalf("expected %q rejected, got %q", candidate, got)
		}
	}

	// Separators, case, and whitespace are tolerated.
	for _, candidate := range []string{"abcde-f1234", " ABCDE F1234 ", "ABCDEF1234"} {
		if got := canonicalizeBackupCode(candidate, 10); got != "ABCDEF1234" {
			t.Fatalf("expected %q to canonicalize to ABCDEF1234, got %q", candidate, got)
		}
	}
}

func TestBackupCodeHashDeterministicAndUserKeyed(t *testing.T) {
	a := backupCodeHash("u1", "ABCDEF1234")
	b := backupCodeHash("u1", "ABCDEF1234")
	if a != b {
		t.Fatal("expected deterministic hash for identical input")
	}

	other := backupCodeHash("u2", "ABCDEF1234")
	if a == other {
		t.Fatal("expected different users to produce different digests for the same code")
	}
}

func TestRedeemBackupCodeSingleUse(t *testing.T) {
	codes, err := generateBackupCodes(10, 10)
	if err != nil {
		t.Fatalf("generateBackupCodes failed: %v", err)
	}
	stored := hashBackupCodes("u1", codes, 10)

	index, found := redeemBackupCode("u1", codes[5], 10, stored)
	if !found {
		t.Fatal("expected first redemption to match")
	}

	stored = removeBackupCode(stored, index)
	if len(stored) != 9 {
		t.Fatalf("expected 9 stored hashes after removal, got %d", len(stored))
	}

	if _, found := redeemBackupCode("u1", codes[5], 10, stored); found {
		t.Fatal("expected second redemption of the same code to miss")
	}
}

func TestRedeemMalformedAndUnknownBothMiss(t *testing.T) {
	codes, err := generateBackupCodes(3, 10)
	if err != nil {
		t.Fatalf("generateBackupCodes failed: %v", err)
	}
	stored := hashBackupCodes("u1", codes, 10)

	if _, found := redeemBackupCode("u1", "not-a-code", 10, stored); found {
		t.Fatal("expected malformed candidate to miss")
	}
	if _, found := redeemBackupCode("u1", "ABCDEF1234", 10, stored); found {
		t.Fatal("expected unknown candidate to miss")
	}
	if _, found := redeemBackupCode("u2", codes[0], 10, stored); found {
		t.Fatal("expected other user's candidate to miss")
	}
}

func TestNoCollisionAcrossManyGenerations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping probabilistic collision check in short mode")
	}

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 1000; i++ {
		codes, err := generateBackupCodes(10, 10)
		if err != nil {
			t.Fatalf("generateBackupCodes failed: %v", err)
		}
		for _, code := range codes {
			canonical := canonicalizeBackupCode(code, 10)
			if _, dup := seen[canonical]; dup {
				t.Fatalf("collision after %d codes: %s", len(seen), canonical)
			}
			seen[canonical] = struct{}{}
		}
	}
}
