package stepup

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestChallengeStore(t *testing.T, ttl time.Duration) (*challengeStore, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := newChallengeStore(rdb, ChallengeConfig{
		TTL:         ttl,
		RedisPrefix: "suc",
		SigningKey:  bytes.Repeat([]byte{0x17}, 32),
	})
	return store, mr.Close
}

func TestChallengeIssueResolveRoundTrip(t *testing.T) {
	store, done := newTestChallengeStore(t, 5*time.Minute)
	defer done()

	token, err := store.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	userID, challengeID, err := store.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if userID != "u1" || challengeID == "" {
		t.Fatalf("unexpected resolution: user %q challenge %q", userID, challengeID)
	}
}

func TestChallengeReissueInvalidatesPrior(t *testing.T) {
	store, done := newTestChallengeStore(t, 5*time.Minute)
	defer done()

	first, err := store.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first Issue failed: %v", err)
	}
	second, err := store.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second Issue failed: %v", err)
	}

	if _, _, err := store.Resolve(context.Background(), first); !errors.Is(err, errChallengeExpired) {
		t.Fatalf("expected superseded token expired, got %v", err)
	}
	if _, _, err := store.Resolve(context.Background(), second); err != nil {
		t.Fatalf("expected fresh token to resolve, got %v", err)
	}
}

func TestChallengeClearRemovesRecord(t *testing.T) {
	store, done := newTestChallengeStore(t, 5*time.Minute)
	defer done()

	token, err := store.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	userID, challengeID, err := store.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if err := store.Clear(context.Background(), userID, challengeID); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, _, err := store.Resolve(context.Background(), token); !errors.Is(err, errChallengeExpired) {
		t.Fatalf("expected cleared token rejected, got %v", err)
	}
}

func TestChallengeRejectsExpiredToken(t *testing.T) {
	store, done := newTestChallengeStore(t, 10*time.Millisecond)
	defer done()

	token, err := store.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if _, _, err := store.Resolve(context.Background(), token); !errors.Is(err, errChallengeExpired) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestChallengeRejectsForgedToken(t *testing.T) {
	store, done := newTestChallengeStore(t, 5*time.Minute)
	defer done()

	if _, err := store.Issue(context.Background(), "u1"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Token signed with a different key never resolves, even with valid claims.
	claims := jwt.RegisteredClaims{
		ID:        "some-challenge-id",
		Subject:   "u1",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(bytes.Repeat([]byte{0x99}, 32))
	if err != nil {
		t.Fatalf("sign forged token failed: %v", err)
	}

	if _, _, err := store.Resolve(context.Background(), forged); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected forged token rejected, got %v", err)
	}

	if _, _, err := store.Resolve(context.Background(), "not-a-jwt"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected garbage token rejected, got %v", err)
	}
}

func TestChallengeRejectsUnsignedAlgorithm(t *testing.T) {
	store, done := newTestChallengeStore(t, 5*time.Minute)
	defer done()

	claims := jwt.RegisteredClaims{
		ID:        "some-challenge-id",
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token failed: %v", err)
	}

	if _, _, err := store.Resolve(context.Background(), unsigned); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected alg=none token rejected, got %v", err)
	}
}
