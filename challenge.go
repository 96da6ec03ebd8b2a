package stepup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	errChallengeNotFound = errors.New("pending challenge not found")
	errChallengeExpired  = errors.New("pending challenge expired")
	errChallengeBackend  = errors.New("challenge backend unavailable")
)

// challengeStore keeps the ephemeral pending-verification state between
// primary-credential success and second-factor confirmation. The transported
// token is an HS256-signed JWT binding the challenge id, the user id, and the
// expiry; the authoritative record lives in Redis under a TTL so a challenge
// can be invalidated server-side at any time.
//
// One challenge per user: issuing a fresh challenge deletes the prior one, so
// there is a single authoritative holder per login attempt.
type challengeStore struct {
	redis      *redis.Client
	prefix     string
	ttl        time.Duration
	signingKey []byte
}

func newChallengeStore(redisClient *redis.Client, cfg ChallengeConfig) *challengeStore {
	return &challengeStore{
		redis:      redisClient,
		prefix:     cfg.RedisPrefix,
		ttl:        cfg.TTL,
		signingKey: cfg.SigningKey,
	}
}

func (s *challengeStore) challengeKey(challengeID string) string {
	return s.prefix + ":c:" + challengeID
}

func (s *challengeStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Issue opens a pending challenge for the user and returns the signed token.
// Any prior challenge for the same user is invalidated first.
func (s *challengeStore) Issue(ctx context.Context, userID string) (string, error) {
	prior, err := s.redis.Get(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	if prior != "" {
		if err := s.redis.Del(ctx, s.challengeKey(prior)).Err(); err != nil {
			return "", fmt.Errorf("%w: %v", errChallengeBackend, err)
		}
	}

	challengeID := uuid.NewString()
	now := time.Now()

	if err := s.redis.Set(ctx, s.challengeKey(challengeID), userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	if err := s.redis.Set(ctx, s.userKey(userID), challengeID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", errChallengeBackend, err)
	}

	claims := jwt.RegisteredClaims{
		ID:        challengeID,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return token, nil
}

// Resolve validates the token signature and expiry, then confirms the
// challenge is still live server-side. A forged, expired, or superseded
// token resolves to errChallengeExpired / errChallengeNotFound; the caller
// treats both as an expired challenge.
func (s *challengeStore) Resolve(ctx context.Context, token string) (userID, challengeID string, err error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", errChallengeExpired
		}
		return "", "", errChallengeNotFound
	}
	if claims.ID == "" || claims.Subject == "" {
		return "", "", errChallengeNotFound
	}

	stored, err := s.redis.Get(ctx, s.challengeKey(claims.ID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", errChallengeExpired
		}
		return "", "", fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	if stored != claims.Subject {
		return "", "", errChallengeNotFound
	}

	return claims.Subject, claims.ID, nil
}

// Clear removes the challenge after a terminal outcome.
func (s *challengeStore) Clear(ctx context.Context, userID, challengeID string) error {
	if err := s.redis.Del(ctx, s.challengeKey(challengeID), s.userKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeBackend, err)
	}
	return nil
}
