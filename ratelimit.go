package stepup

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Namespaces this core throttles by default. Callers may check any namespace
// of their own through [Engine.CheckRateLimit].
const (
	// NamespaceTwoFactorAttempt is an exported constant or variable used by the step-up engine.
	NamespaceTwoFactorAttempt = "two-factor-attempt"
	// NamespacePasswordReset is an exported constant or variable used by the step-up engine.
	NamespacePasswordReset = "password-reset"
	// NamespaceLogin is an exported constant or variable used by the step-up engine.
	NamespaceLogin = "login"
)

// rateLimiter enforces sliding-window limits against a shared Redis sorted
// set, degrading to the in-process fallback behind a circuit breaker. Check
// never returns an error: shared-store failures feed the breaker and are
// fully absorbed; the caller only ever sees allowed/denied.
type rateLimiter struct {
	redis    *redis.Client
	config   RateLimitConfig
	breaker  *circuitBreaker
	fallback *fallbackCache
	metrics  *Metrics
	closed   atomic.Bool
}

func newRateLimiter(redisClient *redis.Client, cfg RateLimitConfig, metrics *Metrics) *rateLimiter {
	l := &rateLimiter{
		redis:    redisClient,
		config:   cfg,
		breaker:  newCircuitBreaker(cfg.FailureThreshold, cfg.RetryTimeout),
		fallback: newFallbackCache(cfg),
		metrics:  metrics,
	}
	l.breaker.onOpen = func() { metrics.Inc(MetricBreakerOpened) }
	l.breaker.onClose = func() { metrics.Inc(MetricBreakerClosed) }
	return l
}

func (l *rateLimiter) key(namespace, identifier string) string {
	return l.config.RedisPrefix + ":" + namespace + ":" + identifier
}

// Check evaluates one sliding-window request for (namespace, identifier).
// The shared path is a single atomic round trip; on any shared-store error
// this call falls through to the fallback and the breaker takes note.
func (l *rateLimiter) Check(ctx context.Context, namespace, identifier string, limit int, window time.Duration) RateLimitResult {
	now := time.Now()
	if l == nil || limit <= 0 || window <= 0 {
		return RateLimitResult{Allowed: false, Limit: limit, ResetAt: now.Add(window)}
	}
	if l.closed.Load() {
		// Total inability to evaluate: policy knob, not a hidden default.
		return l.failModeResult(namespace, limit, window, now)
	}

	key := l.key(namespace, identifier)

	if l.breaker.allowShared(now) {
		res, err := l.sharedCheck(ctx, key, limit, window, now)
		if err == nil {
			l.breaker.recordSuccess()
			if !res.Allowed {
				l.metrics.Inc(MetricRateLimitDenied)
			}
			return res
		}
		l.breaker.recordFailure(time.Now())
	}

	l.metrics.Inc(MetricRateLimitFallback)
	res := l.fallback.check(key, limit, window, now)
	if !res.Allowed {
		l.metrics.Inc(MetricRateLimitDenied)
	}
	return res
}

// sharedCheck runs the whole window update in one MULTI/EXEC round trip:
// drop entries older than the window start, count what remains, insert this
// event with a uniquifying member, and refresh the key expiry. The count
// observed before the insert decides the verdict.
func (l *rateLimiter) sharedCheck(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (RateLimitResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, l.config.OpTimeout)
	defer cancel()

	windowStart := now.Add(-window)
	// Nanosecond timestamp plus a random suffix so same-instant events from
	// concurrent callers never collapse into one counted member.
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(opCtx, key, "-inf", "("+strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(opCtx, key)
	pipe.ZAdd(opCtx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	pipe.Expire(opCtx, key, window)
	if _, err := pipe.Exec(opCtx); err != nil {
		return RateLimitResult{}, err
	}

	count := int(countCmd.Val())
	remaining := limit - count - 1
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitResult{
		Allowed:   count < limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}, nil
}

func (l *rateLimiter) failMode(namespace string) FailMode {
	if mode, ok := l.config.FailModes[namespace]; ok {
		return mode
	}
	return l.config.DefaultFailMode
}

func (l *rateLimiter) failModeResult(namespace string, limit int, window time.Duration, now time.Time) RateLimitResult {
	allowed := l.failMode(namespace) == FailOpen
	remaining := 0
	if allowed && limit > 0 {
		remaining = limit - 1
	}
	if !allowed {
		l.metrics.Inc(MetricRateLimitDenied)
	}
	return RateLimitResult{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}
}

// Close stops the fallback sweeper; subsequent checks answer per FailMode.
func (l *rateLimiter) Close() {
	if l == nil {
		return
	}
	l.closed.Store(true)
	l.fallback.Close()
}
