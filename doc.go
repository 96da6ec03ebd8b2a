// Package stepup provides the step-up authentication core: time-based
// one-time codes, single-use backup codes, trusted-device exemption, and an
// abuse-resistant sliding-window rate limiter with an in-process fallback.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// stepup is the public surface. It exposes [Engine], [Builder], [Config], and
// value types ([VerificationResult], [RateLimitResult], [DeviceView], etc.).
// Primary password/session authentication, relational storage, and transport
// glue are external collaborators: credentials and trusted devices are read
// and written through the caller-supplied [IdentityStore], audit persistence
// happens through a caller-supplied [AuditSink], and the pending-challenge
// token is an opaque string the caller transports however it likes.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or token encodings in its
//     public API.
//   - Issue sessions. A successful verification hands back OutcomeVerified;
//     session issuance belongs to the caller.
//   - Surface counter-store errors from rate limiting. Checks degrade to a
//     conservative in-process fallback and only ever report allowed/denied.
//
// # Degradation contract
//
// While the counter store is unreachable the limiter circuit breaker opens
// and each process enforces max(1, limit/2) locally. Concurrent processes do
// not coordinate during an outage, so the aggregate limit is the conservative
// limit times the instance count. This is an accepted, documented degradation.
package stepup
