package stepup

import (
	"sync"
	"time"
)

type breakerState uint8

const (
	breakerClosed breakerState = iota
	breakerOpen
)

// circuitBreaker isolates the shared counter store after repeated failures.
// It is an explicit two-state machine guarded by a mutex: Closed routes
// checks to the shared store; Open routes them to the local fallback until
// retryTimeout has elapsed since the last failure, at which point the next
// call is allowed to probe the shared store again. Any shared-store success
// resets the consecutive-failure counter and closes the breaker.
type circuitBreaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time

	threshold    int
	retryTimeout time.Duration

	onOpen  func()
	onClose func()
}

func newCircuitBreaker(threshold int, retryTimeout time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &circuitBreaker{
		threshold:    threshold,
		retryTimeout: retryTimeout,
	}
}

// allowShared reports whether this call may attempt the shared store.
func (b *circuitBreaker) allowShared(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerClosed {
		return true
	}
	return now.Sub(b.lastFailure) >= b.retryTimeout
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	wasOpen := b.state == breakerOpen
	b.state = breakerClosed
	b.failures = 0
	b.mu.Unlock()

	if wasOpen && b.onClose != nil {
		b.onClose()
	}
}

func (b *circuitBreaker) recordFailure(now time.Time) {
	b.mu.Lock()
	b.failures++
	b.lastFailure = now
	opened := false
	if b.state == breakerClosed && b.failures >= b.threshold {
		b.state = breakerOpen
		opened = true
	}
	b.mu.Unlock()

	if opened && b.onOpen != nil {
		b.onOpen()
	}
}

func (b *circuitBreaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
