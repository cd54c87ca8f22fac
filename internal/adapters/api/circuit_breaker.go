package api

import (
	"context"
	"sync"
	"time"

	"github.com/andrescamacho/fleetcmd/internal/domain/shared"
)

// CircuitBreaker tracks consecutive request failures. It is deliberately
// simpler than a full open/half-open state machine: when the counter
// reaches the threshold, the next attempt pauses for the configured cooldown
// and then resets the counter, exactly as spec §4.2 describes. Any successful
// response resets the counter to zero; a 204 No Content counts as a success
// too.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	clock     shared.Clock
}

// NewCircuitBreaker creates a breaker with the given consecutive-failure
// threshold and cooldown pause. A nil clock uses shared.RealClock.
func NewCircuitBreaker(threshold int, cooldown time.Duration, clock shared.Clock) *CircuitBreaker {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, clock: clock}
}

// BeforeAttempt pauses (respecting ctx cancellation) and resets the counter
// if the consecutive-failure threshold has been reached.
func (cb *CircuitBreaker) BeforeAttempt(ctx context.Context) error {
	cb.mu.Lock()
	tripped := cb.failures >= cb.threshold
	cb.mu.Unlock()
	if !tripped {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	cb.clock.Sleep(cb.cooldown)

	cb.mu.Lock()
	cb.failures = 0
	cb.mu.Unlock()
	return nil
}

// RecordFailure increments the consecutive-failure counter.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
}

// RecordSuccess resets the consecutive-failure counter to zero.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// FailureCount reports the current consecutive-failure count (test hook).
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
