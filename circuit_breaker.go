package go_bridgeclient

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState string

const (
	// CircuitClosed means the circuit is allowing requests through normally.
	CircuitClosed CircuitState = "closed"

	// CircuitOpen means the circuit is blocking requests due to too many failures.
	CircuitOpen CircuitState = "open"

	// CircuitHalfOpen means the circuit is testing if the service has recovered.
	CircuitHalfOpen CircuitState = "half-open"
)

// CircuitBreaker implements the circuit breaker pattern to prevent
// hammering a bridge relay that is down or overloaded. It monitors
// operation failures and automatically opens the circuit after a
// threshold, failing fast instead of burning the retry budget against a
// dead host. After a timeout period it transitions to half-open to test if
// the relay has recovered.
//
// States:
//   - Closed: Normal operation, failures are counted
//   - Open: Circuit is tripped, all operations fail fast without attempting
//   - Half-Open: Testing recovery, limited operations allowed
type CircuitBreaker struct {
	maxFailures  int           // Number of failures before opening circuit
	resetTimeout time.Duration // How long to wait before attempting half-open
	failures     int           // Current failure count
	lastFailure  time.Time     // When the last failure occurred
	state        CircuitState  // Current circuit state
	mu           sync.Mutex    // Protects all fields
}

// circuitOpenError is returned for requests rejected while the circuit is
// open. It is temporary: the operation may be retried after the reset
// timeout.
type circuitOpenError struct {
	sinceLastFailure time.Duration
}

func (e *circuitOpenError) Error() string {
	return fmt.Sprintf("bridge: circuit breaker is open (last failure: %v ago)",
		e.sinceLastFailure.Round(time.Second))
}

func (e *circuitOpenError) Temporary() bool { return true }

// NewCircuitBreaker creates a new circuit breaker.
//
// Example:
//
//	// Open circuit after 3 failures, try recovery after 30 seconds
//	cb := NewCircuitBreaker(3, 30*time.Second)
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
	}
}

// Execute runs the given function if the circuit breaker allows it.
// Returns an error if the circuit is open or if the function fails.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)
	return err
}

// beforeRequest checks if the circuit allows the request.
func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			Debug("Circuit breaker transitioning to half-open state")
			return nil
		}
		return &circuitOpenError{sinceLastFailure: time.Since(cb.lastFailure)}

	case CircuitHalfOpen:
		// Allow one request in half-open state
		return nil

	case CircuitClosed:
		return nil

	default:
		return fmt.Errorf("bridge: circuit breaker in unknown state: %s", cb.state)
	}
}

// afterRequest records the result of a request and updates circuit state.
// Cancellation does not count against the relay: the caller gave up, the
// relay did not fail.
func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && !IsFatal(err) && !errors.Is(err, ErrCancelled) {
		cb.recordFailure()
	} else if err == nil {
		cb.recordSuccess()
	}
}

// recordFailure increments the failure count and opens circuit if threshold
// reached.
func (cb *CircuitBreaker) recordFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case CircuitClosed:
		// Don't open circuit if maxFailures is 0 (never open automatically)
		if cb.maxFailures > 0 && cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			Debug("Circuit breaker opened after %d failures", cb.failures)
		}

	case CircuitHalfOpen:
		// Failed during half-open test, go back to open
		cb.state = CircuitOpen
		Debug("Circuit breaker re-opened after half-open failure")
	}
}

// recordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitClosed
		cb.failures = 0
		Debug("Circuit breaker closed after successful half-open test")

	case CircuitClosed:
		cb.failures = 0
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen returns true if the circuit is currently open.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == CircuitOpen
}

// IsClosed returns true if the circuit is currently closed.
func (cb *CircuitBreaker) IsClosed() bool {
	return cb.State() == CircuitClosed
}

// Failures returns the current failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset manually resets the circuit breaker to closed state with zero
// failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	Debug("Circuit breaker manually reset")
}

// String returns a human-readable representation of the circuit breaker
// state.
func (cb *CircuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return fmt.Sprintf("CircuitBreaker{state=%s, failures=%d/%d, lastFailure=%v}",
		cb.state, cb.failures, cb.maxFailures,
		time.Since(cb.lastFailure).Round(time.Second))
}
