// ABOUTME: Per-service circuit breaker that stops calling failing backends for a cooldown.
// ABOUTME: OPEN moves to HALF_OPEN lazily on the first availability check after the cooldown.

package reliability

import (
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Status is the health of a service derived from its breaker.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusDegraded    Status = "DEGRADED"
	StatusUnavailable Status = "UNAVAILABLE"
)

// Defaults applied when a service does not configure its own values.
const (
	DefaultFailureThreshold = 3
	DefaultOpenDuration     = time.Minute
)

// BreakerOption customizes a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// WithBreakerLogger sets the logger used for state transitions.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

// CircuitBreaker tracks failures for one service. All fields are guarded by mu.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	openDuration     time.Duration
	now              func() time.Time
	logger           *slog.Logger

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastStateChange time.Time
	lastFailure     *time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive threshold or duration use the defaults.
func NewCircuitBreaker(name string, failureThreshold int, openDuration time.Duration, opts ...BreakerOption) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if openDuration <= 0 {
		openDuration = DefaultOpenDuration
	}
	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		now:              time.Now,
		logger:           slog.Default(),
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.lastStateChange = cb.now()
	return cb
}

// Name returns the service name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// IsAvailable reports whether calls may go through. An OPEN breaker whose
// cooldown has elapsed moves to HALF_OPEN and admits the call as its probe.
func (cb *CircuitBreaker) IsAvailable() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.openDuration {
			cb.transitionLocked(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount++
	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateClosed)
		cb.failureCount = 0
	case StateClosed:
		cb.failureCount = 0
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	now := cb.now()
	cb.lastFailure = &now

	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	case StateClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.transitionLocked(StateOpen)
		}
	}
}

// Reset forces the breaker CLOSED with zeroed counters. Safe from any state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionLocked(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
}

// Execute runs fn when the breaker admits the call and records its outcome.
// fallback runs instead when the breaker is open or fn fails.
func (cb *CircuitBreaker) Execute(fn func() error, fallback func(error) error) error {
	if !cb.IsAvailable() {
		cb.logger.Info("circuit open, using fallback", "service", cb.name)
		return fallback(ErrCircuitOpen)
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return fallback(err)
	}
	cb.RecordSuccess()
	return nil
}

// State returns the current state without triggering the lazy OPEN→HALF_OPEN move.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Status derives the service health from the current state and failures.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.statusLocked()
}

// FailureCount returns the failures recorded since the last reset or success in CLOSED.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// SuccessCount returns the successes recorded since the last reset.
func (cb *CircuitBreaker) SuccessCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.successCount
}

// BreakerSnapshot is a point-in-time view of a breaker for operational inspection.
type BreakerSnapshot struct {
	Service          string     `json:"service"`
	State            State      `json:"state"`
	Status           Status     `json:"status"`
	FailureCount     int        `json:"failure_count"`
	SuccessCount     int        `json:"success_count"`
	FailureThreshold int        `json:"failure_threshold"`
	LastFailure      *time.Time `json:"last_failure"`
}

// Snapshot captures the breaker's fields under its lock.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var lastFailure *time.Time
	if cb.lastFailure != nil {
		t := *cb.lastFailure
		lastFailure = &t
	}
	return BreakerSnapshot{
		Service:          cb.name,
		State:            cb.state,
		Status:           cb.statusLocked(),
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		FailureThreshold: cb.failureThreshold,
		LastFailure:      lastFailure,
	}
}

func (cb *CircuitBreaker) statusLocked() Status {
	switch cb.state {
	case StateOpen:
		return StatusUnavailable
	case StateHalfOpen:
		return StatusDegraded
	default:
		if cb.failureCount > 0 {
			return StatusDegraded
		}
		return StatusAvailable
	}
}

// transitionLocked must be called with mu held.
func (cb *CircuitBreaker) transitionLocked(next State) {
	if cb.state == next {
		return
	}
	cb.logger.Info("circuit state change",
		"service", cb.name,
		"from", cb.state,
		"to", next,
	)
	cb.state = next
	cb.lastStateChange = cb.now()
}
