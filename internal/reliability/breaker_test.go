// ABOUTME: Tests for the circuit breaker state machine and derived service status.
// ABOUTME: Uses a manual clock so cooldown transitions are deterministic.

package reliability

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a settable time source shared with breakers under test.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock *manualClock) *CircuitBreaker {
	return NewCircuitBreaker("svc", 3, time.Minute, WithClock(clock.Now))
}

func TestBreaker_StartsClosedAndAvailable(t *testing.T) {
	cb := newTestBreaker(newManualClock())

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, StatusAvailable, cb.Status())
	assert.True(t, cb.IsAvailable())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	cb := newTestBreaker(newManualClock())

	cb.RecordFailure()
	cb.RecordFailure()
	// Below the threshold the service is degraded but still callable
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, StatusDegraded, cb.Status())
	assert.True(t, cb.IsAvailable())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, StatusUnavailable, cb.Status())
	assert.False(t, cb.IsAvailable())
}

func TestBreaker_SuccessResetsFailuresWhileClosed(t *testing.T) {
	cb := newTestBreaker(newManualClock())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.FailureCount())
	assert.Equal(t, StatusAvailable, cb.Status())

	// Two more failures do not reach the threshold after the reset
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)
	for range 3 {
		cb.RecordFailure()
	}

	clock.Advance(59 * time.Second)
	assert.False(t, cb.IsAvailable())
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Second)
	// State alone does not trigger the transition
	assert.Equal(t, StateOpen, cb.State())
	assert.True(t, cb.IsAvailable())
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.Equal(t, StatusDegraded, cb.Status())
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)
	for range 3 {
		cb.RecordFailure()
	}
	clock.Advance(time.Minute)
	require.True(t, cb.IsAvailable())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
	assert.Equal(t, StatusAvailable, cb.Status())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)
	for range 3 {
		cb.RecordFailure()
	}
	clock.Advance(time.Minute)
	require.True(t, cb.IsAvailable())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	// The cooldown restarts from the reopen
	clock.Advance(30 * time.Second)
	assert.False(t, cb.IsAvailable())
	clock.Advance(30 * time.Second)
	assert.True(t, cb.IsAvailable())
}

func TestBreaker_Reset(t *testing.T) {
	cb := newTestBreaker(newManualClock())
	for range 3 {
		cb.RecordFailure()
	}
	cb.RecordSuccess()

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
	assert.Equal(t, 0, cb.SuccessCount())
	assert.True(t, cb.IsAvailable())
}

func TestBreaker_DefaultsForNonPositiveSettings(t *testing.T) {
	clock := newManualClock()
	cb := NewCircuitBreaker("svc", 0, 0, WithClock(clock.Now))

	for range DefaultFailureThreshold {
		cb.RecordFailure()
	}
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(DefaultOpenDuration)
	assert.True(t, cb.IsAvailable())
}

func TestBreaker_Execute(t *testing.T) {
	cb := newTestBreaker(newManualClock())
	boom := errors.New("boom")

	var fallbackErr error
	fallback := func(err error) error {
		fallbackErr = err
		return nil
	}

	require.NoError(t, cb.Execute(func() error { return nil }, fallback))
	assert.Equal(t, 1, cb.SuccessCount())
	assert.NoError(t, fallbackErr)

	for range 3 {
		require.NoError(t, cb.Execute(func() error { return boom }, fallback))
	}
	assert.ErrorIs(t, fallbackErr, boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	require.NoError(t, cb.Execute(func() error { called = true; return nil }, fallback))
	assert.False(t, called)
	assert.ErrorIs(t, fallbackErr, ErrCircuitOpen)
}

func TestBreaker_Snapshot(t *testing.T) {
	clock := newManualClock()
	cb := newTestBreaker(clock)

	snap := cb.Snapshot()
	assert.Nil(t, snap.LastFailure)

	cb.RecordFailure()
	snap = cb.Snapshot()
	assert.Equal(t, "svc", snap.Service)
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, StatusDegraded, snap.Status)
	assert.Equal(t, 1, snap.FailureCount)
	assert.Equal(t, 3, snap.FailureThreshold)
	require.NotNil(t, snap.LastFailure)
	assert.Equal(t, clock.Now(), *snap.LastFailure)
}

func TestBreaker_ConcurrentUse(t *testing.T) {
	cb := NewCircuitBreaker("svc", 1000, time.Minute)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				cb.IsAvailable()
				cb.RecordFailure()
				cb.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, cb.FailureCount())
	assert.Equal(t, StateClosed, cb.State())
}
