// ABOUTME: Tests for the background health checker against httptest backends.
// ABOUTME: Covers on-demand checks, ticks feeding the registry, and shutdown.

package reliability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusServer answers every request with the current status code.
func statusServer(t *testing.T, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthChecker_CheckNow(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := statusServer(t, &status, &hits)

	r := NewRegistry(nil, DefaultServices())
	h := NewHealthChecker(r, map[string]string{"GetUAXDArticles": srv.URL})

	assert.True(t, h.CheckNow(context.Background(), "GetUAXDArticles"))

	status.Store(http.StatusServiceUnavailable)
	assert.False(t, h.CheckNow(context.Background(), "GetUAXDArticles"))

	// On-demand checks do not move the breaker
	assert.Equal(t, 0, r.Breaker("GetUAXDArticles").FailureCount())

	// No URL configured means healthy
	assert.True(t, h.CheckNow(context.Background(), "GetRexArticles"))
	assert.Equal(t, int32(2), hits.Load())
}

func TestHealthChecker_CheckNowUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := NewHealthChecker(NewRegistry(nil, DefaultServices()), map[string]string{"GetASArticles": url},
		WithProbeTimeout(time.Second))
	assert.False(t, h.CheckNow(context.Background(), "GetASArticles"))
}

func TestHealthChecker_EmptyURLIsIgnored(t *testing.T) {
	h := NewHealthChecker(NewRegistry(nil, DefaultServices()), map[string]string{"GetASArticles": ""})
	assert.True(t, h.CheckNow(context.Background(), "GetASArticles"))
}

func TestHealthChecker_TicksRecordOutcomes(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := statusServer(t, &status, &hits)

	r := NewRegistry(nil, DefaultServices())
	h := NewHealthChecker(r, map[string]string{"GetUAXDArticles": srv.URL},
		WithInterval(10*time.Millisecond))
	require.NoError(t, h.Start(context.Background()))
	defer func() { _ = h.Stop(context.Background()) }()

	// Failing probes eventually open the circuit
	require.Eventually(t, func() bool {
		return r.Breaker("GetUAXDArticles").State() == StateOpen
	}, 2*time.Second, 5*time.Millisecond)

	// Services without a URL are never touched by the checker
	assert.Equal(t, 0, r.Breaker("GetRexArticles").FailureCount())
}

func TestHealthChecker_RecoveryClosesCircuit(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := statusServer(t, &status, &hits)

	r := NewRegistry(nil, []ServiceSpec{
		{Name: "GetASArticles", RequiresVPN: true, FailureThreshold: 1, OpenDuration: time.Millisecond},
	})
	r.RecordFailure("GetASArticles")
	require.Equal(t, StateOpen, r.Breaker("GetASArticles").State())

	// After the cooldown a caller probes, moving the breaker to half-open
	time.Sleep(5 * time.Millisecond)
	require.True(t, r.IsServiceAvailable("GetASArticles"))

	h := NewHealthChecker(r, map[string]string{"GetASArticles": srv.URL},
		WithInterval(10*time.Millisecond))
	require.NoError(t, h.Start(context.Background()))
	defer func() { _ = h.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return r.Breaker("GetASArticles").State() == StateClosed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHealthChecker_StartTwice(t *testing.T) {
	h := NewHealthChecker(NewRegistry(nil, nil), nil, WithInterval(time.Hour))
	require.NoError(t, h.Start(context.Background()))
	assert.ErrorIs(t, h.Start(context.Background()), ErrCheckerStarted)
	require.NoError(t, h.Stop(context.Background()))
}

func TestHealthChecker_StopHaltsTicks(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	srv := statusServer(t, &status, &hits)

	h := NewHealthChecker(NewRegistry(nil, DefaultServices()), map[string]string{"GetUAXDArticles": srv.URL},
		WithInterval(5*time.Millisecond))
	require.NoError(t, h.Start(context.Background()))

	require.Eventually(t, func() bool { return hits.Load() > 0 }, 2*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))

	after := hits.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, hits.Load())

	// Stopping again is a no-op
	assert.NoError(t, h.Stop(context.Background()))
}

func TestHealthChecker_StopWaitsForInFlightTick(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRegistry(nil, DefaultServices())
	h := NewHealthChecker(r, map[string]string{"GetUAXDArticles": srv.URL},
		WithInterval(5*time.Millisecond), WithProbeTimeout(5*time.Second))
	require.NoError(t, h.Start(context.Background()))

	<-entered
	stopped := make(chan error, 1)
	go func() { stopped <- h.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)
	// The in-flight probe completed and was recorded
	assert.Equal(t, 1, r.Breaker("GetUAXDArticles").SuccessCount())
}
