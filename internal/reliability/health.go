// ABOUTME: Background health checker that probes service health URLs on an interval.
// ABOUTME: Probe outcomes feed the registry so open circuits close when backends recover.

package reliability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Health checker defaults.
const (
	DefaultCheckInterval = 30 * time.Second
	DefaultCheckTimeout  = 5 * time.Second
)

// ErrCheckerStarted is returned by Start when the checker is already running.
var ErrCheckerStarted = errors.New("health checker already started")

// HealthOption customizes a HealthChecker.
type HealthOption func(*HealthChecker)

// WithInterval sets both the initial delay and the period between ticks.
func WithInterval(d time.Duration) HealthOption {
	return func(h *HealthChecker) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithProbeTimeout bounds each probe request.
func WithProbeTimeout(d time.Duration) HealthOption {
	return func(h *HealthChecker) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithHTTPClient replaces the probe HTTP client.
func WithHTTPClient(c *http.Client) HealthOption {
	return func(h *HealthChecker) {
		if c != nil {
			h.client = c
		}
	}
}

// WithHealthLogger sets the logger.
func WithHealthLogger(logger *slog.Logger) HealthOption {
	return func(h *HealthChecker) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// HealthChecker periodically probes every registered endpoint.
type HealthChecker struct {
	registry  *Registry
	endpoints map[string]string
	interval  time.Duration
	timeout   time.Duration
	client    *http.Client
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthChecker creates a checker. endpoints maps service name to health URL;
// services without an endpoint are never probed.
func NewHealthChecker(registry *Registry, endpoints map[string]string, opts ...HealthOption) *HealthChecker {
	eps := make(map[string]string, len(endpoints))
	for name, url := range endpoints {
		if url != "" {
			eps[name] = url
		}
	}
	h := &HealthChecker{
		registry:  registry,
		endpoints: eps,
		interval:  DefaultCheckInterval,
		timeout:   DefaultCheckTimeout,
		client:    &http.Client{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start launches the background loop. The first tick runs after one interval.
func (h *HealthChecker) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return ErrCheckerStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(loopCtx, h.done)

	h.logger.Info("health checker started",
		"interval", h.interval,
		"services", len(h.endpoints),
	)
	return nil
}

func (h *HealthChecker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// A tick in progress runs to completion after Stop.
			h.checkAll(context.WithoutCancel(ctx))
		}
	}
}

// Stop cancels the loop and waits for any in-flight tick, or for ctx to expire.
func (h *HealthChecker) Stop(ctx context.Context) error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		h.logger.Info("health checker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkAll probes every configured endpoint concurrently and records the outcomes.
func (h *HealthChecker) checkAll(ctx context.Context) {
	names := make([]string, 0, len(h.endpoints))
	for name := range h.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		url := h.endpoints[name]
		g.Go(func() error {
			h.checkService(gctx, name, url)
			return nil
		})
	}
	_ = g.Wait()
}

func (h *HealthChecker) checkService(ctx context.Context, name, url string) {
	status, err := h.probe(ctx, url)
	switch {
	case err != nil:
		h.registry.RecordFailure(name)
		h.logger.Debug("health check error", "service", name, "error", err)
	case status < 200 || status >= 300:
		h.registry.RecordFailure(name)
		h.logger.Info("health check failed", "service", name, "status", status)
	default:
		h.registry.RecordSuccess(name)
		h.logger.Debug("health check passed", "service", name)
	}
}

// CheckNow probes one service immediately without touching its breaker.
// Services without a health URL are reported healthy.
func (h *HealthChecker) CheckNow(ctx context.Context, name string) bool {
	url, ok := h.endpoints[name]
	if !ok {
		return true
	}
	status, err := h.probe(ctx, url)
	return err == nil && status >= 200 && status < 300
}

func (h *HealthChecker) probe(ctx context.Context, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
