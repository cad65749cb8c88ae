// ABOUTME: Registry of per-service circuit breakers and VPN requirements.
// ABOUTME: Unknown services are treated as always available and never require VPN.

package reliability

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrCircuitOpen is passed to Execute fallbacks when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit open")

// ServiceSpec describes a service known at startup.
type ServiceSpec struct {
	Name             string
	RequiresVPN      bool
	FailureThreshold int
	OpenDuration     time.Duration
}

// DefaultServices are the article backends the gateway fronts.
func DefaultServices() []ServiceSpec {
	return []ServiceSpec{
		{Name: "GetUAXDArticles", RequiresVPN: true},
		{Name: "GetASArticles", RequiresVPN: true},
		{Name: "GetRexArticles", RequiresVPN: false},
	}
}

type serviceEntry struct {
	breaker     *CircuitBreaker
	requiresVPN bool
}

// Registry maps service names to breakers. The map lock is only held for
// lookups; each breaker serializes its own state.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*serviceEntry
	logger   *slog.Logger
	opts     []BreakerOption
}

// NewRegistry creates a registry pre-populated with specs. opts apply to every breaker it creates.
func NewRegistry(logger *slog.Logger, specs []ServiceSpec, opts ...BreakerOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		services: make(map[string]*serviceEntry),
		logger:   logger,
		opts:     append([]BreakerOption{WithBreakerLogger(logger)}, opts...),
	}
	for _, spec := range specs {
		r.RegisterSpec(spec)
	}
	return r
}

// Register adds a service with default breaker settings.
func (r *Registry) Register(name string, requiresVPN bool) {
	r.RegisterSpec(ServiceSpec{Name: name, RequiresVPN: requiresVPN})
}

// RegisterSpec adds a service. Registering an existing name keeps its breaker
// and updates only the VPN flag.
func (r *Registry) RegisterSpec(spec ServiceSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.services[spec.Name]; ok {
		entry.requiresVPN = spec.RequiresVPN
		return
	}
	r.logger.Info("registering service", "service", spec.Name, "requires_vpn", spec.RequiresVPN)
	r.services[spec.Name] = &serviceEntry{
		breaker:     NewCircuitBreaker(spec.Name, spec.FailureThreshold, spec.OpenDuration, r.opts...),
		requiresVPN: spec.RequiresVPN,
	}
}

func (r *Registry) entry(name string) *serviceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[name]
}

// IsServiceAvailable reports whether calls to the service may proceed.
func (r *Registry) IsServiceAvailable(name string) bool {
	e := r.entry(name)
	if e == nil {
		return true
	}
	return e.breaker.IsAvailable()
}

// RecordSuccess records a successful call. No-op for unknown services.
func (r *Registry) RecordSuccess(name string) {
	if e := r.entry(name); e != nil {
		e.breaker.RecordSuccess()
	}
}

// RecordFailure records a failed call. No-op for unknown services.
func (r *Registry) RecordFailure(name string) {
	if e := r.entry(name); e != nil {
		e.breaker.RecordFailure()
	}
}

// RequiresVPN reports whether the service is only reachable over VPN.
func (r *Registry) RequiresVPN(name string) bool {
	e := r.entry(name)
	return e != nil && e.requiresVPN
}

// Breaker returns the breaker for a service, or nil if unknown.
func (r *Registry) Breaker(name string) *CircuitBreaker {
	e := r.entry(name)
	if e == nil {
		return nil
	}
	return e.breaker
}

// Status returns the service health; unknown services are available.
func (r *Registry) Status(name string) Status {
	e := r.entry(name)
	if e == nil {
		return StatusAvailable
	}
	return e.breaker.Status()
}

// Names returns the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResetAll closes every breaker.
func (r *Registry) ResetAll() {
	for _, name := range r.Names() {
		if e := r.entry(name); e != nil {
			e.breaker.Reset()
		}
	}
	r.logger.Info("all circuit breakers reset")
}

// Snapshot returns every breaker's snapshot, sorted by service name.
func (r *Registry) Snapshot() []BreakerSnapshot {
	names := r.Names()
	snaps := make([]BreakerSnapshot, 0, len(names))
	for _, name := range names {
		if e := r.entry(name); e != nil {
			snaps = append(snaps, e.breaker.Snapshot())
		}
	}
	return snaps
}
