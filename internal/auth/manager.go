// ABOUTME: Keyed cache of short-lived bearer tokens with per-key single-flight refresh.
// ABOUTME: Tokens are refreshed once less than a fifth of their lifetime remains.

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Token fetch errors.
var (
	ErrNoToken        = errors.New("no token in response")
	ErrFetchFailed    = errors.New("token fetch failed")
	ErrEmptyCacheKey  = errors.New("empty cache key")
	ErrNilTokenSource = errors.New("nil token fetcher")
)

// refreshDivisor sets the refresh point: a token is due once remaining < TTL/refreshDivisor.
const refreshDivisor = 5

// Token is a freshly issued credential and how long it stays valid.
type Token struct {
	Value string
	TTL   time.Duration
}

// Fetcher obtains a new token from an identity provider.
type Fetcher interface {
	Fetch(ctx context.Context) (Token, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) (Token, error)

// Fetch calls f(ctx).
func (f FetcherFunc) Fetch(ctx context.Context) (Token, error) {
	return f(ctx)
}

// cachedToken is immutable once stored.
type cachedToken struct {
	value     string
	ttl       time.Duration
	expiresAt time.Time
}

func (c *cachedToken) dueForRefresh(now time.Time) bool {
	if !now.Before(c.expiresAt) {
		return true
	}
	return c.expiresAt.Sub(now) < c.ttl/refreshDivisor
}

// Manager caches tokens by key. Reads are lock-free; fetches for one key are
// serialized by that key's lock while other keys proceed independently.
type Manager struct {
	entries sync.Map // key -> *cachedToken
	locks   sync.Map // key -> chan struct{}
	now     func() time.Time
	logger  *slog.Logger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithManagerClock replaces time.Now, mainly for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an empty token cache.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockFor returns the semaphore for key, creating it on first use.
func (m *Manager) lockFor(key string) chan struct{} {
	sem, _ := m.locks.LoadOrStore(key, make(chan struct{}, 1))
	return sem.(chan struct{})
}

func acquire(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) cached(key string) (*cachedToken, bool) {
	v, ok := m.entries.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(*cachedToken)
	if entry.dueForRefresh(m.now()) {
		return entry, false
	}
	return entry, true
}

// Token returns a valid token for key, fetching one if the cached entry is
// missing or due for refresh.
func (m *Manager) Token(ctx context.Context, key string, fetcher Fetcher) (string, error) {
	if err := checkArgs(key, fetcher); err != nil {
		return "", err
	}
	if entry, ok := m.cached(key); ok {
		m.logger.Debug("using cached token", "key", key)
		return entry.value, nil
	}

	sem := m.lockFor(key)
	if err := acquire(ctx, sem); err != nil {
		return "", err
	}
	defer func() { <-sem }()

	// Another caller may have refreshed while we waited.
	if entry, ok := m.cached(key); ok {
		return entry.value, nil
	}

	m.logger.Info("refreshing token", "key", key)
	return m.fetchLocked(ctx, key, fetcher)
}

// Refresh discards any cached token for key and fetches a new one. Callers
// use it after a downstream call rejected the current token.
func (m *Manager) Refresh(ctx context.Context, key string, fetcher Fetcher) (string, error) {
	if err := checkArgs(key, fetcher); err != nil {
		return "", err
	}
	sem := m.lockFor(key)
	if err := acquire(ctx, sem); err != nil {
		return "", err
	}
	defer func() { <-sem }()

	m.logger.Info("force refreshing token", "key", key)
	m.entries.Delete(key)
	return m.fetchLocked(ctx, key, fetcher)
}

// Invalidate drops the cached token for key.
func (m *Manager) Invalidate(key string) {
	m.entries.Delete(key)
}

// Clear drops every cached token.
func (m *Manager) Clear() {
	m.entries.Range(func(k, _ any) bool {
		m.entries.Delete(k)
		return true
	})
	m.logger.Info("all cached tokens cleared")
}

func (m *Manager) fetchLocked(ctx context.Context, key string, fetcher Fetcher) (string, error) {
	tok, err := fetcher.Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch token %s: %w", key, err)
	}
	if strings.TrimSpace(tok.Value) == "" {
		return "", fmt.Errorf("fetch token %s: %w", key, ErrNoToken)
	}
	if tok.TTL <= 0 {
		tok.TTL = DefaultOAuthTTL
	}
	m.entries.Store(key, &cachedToken{
		value:     tok.Value,
		ttl:       tok.TTL,
		expiresAt: m.now().Add(tok.TTL),
	})
	return tok.Value, nil
}

func checkArgs(key string, fetcher Fetcher) error {
	if key == "" {
		return ErrEmptyCacheKey
	}
	if fetcher == nil {
		return ErrNilTokenSource
	}
	return nil
}

// Source binds a Manager to one key and fetcher.
type Source struct {
	manager *Manager
	key     string
	fetcher Fetcher
}

// Source returns a token source for key.
func (m *Manager) Source(key string, fetcher Fetcher) *Source {
	return &Source{manager: m, key: key, fetcher: fetcher}
}

// Token returns the cached or freshly fetched token.
func (s *Source) Token(ctx context.Context) (string, error) {
	return s.manager.Token(ctx, s.key, s.fetcher)
}

// Refresh forces a new token.
func (s *Source) Refresh(ctx context.Context) (string, error) {
	return s.manager.Refresh(ctx, s.key, s.fetcher)
}
