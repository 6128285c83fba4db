package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"twscraper/pkg/logger"
	"twscraper/pkg/retry"
)

// TimestampStore persists the shared "next allowed request" instant. The
// gate reads it and then overwrites it; implementations need no
// compare-and-swap.
type TimestampStore interface {
	// ReadNextAllowed returns the zero time when nothing was written yet
	ReadNextAllowed(ctx context.Context, key string) (time.Time, error)
	WriteNextAllowed(ctx context.Context, key string, next time.Time) error
}

// Gate spaces requests to one platform by a minimum interval, shared across
// every process that uses the same store and key.
type Gate struct {
	store    TimestampStore
	key      string
	interval time.Duration
	logger   logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Gate
type Option func(*Gate)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithSleep overrides how the gate waits
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gate) { g.sleep = sleep }
}

// WithLogger sets the gate logger
func WithLogger(log logger.Logger) Option {
	return func(g *Gate) { g.logger = log }
}

// NewGate creates a gate over the given store
func NewGate(store TimestampStore, key string, interval time.Duration, opts ...Option) *Gate {
	g := &Gate{
		store:    store,
		key:      key,
		interval: interval,
		logger:   logger.NewNopLogger(),
		now:      time.Now,
		sleep:    retry.Wait,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire blocks until the caller may send its next request. It claims the
// slot before sleeping so concurrent callers queue behind it.
func (g *Gate) Acquire(ctx context.Context) error {
	next, err := g.store.ReadNextAllowed(ctx, g.key)
	if err != nil {
		return fmt.Errorf("read next allowed: %w", err)
	}

	now := g.now()
	wake := now
	if next.After(now) {
		wake = next
	}

	if err := g.store.WriteNextAllowed(ctx, g.key, wake.Add(g.interval)); err != nil {
		return fmt.Errorf("write next allowed: %w", err)
	}

	wait := wake.Sub(now)
	if wait <= 0 {
		return nil
	}
	g.logger.DebugWithFields("Request gate sleeping", map[string]interface{}{
		"key":   g.key,
		"sleep": wait,
	})
	return g.sleep(ctx, wait)
}

// MemoryStore keeps timestamps in process memory
type MemoryStore struct {
	mu   sync.Mutex
	next map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{next: make(map[string]time.Time)}
}

func (s *MemoryStore) ReadNextAllowed(ctx context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next[key], nil
}

func (s *MemoryStore) WriteNextAllowed(ctx context.Context, key string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[key] = next
	return nil
}
