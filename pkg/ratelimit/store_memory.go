package ratelimit

import (
	"context"
	"sync"
	"time"
)

// counter is one fixed window: how many requests have been admitted and when
// the window resets.
type counter struct {
	count   int
	resetAt time.Time
}

// InMemoryCounterStore is a process-local CounterStore.
//
// A single mutex guards the counter map, which makes AtomicIncrement's
// get-or-create/compare/increment sequence atomic per key. Suitable for
// single-instance deployments and tests; horizontal scale-out needs the
// Redis-backed store, since independent per-instance counters would defeat
// the limit.
//
// Memory is bounded opportunistically: when the map grows past MaxKeys, the
// next AtomicIncrement purges expired windows inline rather than on every
// access. A purge never touches a counter whose window is still open.
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	maxKeys  int
	clock    Clock
}

// InMemoryStoreConfig holds configuration for InMemoryCounterStore.
type InMemoryStoreConfig struct {
	// MaxKeys is the size threshold above which expired counters are purged
	// opportunistically. Default: 10000.
	MaxKeys int

	// Clock provides time reads. Default: SystemClock.
	Clock Clock
}

// NewInMemoryCounterStore creates an in-memory counter store.
func NewInMemoryCounterStore(config InMemoryStoreConfig) *InMemoryCounterStore {
	if config.MaxKeys <= 0 {
		config.MaxKeys = 10000
	}
	if config.Clock == nil {
		config.Clock = &SystemClock{}
	}
	return &InMemoryCounterStore{
		counters: make(map[string]*counter),
		maxKeys:  config.MaxKeys,
		clock:    config.Clock,
	}
}

// AtomicIncrement implements CounterStore.
//
// A request arriving at exactly resetAt starts a new window: the boundary is
// inclusive on the reset side.
func (s *InMemoryCounterStore) AtomicIncrement(ctx context.Context, key string, limit int, window time.Duration) (int, time.Time, bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.counters) > s.maxKeys {
		s.purgeLocked(now)
	}

	c, exists := s.counters[key]
	if !exists || !now.Before(c.resetAt) {
		resetAt := now.Add(window)
		s.counters[key] = &counter{count: 1, resetAt: resetAt}
		return 1, resetAt, true, nil
	}

	if c.count >= limit {
		return c.count, c.resetAt, false, nil
	}

	c.count++
	return c.count, c.resetAt, true, nil
}

// Delete removes the counter for key.
func (s *InMemoryCounterStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

// KeyCount returns the number of counters currently held.
func (s *InMemoryCounterStore) KeyCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters), nil
}

// Purge removes counters whose windows have expired.
func (s *InMemoryCounterStore) Purge(ctx context.Context) (int, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(now), nil
}

// purgeLocked removes expired counters. Caller must hold s.mu.
func (s *InMemoryCounterStore) purgeLocked(now time.Time) int {
	purged := 0
	for key, c := range s.counters {
		if !now.Before(c.resetAt) {
			delete(s.counters, key)
			purged++
		}
	}
	return purged
}
