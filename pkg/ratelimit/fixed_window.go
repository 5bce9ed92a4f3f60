package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// FixedWindowLimiter implements fixed-window rate limiting over a
// CounterStore.
//
// Each (key, class) pair owns one counter. The first request in a window
// starts it; the window resets exactly window after it started, not on a
// sliding basis. Exactly limit requests are admitted per window; the
// (limit+1)-th is the first rejection, and rejected requests do not consume
// budget.
type FixedWindowLimiter struct {
	store   CounterStore
	clock   Clock
	metrics Metrics
}

// NewFixedWindowLimiter creates a limiter over the given store.
// A nil metrics falls back to NoOpMetrics, a nil clock to SystemClock.
func NewFixedWindowLimiter(store CounterStore, clock Clock, metrics Metrics) *FixedWindowLimiter {
	if clock == nil {
		clock = &SystemClock{}
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}
	return &FixedWindowLimiter{
		store:   store,
		clock:   clock,
		metrics: metrics,
	}
}

// Check applies the budget for the given class to one request from key.
//
// The admission itself is delegated to the store's AtomicIncrement so the
// read-compare-write sequence happens under a single lock or script
// invocation. An error from the store fails open with an allowed decision:
// losing rate limiting briefly is preferable to taking the whole API down
// with it, and the error is surfaced so callers can log it.
func (l *FixedWindowLimiter) Check(ctx context.Context, key string, class string, limit int, window time.Duration) (*Decision, error) {
	start := l.clock.Now()

	count, resetAt, allowed, err := l.store.AtomicIncrement(ctx, storeKey(key, class), limit, window)
	l.metrics.RecordCheckDuration(l.clock.Now().Sub(start))

	if err != nil {
		d := &Decision{
			Key:       key,
			Class:     class,
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetAt:   start.Add(window),
		}
		return d, fmt.Errorf("rate limit check for %q: %w", key, err)
	}

	now := l.clock.Now()
	d := &Decision{
		Key:     key,
		Class:   class,
		Allowed: allowed,
		Limit:   limit,
		ResetAt: resetAt,
	}
	if allowed {
		d.Remaining = limit - count
		if d.Remaining < 0 {
			d.Remaining = 0
		}
		l.metrics.RecordAllowed(class)
	} else {
		d.Remaining = 0
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
		l.metrics.RecordDenied(class)
	}
	return d, nil
}

// Reset drops the counter for one (key, class) pair.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string, class string) error {
	return l.store.Delete(ctx, storeKey(key, class))
}

// storeKey scopes a client identifier to a route class so budgets for
// different classes never collide.
func storeKey(key, class string) string {
	return class + ":" + key
}
