// Package ratelimit implements fixed-window rate limiting over pluggable
// counter stores.
//
// The package is framework-agnostic: it knows nothing about HTTP. Callers
// supply a client identifier and a budget, and receive a Decision. Counter
// state lives behind the CounterStore interface so that a single-process
// deployment can use the in-memory store while a multi-instance deployment
// swaps in the Redis-backed store without touching the limiter.
package ratelimit

import (
	"context"
	"time"
)

// CounterStore stores fixed-window counters keyed by client identifier and
// route class. All methods must be safe for concurrent use.
//
// The admission check is a single atomic operation. A separate
// read-compare-write sequence would let two concurrent requests both observe
// count < limit and both be admitted past the cap, so stores must perform
// get-or-create, compare and increment under one lock (memory) or one script
// invocation (Redis).
type CounterStore interface {
	// AtomicIncrement applies fixed-window admission for key in one atomic
	// step:
	//
	//   - no counter, or the current window has expired: a new window is
	//     started with count=1 and the request is allowed
	//   - count < limit: the counter is incremented and the request is
	//     allowed
	//   - count >= limit: the request is denied and the counter is NOT
	//     incremented, so rejected requests never extend the window or
	//     corrupt the count
	//
	// It returns the count after the operation, the time the current window
	// resets, and whether the request was admitted.
	AtomicIncrement(ctx context.Context, key string, limit int, window time.Duration) (count int, resetAt time.Time, allowed bool, err error)

	// Delete removes the counter for key, if any.
	Delete(ctx context.Context, key string) error

	// KeyCount returns the number of counters currently held. Used to decide
	// when opportunistic purging should run.
	KeyCount(ctx context.Context) (int, error)

	// Purge removes counters whose windows have expired and returns how many
	// were removed. It must never remove a counter whose window is still
	// open.
	Purge(ctx context.Context) (int, error)
}

// Clock abstracts time reads so window arithmetic can be tested with a fake
// clock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock backed by the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// Metrics records rate limiting outcomes. Implementations can use
// Prometheus or be no-ops.
type Metrics interface {
	// RecordAllowed records an admitted request for a route class.
	RecordAllowed(class string)

	// RecordDenied records a rejected request for a route class.
	RecordDenied(class string)

	// RecordCheckDuration records how long an admission check took.
	RecordCheckDuration(duration time.Duration)

	// SetActiveKeys records the current number of counters in the store.
	SetActiveKeys(count int)

	// RecordEviction records that expired counters were purged.
	RecordEviction(count int)
}
