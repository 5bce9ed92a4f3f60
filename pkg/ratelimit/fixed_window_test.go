package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced Clock for deterministic window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(clock Clock) *FixedWindowLimiter {
	store := NewInMemoryCounterStore(InMemoryStoreConfig{Clock: clock})
	return NewFixedWindowLimiter(store, clock, NewNoOpMetrics())
}

// TestFixedWindowLimiter_AllowsUpToLimit verifies that exactly limit
// requests are admitted per window and the next one is rejected.
func TestFixedWindowLimiter_AllowsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	ctx := context.Background()

	const limit = 3
	for i := 1; i <= limit; i++ {
		d, err := limiter.Check(ctx, "user:alice", "chat", limit, time.Minute)
		if err != nil {
			t.Fatalf("Check #%d returned error: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request #%d should be allowed", i)
		}
		if want := limit - i; d.Remaining != want {
			t.Errorf("request #%d: Remaining = %d, want %d", i, d.Remaining, want)
		}
	}

	d, err := limiter.Check(ctx, "user:alice", "chat", limit, time.Minute)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if d.Allowed {
		t.Error("request over the limit should be rejected")
	}
	if d.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", d.Remaining)
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", d.RetryAfter)
	}
}

// TestFixedWindowLimiter_RejectedRequestDoesNotConsume verifies that
// rejections do not extend the penalty: after the window resets, the full
// budget is available regardless of how many requests were rejected.
func TestFixedWindowLimiter_RejectedRequestDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	ctx := context.Background()

	const limit = 2
	for i := 0; i < limit; i++ {
		if d, _ := limiter.Check(ctx, "ip:203.0.113.7", "default", limit, time.Minute); !d.Allowed {
			t.Fatalf("request #%d should be allowed", i+1)
		}
	}

	// Hammer the limiter while throttled.
	for i := 0; i < 10; i++ {
		if d, _ := limiter.Check(ctx, "ip:203.0.113.7", "default", limit, time.Minute); d.Allowed {
			t.Fatal("throttled request should be rejected")
		}
	}

	clock.Advance(time.Minute)

	for i := 0; i < limit; i++ {
		d, _ := limiter.Check(ctx, "ip:203.0.113.7", "default", limit, time.Minute)
		if !d.Allowed {
			t.Fatalf("request #%d after reset should be allowed", i+1)
		}
	}
}

// TestFixedWindowLimiter_WindowBoundary verifies that a request arriving at
// exactly the reset time starts a fresh window.
func TestFixedWindowLimiter_WindowBoundary(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	ctx := context.Background()

	d, _ := limiter.Check(ctx, "user:bob", "search", 1, time.Minute)
	if !d.Allowed {
		t.Fatal("first request should be allowed")
	}
	if d2, _ := limiter.Check(ctx, "user:bob", "search", 1, time.Minute); d2.Allowed {
		t.Fatal("second request in the same window should be rejected")
	}

	clock.Advance(time.Minute)

	d3, _ := limiter.Check(ctx, "user:bob", "search", 1, time.Minute)
	if !d3.Allowed {
		t.Error("request at the window boundary should start a new window")
	}
}

// TestFixedWindowLimiter_ClassIsolation verifies that one identifier's
// budgets for different route classes are independent.
func TestFixedWindowLimiter_ClassIsolation(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	ctx := context.Background()

	if d, _ := limiter.Check(ctx, "user:alice", "chat", 1, time.Minute); !d.Allowed {
		t.Fatal("chat request should be allowed")
	}
	if d, _ := limiter.Check(ctx, "user:alice", "chat", 1, time.Minute); d.Allowed {
		t.Fatal("second chat request should be rejected")
	}

	if d, _ := limiter.Check(ctx, "user:alice", "search", 1, time.Minute); !d.Allowed {
		t.Error("search budget should be unaffected by the exhausted chat budget")
	}
}

// erroringStore always fails, simulating a lost Redis connection.
type erroringStore struct{}

func (s *erroringStore) AtomicIncrement(ctx context.Context, key string, limit int, window time.Duration) (int, time.Time, bool, error) {
	return 0, time.Time{}, false, errors.New("connection refused")
}
func (s *erroringStore) Delete(ctx context.Context, key string) error { return errors.New("down") }
func (s *erroringStore) KeyCount(ctx context.Context) (int, error)    { return 0, errors.New("down") }
func (s *erroringStore) Purge(ctx context.Context) (int, error)       { return 0, errors.New("down") }

// TestFixedWindowLimiter_FailsOpenOnStoreError verifies that a store outage
// admits the request and surfaces the error to the caller.
func TestFixedWindowLimiter_FailsOpenOnStoreError(t *testing.T) {
	clock := newFakeClock()
	limiter := NewFixedWindowLimiter(&erroringStore{}, clock, NewNoOpMetrics())

	d, err := limiter.Check(context.Background(), "user:alice", "chat", 5, time.Minute)
	if err == nil {
		t.Fatal("expected an error from the failing store")
	}
	if !d.Allowed {
		t.Error("store failure should fail open, not closed")
	}
}

// TestFixedWindowLimiter_Reset verifies that Reset restores the full budget
// for one (key, class) pair without touching others.
func TestFixedWindowLimiter_Reset(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	ctx := context.Background()

	if d, _ := limiter.Check(ctx, "user:alice", "chat", 1, time.Minute); !d.Allowed {
		t.Fatal("first request should be allowed")
	}
	if d, _ := limiter.Check(ctx, "user:eve", "chat", 1, time.Minute); !d.Allowed {
		t.Fatal("other user's request should be allowed")
	}

	if err := limiter.Reset(ctx, "user:alice", "chat"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	if d, _ := limiter.Check(ctx, "user:alice", "chat", 1, time.Minute); !d.Allowed {
		t.Error("request after Reset should be allowed")
	}
	if d, _ := limiter.Check(ctx, "user:eve", "chat", 1, time.Minute); d.Allowed {
		t.Error("Reset must not touch other identifiers")
	}
}

// TestDecision_RetryAfterSeconds verifies rounding up to whole seconds.
func TestDecision_RetryAfterSeconds(t *testing.T) {
	testCases := []struct {
		name       string
		retryAfter time.Duration
		expected   int64
	}{
		{"zero", 0, 0},
		{"negative", -time.Second, 0},
		{"sub-second rounds up", 300 * time.Millisecond, 1},
		{"exact seconds", 5 * time.Second, 5},
		{"fractional rounds up", 5*time.Second + time.Millisecond, 6},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := &Decision{RetryAfter: tc.retryAfter}
			if got := d.RetryAfterSeconds(); got != tc.expected {
				t.Errorf("RetryAfterSeconds() = %d, want %d", got, tc.expected)
			}
		})
	}
}

// TestDecision_ResetAtISO8601 verifies UTC RFC 3339 formatting.
func TestDecision_ResetAtISO8601(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	d := &Decision{ResetAt: time.Date(2026, 3, 1, 21, 30, 0, 0, jst)}
	if got, want := d.ResetAtISO8601(), "2026-03-01T12:30:00Z"; got != want {
		t.Errorf("ResetAtISO8601() = %q, want %q", got, want)
	}
}
