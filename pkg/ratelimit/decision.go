package ratelimit

import (
	"fmt"
	"time"
)

// Decision is the result of a fixed-window admission check.
//
// It carries everything the HTTP layer needs to build rate-limit response
// headers without reaching back into the store.
type Decision struct {
	// Key is the client identifier the decision applies to
	// (e.g. "user:alice" or "ip:203.0.113.7").
	Key string

	// Class is the route class whose budget was checked.
	Class string

	// Allowed reports whether the request was admitted.
	Allowed bool

	// Limit is the maximum number of requests per window.
	Limit int

	// Remaining is the number of requests left in the current window.
	// Zero when the limit has been reached.
	Remaining int

	// ResetAt is when the current window resets.
	ResetAt time.Time

	// RetryAfter is how long the client should wait before retrying.
	RetryAfter time.Duration
}

// String returns a human-readable representation of the decision.
func (d *Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf("Decision{Allowed: true, Key: %s, Class: %s, Remaining: %d/%d, ResetAt: %s}",
			d.Key, d.Class, d.Remaining, d.Limit, d.ResetAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("Decision{Allowed: false, Key: %s, Class: %s, Limit: %d, RetryAfter: %s}",
		d.Key, d.Class, d.Limit, d.RetryAfter)
}

// RetryAfterSeconds returns the retry delay in whole seconds, never negative,
// rounded up so clients do not retry a moment too early. Suitable for the
// Retry-After header.
func (d *Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int64((d.RetryAfter + time.Second - 1) / time.Second)
	return secs
}

// ResetAtISO8601 returns the window reset time formatted for the
// X-RateLimit-Reset header.
func (d *Decision) ResetAtISO8601() string {
	return d.ResetAt.UTC().Format(time.RFC3339)
}
