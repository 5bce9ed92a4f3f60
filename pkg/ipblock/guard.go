// Package ipblock tracks consecutive authentication failures per source
// address and temporarily blocks offenders.
//
// Block state is deliberately coupled to authentication outcomes, not to
// request volume: a legitimate high-traffic client that always presents valid
// credentials never trips this guard, while a credential-guessing client is
// penalized regardless of its request rate.
package ipblock

import (
	"sync"
	"time"
)

// Clock abstracts time reads for testing.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// record tracks failures for one source address.
// The address moves Clean -> Accumulating -> Blocked -> Clean: Clear deletes
// the record, and an expired block self-heals on the next IsBlocked check.
type record struct {
	attempts     int
	lastFailure  time.Time
	blockedUntil time.Time
}

// Config holds the guard's thresholds.
type Config struct {
	// MaxFailedAttempts is the number of consecutive failures after which an
	// address is blocked. Default: 10.
	MaxFailedAttempts int

	// BlockDuration is how long an address stays blocked. Default: 15m.
	BlockDuration time.Duration

	// MaxKeys is the size threshold above which dead records (expired
	// blocks, long-idle failure counts) are purged opportunistically during
	// RecordFailure. Default: 10000.
	MaxKeys int

	// Clock provides time reads. Default: system time.
	Clock Clock
}

// Guard is a thread-safe failure tracker keyed by source address.
//
// RecordFailure and IsBlocked for one address behave as if serialized: a
// single mutex guards the record map, so concurrent failures can never both
// observe attempts below the threshold and both skip the block transition.
type Guard struct {
	mu      sync.Mutex
	records map[string]*record

	maxFailedAttempts int
	blockDuration     time.Duration
	maxKeys           int
	clock             Clock
}

// NewGuard creates a Guard with the given configuration.
func NewGuard(config Config) *Guard {
	if config.MaxFailedAttempts <= 0 {
		config.MaxFailedAttempts = 10
	}
	if config.BlockDuration <= 0 {
		config.BlockDuration = 15 * time.Minute
	}
	if config.MaxKeys <= 0 {
		config.MaxKeys = 10000
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	return &Guard{
		records:           make(map[string]*record),
		maxFailedAttempts: config.MaxFailedAttempts,
		blockDuration:     config.BlockDuration,
		maxKeys:           config.MaxKeys,
		clock:             config.Clock,
	}
}

// RecordFailure registers one authentication failure for the address.
// It returns true when this failure is the one that transitions the address
// into the Blocked state, so callers can alert exactly once per block.
func (g *Guard) RecordFailure(address string) bool {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.records) > g.maxKeys {
		g.purgeLocked(now)
	}

	r, exists := g.records[address]
	if !exists {
		r = &record{}
		g.records[address] = r
	}

	r.attempts++
	r.lastFailure = now
	if r.attempts >= g.maxFailedAttempts {
		r.blockedUntil = now.Add(g.blockDuration)
		// Only the failure that crosses the threshold is a transition;
		// further failures just extend the block.
		return r.attempts == g.maxFailedAttempts
	}
	return false
}

// Clear deletes the record for the address entirely. Called after a
// successful authentication; a previously blocked address becomes unblocked
// immediately, even if its block has not elapsed.
func (g *Guard) Clear(address string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, address)
}

// IsBlocked reports whether the address is currently blocked.
//
// Expiry is lazy: when the block has timed out, the record is deleted here
// and false is returned. There is no background sweep; a blocked address
// self-heals on its next check after the timeout.
func (g *Guard) IsBlocked(address string) bool {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	r, exists := g.records[address]
	if !exists {
		return false
	}
	if !r.blockedUntil.IsZero() && now.After(r.blockedUntil) {
		delete(g.records, address)
		return false
	}
	return r.attempts >= g.maxFailedAttempts
}

// Len returns the number of tracked addresses.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// Purge removes dead records and returns how many were removed: blocked
// records whose block has expired, and accumulating records with no failure
// for longer than the block duration. Evicting a stale accumulating record
// forgets its sub-threshold failures, the same forgiveness an expired block
// already gets.
func (g *Guard) Purge() int {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.purgeLocked(now)
}

// purgeLocked removes expired and stale records. Caller must hold g.mu.
func (g *Guard) purgeLocked(now time.Time) int {
	purged := 0
	for address, r := range g.records {
		expired := !r.blockedUntil.IsZero() && now.After(r.blockedUntil)
		stale := r.blockedUntil.IsZero() && now.Sub(r.lastFailure) > g.blockDuration
		if expired || stale {
			delete(g.records, address)
			purged++
		}
	}
	return purged
}
