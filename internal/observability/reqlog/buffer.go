// Package reqlog keeps a bounded, in-memory history of request outcomes for
// observability. The buffer is strictly FIFO with a fixed capacity: when it
// is full, the oldest entry is evicted. Nothing is ever written to durable
// storage.
package reqlog

import (
	"sync"
	"time"
)

// DefaultMaxLogs is the default buffer capacity.
const DefaultMaxLogs = 1000

// Entry is one recorded request outcome. Entries are immutable after
// insertion.
type Entry struct {
	Timestamp     time.Time
	Method        string
	Path          string
	ClientAddress string
	// SubjectID is set only for authenticated requests.
	SubjectID string
	Status    int
	Duration  time.Duration
}

// Buffer is a fixed-capacity ring buffer of request log entries.
//
// When disabled, Append is a no-op with no side effects, so callers on hot
// paths should check Enabled before even constructing an Entry.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	head    int // index of the oldest entry
	size    int
	cap     int
	enabled bool
}

// NewBuffer creates a Buffer with the given capacity.
// A non-positive capacity falls back to DefaultMaxLogs.
func NewBuffer(capacity int, enabled bool) *Buffer {
	if capacity <= 0 {
		capacity = DefaultMaxLogs
	}
	return &Buffer{
		entries: make([]Entry, capacity),
		cap:     capacity,
		enabled: enabled,
	}
}

// Enabled reports whether logging is enabled.
func (b *Buffer) Enabled() bool {
	return b.enabled
}

// Append records an entry, evicting the oldest one when the buffer is full.
// Logging is best-effort: when the buffer is disabled this does nothing.
func (b *Buffer) Append(e Entry) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.size) % b.cap
	b.entries[tail] = e
	if b.size < b.cap {
		b.size++
	} else {
		// Full: the slot we just wrote was the head; advance it.
		b.head = (b.head + 1) % b.cap
	}
}

// Len returns the number of entries currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Snapshot returns the entries most-recent-first.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, b.size)
	for i := 0; i < b.size; i++ {
		// Newest entry sits just before the tail.
		idx := (b.head + b.size - 1 - i + b.cap) % b.cap
		out[i] = b.entries[idx]
	}
	return out
}
