// Package notifier provides abstraction for sending security notifications.
// It defines the Notifier interface which allows different notification
// mechanisms (Slack, email, etc.) to be used interchangeably through
// dependency injection.
//
// The package includes an implementation for Slack Incoming Webhooks and a
// no-op notifier for when notifications are disabled.
package notifier

import (
	"context"
	"time"
)

// BlockEvent describes a client address that just crossed the failed-attempt
// threshold and was blocked.
type BlockEvent struct {
	// Address is the blocked client address.
	Address string

	// FailedAttempts is the number of failures accumulated before the block.
	FailedAttempts int

	// BlockedUntil is when the block expires.
	BlockedUntil time.Time

	// LastPath is the request path of the failure that triggered the block.
	LastPath string
}

// Notifier is an interface for sending block notifications.
// Implementations should handle rate limiting, retries, and error logging
// internally.
type Notifier interface {
	// NotifyBlock sends a notification about a client address that was
	// just blocked for repeated authentication failures.
	//
	// Implementations should:
	//   - Generate a unique request ID for tracing
	//   - Apply rate limiting to prevent webhook abuse
	//   - Retry transient failures with backoff
	//   - Respect context cancellation
	NotifyBlock(ctx context.Context, event BlockEvent) error
}
