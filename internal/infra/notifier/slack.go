package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// SlackConfig contains configuration for Slack webhook notifications.
type SlackConfig struct {
	// Enabled indicates whether Slack notifications are enabled.
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL (includes the
	// authentication token, so it must never be logged).
	WebhookURL string

	// Timeout is the HTTP request timeout for Slack API calls.
	Timeout time.Duration
}

// SlackNotifier sends block notifications to Slack via Incoming Webhook.
//
// A token bucket limiter caps outgoing messages at 1 per second (the Slack
// webhook limit), so a burst of block events cannot flood the channel.
type SlackNotifier struct {
	config     SlackConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSlackNotifier creates a new SlackNotifier with the specified
// configuration.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(1, 1),
	}
}

// slackPayload is the JSON payload sent to the Slack webhook.
type slackPayload struct {
	Text string `json:"text"`
}

// transientError marks a webhook failure worth retrying (5xx or 429).
type transientError struct {
	statusCode int
	retryAfter time.Duration
	message    string
}

func (e *transientError) Error() string {
	return e.message
}

// buildMessage formats a block event as a Slack message.
func buildMessage(event BlockEvent) string {
	return fmt.Sprintf(
		":no_entry: Address `%s` blocked after %d failed authentication attempts (last path: %s). Block expires at %s.",
		event.Address,
		event.FailedAttempts,
		event.LastPath,
		event.BlockedUntil.UTC().Format(time.RFC3339),
	)
}

// sendWebhookRequest posts one message to the webhook. It classifies the
// response so the retry loop can distinguish transient failures from
// permanent ones.
func (s *SlackNotifier) sendWebhookRequest(ctx context.Context, event BlockEvent) error {
	jsonData, err := json.Marshal(slackPayload{Text: buildMessage(event)})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 1 * time.Second
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &transientError{
			statusCode: resp.StatusCode,
			retryAfter: retryAfter,
			message:    "Slack rate limit exceeded",
		}
	}

	if resp.StatusCode >= 500 {
		return &transientError{
			statusCode: resp.StatusCode,
			message:    fmt.Sprintf("Slack API server error: %s", string(body)),
		}
	}

	return fmt.Errorf("Slack API client error %d: %s", resp.StatusCode, string(body))
}

// NotifyBlock sends a Slack notification for a freshly blocked address.
// This method implements the Notifier interface.
//
// Transient failures (5xx, 429) are retried once with backoff. Client
// errors fail immediately.
func (s *SlackNotifier) NotifyBlock(ctx context.Context, event BlockEvent) error {
	const (
		maxAttempts = 2
		baseDelay   = 5 * time.Second
	)

	requestID := uuid.New().String()

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.sendWebhookRequest(ctx, event)
		if err == nil {
			slog.Info("block notification sent",
				slog.String("request_id", requestID),
				slog.String("address", event.Address),
				slog.Int("attempt", attempt))
			return nil
		}

		lastErr = err

		var transient *transientError
		if !errors.As(err, &transient) {
			slog.Error("block notification failed with non-retryable error",
				slog.String("request_id", requestID),
				slog.String("address", event.Address),
				slog.Any("error", err))
			return err
		}

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			if transient.retryAfter > 0 {
				delay = transient.retryAfter
			}
			slog.Warn("block notification failed, retrying",
				slog.String("request_id", requestID),
				slog.String("address", event.Address),
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	slog.Error("block notification failed after all retries",
		slog.String("request_id", requestID),
		slog.String("address", event.Address),
		slog.Any("error", lastErr))
	return fmt.Errorf("slack notification failed after %d attempts: %w", maxAttempts, lastErr)
}
