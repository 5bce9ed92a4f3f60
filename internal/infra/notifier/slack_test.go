package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testEvent() BlockEvent {
	return BlockEvent{
		Address:        "203.0.113.7",
		FailedAttempts: 10,
		BlockedUntil:   time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC),
		LastPath:       "/api/chat",
	}
}

func newSlackNotifier(url string) *SlackNotifier {
	return NewSlackNotifier(SlackConfig{
		Enabled:    true,
		WebhookURL: url,
		Timeout:    5 * time.Second,
	})
}

func TestSlackNotifier_SendsWebhook(t *testing.T) {
	var gotPayload slackPayload
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := newSlackNotifier(server.URL)
	if err := n.NotifyBlock(context.Background(), testEvent()); err != nil {
		t.Fatalf("NotifyBlock returned error: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	for _, want := range []string{"203.0.113.7", "10 failed authentication attempts", "/api/chat", "2026-03-01T12:15:00Z"} {
		if !strings.Contains(gotPayload.Text, want) {
			t.Errorf("message %q does not contain %q", gotPayload.Text, want)
		}
	}
}

func TestSlackNotifier_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer server.Close()

	n := newSlackNotifier(server.URL)
	if err := n.NotifyBlock(context.Background(), testEvent()); err == nil {
		t.Fatal("NotifyBlock returned nil error for 400 response")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("webhook called %d times, want 1 (no retry on client error)", got)
	}
}

func TestSlackNotifier_RetriesAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := newSlackNotifier(server.URL)
	if err := n.NotifyBlock(context.Background(), testEvent()); err != nil {
		t.Fatalf("NotifyBlock returned error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("webhook called %d times, want 2", got)
	}
}

func TestSlackNotifier_ServerErrorHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream sad", http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	n := newSlackNotifier(server.URL)
	start := time.Now()
	err := n.NotifyBlock(ctx, testEvent())
	if err == nil {
		t.Fatal("NotifyBlock returned nil error")
	}
	// The 5xx triggers the retry path; the expiring context must cut the
	// backoff short instead of sleeping the full delay.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("NotifyBlock took %v, want prompt return on context expiry", elapsed)
	}
}

func TestNoOpNotifier(t *testing.T) {
	n := &NoOpNotifier{}
	if err := n.NotifyBlock(context.Background(), testEvent()); err != nil {
		t.Errorf("NotifyBlock returned error: %v", err)
	}
}
