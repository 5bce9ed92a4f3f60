// Package respond provides utilities for sending HTTP responses in JSON
// format. Error responses are sanitized so internal detail (upstream error
// bodies, credentials, stack traces) never reaches a client.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSON writes a JSON response with the given status code and body.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// Error writes a JSON error body {"error": msg} with the given status code.
// The message must already be client-safe; use SafeError when it may not be.
func Error(w http.ResponseWriter, code int, msg string) {
	JSON(w, code, map[string]string{"error": msg})
}

// SafeError writes a generic error body for the status code and logs the real
// error internally with credentials masked. This is the path for any error
// whose message the gate did not author itself.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	slog.Default().Error("request failed",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))

	msg := "internal server error"
	switch code {
	case http.StatusUnauthorized:
		msg = "unauthorized"
	case http.StatusForbidden:
		msg = "forbidden"
	case http.StatusTooManyRequests:
		msg = "too many requests"
	}
	JSON(w, code, map[string]string{"error": msg})
}
