package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"kb-gate/internal/handler/http/respond"
	"kb-gate/internal/observability/reqlog"
	"kb-gate/pkg/ipblock"
)

// RequestLogEntry is the JSON shape of one request log entry.
type RequestLogEntry struct {
	Timestamp     string `json:"timestamp"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	ClientAddress string `json:"client_address"`
	SubjectID     string `json:"subject_id,omitempty"`
	Status        int    `json:"status"`
	DurationMS    int64  `json:"duration_ms"`
}

// RequestLogHandler serves the in-memory request log, newest first.
// Supports a "limit" query parameter to cap the number of entries returned.
type RequestLogHandler struct {
	Log *reqlog.Buffer
}

func (h *RequestLogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.Log.Snapshot()
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respond.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}

	out := make([]RequestLogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, RequestLogEntry{
			Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
			Method:        e.Method,
			Path:          e.Path,
			ClientAddress: e.ClientAddress,
			SubjectID:     e.SubjectID,
			Status:        e.Status,
			DurationMS:    e.Duration.Milliseconds(),
		})
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"enabled": h.Log.Enabled(),
		"count":   len(out),
		"entries": out,
	})
}

// BlockAdminHandler lets operators inspect and lift IP blocks without
// waiting for expiry.
//
//	GET    /api/admin/blocks            -> tracked address count
//	DELETE /api/admin/blocks/{address}  -> clear failures and any block
type BlockAdminHandler struct {
	Guard *ipblock.Guard
}

func (h *BlockAdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respond.JSON(w, http.StatusOK, map[string]any{
			"tracked_addresses": h.Guard.Len(),
		})
	case http.MethodDelete:
		address := strings.TrimPrefix(r.URL.Path, "/api/admin/blocks/")
		if address == "" || strings.Contains(address, "/") {
			respond.Error(w, http.StatusBadRequest, "invalid address")
			return
		}
		h.Guard.Clear(address)
		respond.JSON(w, http.StatusOK, map[string]any{
			"cleared": address,
		})
	default:
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
