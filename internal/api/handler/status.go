package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Web5design/MediaCrusher/internal/domain"
)

// Store is the subset of the history store the handler needs.
type Store interface {
	Recent(ctx context.Context, limit int) ([]domain.ReplyRecord, error)
	Stats(ctx context.Context) (map[domain.Outcome]int, error)
}

// DispatcherStatus exposes dispatcher liveness for readiness checks.
type DispatcherStatus interface {
	LastPoll() time.Time
	LastError() string
}

// StatusHandler serves bot health and reply history.
type StatusHandler struct {
	store      Store
	dispatcher DispatcherStatus
	logger     *slog.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(store Store, dispatcher DispatcherStatus, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{store: store, dispatcher: dispatcher, logger: logger}
}

// Live reports process liveness.
func (h *StatusHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the dispatcher has completed a poll yet.
func (h *StatusHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}

	if h.dispatcher != nil {
		last := h.dispatcher.LastPoll()
		resp["last_poll"] = last
		if lastErr := h.dispatcher.LastError(); lastErr != "" {
			resp["last_error"] = lastErr
		}
		if last.IsZero() {
			resp["status"] = "starting"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Stats returns reply counts grouped by outcome.
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load stats"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": stats})
}

// Replies returns recent reply records, newest first.
func (h *StatusHandler) Replies(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load reply history", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load history"})
		return
	}
	if records == nil {
		records = []domain.ReplyRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"replies": records})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
