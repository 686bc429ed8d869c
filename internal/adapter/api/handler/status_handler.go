package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// StatusProvider reports the backend ingest counters.
type StatusProvider interface {
	Status(ctx context.Context) (domain.IngestStatus, error)
}

// StatusHandler serves the health and ingest status endpoints.
type StatusHandler struct {
	status StatusProvider
	logger *slog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(status StatusProvider, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{status: status, logger: logger}
}

// HealthCheck is a simple health check endpoint.
func (h *StatusHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports events received, written and pending.
// GET /status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to get ingest status", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, st)
}

func (h *StatusHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
