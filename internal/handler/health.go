package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/photo-share/internal/repository"
)

const healthTimeout = 2 * time.Second

// HealthHandler reports whether the process can reach its store.
type HealthHandler struct {
	store  repository.Store
	logger *slog.Logger
}

func NewHealthHandler(store repository.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

// HandleHealth serves GET /healthz: 200 {"status":"ok"} when a cheap count
// against the store succeeds, 503 otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if _, err := h.store.Users().Count(ctx); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
