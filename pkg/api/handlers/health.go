package handlers

import (
	"net/http"
	"time"

	"github.com/betterforces/swr/pkg/store"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	store   *store.Store
	started time.Time
}

// NewHealthHandler creates the handler.
func NewHealthHandler(st *store.Store) *HealthHandler {
	return &HealthHandler{store: st, started: time.Now()}
}

// Live handles GET /health. It answers 200 as long as the process is up.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}))
}

// Ready handles GET /health/ready. It checks that the store is usable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("store unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{"status": "ok"}))
}
