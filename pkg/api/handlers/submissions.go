// Package handlers contains the chi route handlers for the read API.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/betterforces/swr/internal/logger"
	"github.com/betterforces/swr/pkg/coordinator"
)

// SubmissionsHandler serves the cached-read endpoint for user submissions.
type SubmissionsHandler struct {
	coord *coordinator.Coordinator
}

// NewSubmissionsHandler creates the handler.
func NewSubmissionsHandler(coord *coordinator.Coordinator) *SubmissionsHandler {
	return &SubmissionsHandler{coord: coord}
}

// Get handles GET /users/{handle}/submissions.
//
// Responses follow the read contract:
//   - 200 with the raw payload plus Stale/Age headers when data is cached;
//   - 202 with a task handle when the data must first be fetched;
//   - 500 when the lookup itself failed.
func (h *SubmissionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("handle is required"))
		return
	}

	res, err := h.coord.Lookup(r.Context(), handle)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Lookup failed",
			logger.KeyKey, handle, logger.KeyError, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("lookup failed"))
		return
	}

	switch res.Kind {
	case coordinator.ResultData:
		writePayload(w, res.Payload, res.Stale, res.Age)
	case coordinator.ResultPending:
		writePending(w, res.TaskID, res.RetryAfter)
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse("unexpected lookup result"))
	}
}
