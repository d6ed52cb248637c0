package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/betterforces/swr/internal/logger"
	"github.com/betterforces/swr/pkg/coordinator"
	"github.com/betterforces/swr/pkg/store"
)

// TasksHandler serves the task-status polling endpoint.
type TasksHandler struct {
	coord *coordinator.Coordinator
}

// NewTasksHandler creates the handler.
func NewTasksHandler(coord *coordinator.Coordinator) *TasksHandler {
	return &TasksHandler{coord: coord}
}

// Get handles GET /tasks/{taskID}.
//
//   - 202 {status: processing} with Retry-After while the fetch is in flight;
//   - 200 with the fetched payload once completed (same contract as the
//     resource endpoint);
//   - 500 {status: failed, error} when the fetch failed, carrying the error
//     kind so clients can tell not-found from transient;
//   - 404 once the task record has expired or never existed.
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.coord.Task(r.Context(), taskID)
	if err != nil {
		if store.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, errorResponse("task not found or expired"))
			return
		}
		logger.ErrorCtx(r.Context(), "Task lookup failed",
			logger.KeyTaskID, taskID, logger.KeyError, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("task lookup failed"))
		return
	}

	switch task.Status {
	case store.TaskCompleted:
		writePayload(w, task.Result, false, 0)
	case store.TaskFailed:
		writeJSON(w, http.StatusInternalServerError, FailedResponse{
			Status:    "failed",
			Error:     task.Error,
			ErrorKind: string(task.ErrorKind),
		})
	default:
		w.Header().Set("Retry-After", "2")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
	}
}
