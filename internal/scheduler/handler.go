package scheduler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/httputil"
)

// Handler exposes an internal trigger for an immediate scheduler pass.
type Handler struct {
	job    *Job
	logger *slog.Logger
}

func NewHandler(job *Job, logger *slog.Logger) *Handler {
	return &Handler{job: job, logger: logger}
}

// Register mounts the trigger endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/internal/scheduler/run", h.HandleRun)
}

type runResponse struct {
	Updated int `json:"updated"`
}

// HandleRun handles POST /internal/scheduler/run. The trigger bypasses the
// lease: an operator asking for a pass gets one.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	updated, err := h.job.Pass(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "manual scheduler pass failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "scheduler pass failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runResponse{Updated: updated})
}
