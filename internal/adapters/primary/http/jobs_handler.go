package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
)

// JobsHandler exposes scheduler state and manual runs to operators.
type JobsHandler struct {
	jobs         ports.JobRunner
	errorHandler *ErrorHandler
}

func NewJobsHandler(jobs ports.JobRunner, errorHandler *ErrorHandler) *JobsHandler {
	return &JobsHandler{jobs: jobs, errorHandler: errorHandler}
}

// RegisterRoutes mounts the job routes on an authenticated router.
func (h *JobsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/{name}/run", h.HandleRun)
}

// HandleList returns every registered job ordered by name.
func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteList(w, h.jobs.Statuses())
}

// HandleRun runs a job synchronously and returns its fresh status.
// POST /api/v1/jobs/{name}/run
func (h *JobsHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.jobs.RunNow(r.Context(), name); HandleError(w, r, err, h.errorHandler) {
		return
	}

	for _, job := range h.jobs.Statuses() {
		if job.Name == name {
			WriteJSON(w, http.StatusOK, job)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
