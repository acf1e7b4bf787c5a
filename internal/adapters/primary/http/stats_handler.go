package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/issues-insights-backend/internal/adapters/primary/validation"
	"github.com/lorrc/issues-insights-backend/internal/core/domain"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
)

// StatsHandler serves the daily aggregate history.
type StatsHandler struct {
	stats        ports.StatsService
	errorHandler *ErrorHandler
}

func NewStatsHandler(stats ports.StatsService, errorHandler *ErrorHandler) *StatsHandler {
	return &StatsHandler{stats: stats, errorHandler: errorHandler}
}

// RegisterRoutes mounts the stats routes on an authenticated router.
func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats/daily", h.HandleDaily)
}

// HandleDaily returns one row per recorded day, newest first.
// GET /api/v1/stats/daily?days=30
func (h *StatsHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	// 0 selects the service default window.
	days, err := validation.ParseIntQueryParam(r, "days", 0)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	err = validation.NewValidator().Range("days", days, 0, domain.MaxHistoryDays).Err()
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	history, err := h.stats.History(r.Context(), days)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteList(w, history)
}
