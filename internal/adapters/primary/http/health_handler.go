package http

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
)

const readinessTimeout = 5 * time.Second

// HealthHandler handles health check requests
type HealthHandler struct {
	db          ports.HealthChecker
	jobs        ports.JobStatusProvider
	connections ports.ConnectionCounter
	clock       clockwork.Clock
	startTime   time.Time
	version     string
}

// NewHealthHandler creates a new health handler. jobs and connections may be
// nil when the process runs without the scheduler or the realtime layer.
func NewHealthHandler(
	db ports.HealthChecker,
	jobs ports.JobStatusProvider,
	connections ports.ConnectionCounter,
	clock clockwork.Clock,
	version string,
) *HealthHandler {
	return &HealthHandler{
		db:          db,
		jobs:        jobs,
		connections: connections,
		clock:       clock,
		startTime:   clock.Now(),
		version:     version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// DetailedHealthResponse adds runtime, realtime and scheduler state.
type DetailedHealthResponse struct {
	HealthResponse
	Memory struct {
		Alloc      uint64 `json:"alloc_bytes"`
		TotalAlloc uint64 `json:"total_alloc_bytes"`
		Sys        uint64 `json:"sys_bytes"`
		NumGC      uint32 `json:"num_gc"`
	} `json:"memory"`
	Goroutines  int                 `json:"goroutines"`
	Connections int                 `json:"connections"`
	Jobs        []ports.JobSnapshot `json:"jobs"`
}

// HandleLiveness handles liveness probe requests (is the service running?)
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles readiness probe requests (can the service accept traffic?)
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := h.baseResponse(ctx)

	statusCode := http.StatusOK
	if resp.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	WriteJSON(w, statusCode, resp)
}

// HandleHealth handles detailed health check requests (for monitoring/debugging)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := DetailedHealthResponse{
		HealthResponse: h.baseResponse(ctx),
		Goroutines:     runtime.NumGoroutine(),
		Jobs:           []ports.JobSnapshot{},
	}
	if resp.Status != "healthy" {
		resp.Status = "degraded"
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	resp.Memory.Alloc = memStats.Alloc
	resp.Memory.TotalAlloc = memStats.TotalAlloc
	resp.Memory.Sys = memStats.Sys
	resp.Memory.NumGC = memStats.NumGC

	if h.connections != nil {
		resp.Connections = h.connections.Count()
	}
	if h.jobs != nil {
		resp.Jobs = h.jobs.Statuses()
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	WriteJSON(w, statusCode, resp)
}

func (h *HealthHandler) baseResponse(ctx context.Context) HealthResponse {
	checks := make(map[string]Check)
	status := "healthy"

	dbCheck := h.checkDatabase(ctx)
	checks["database"] = dbCheck
	if dbCheck.Status != "healthy" {
		status = "unhealthy"
	}

	now := h.clock.Now()
	return HealthResponse{
		Status:    status,
		Timestamp: now.UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	}
}

// checkDatabase checks the database connection
func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	if h.db == nil {
		return Check{
			Status:  "unhealthy",
			Message: "Database not configured",
		}
	}

	start := h.clock.Now()
	err := h.db.Ping(ctx)
	latency := h.clock.Since(start)

	if err != nil {
		return Check{
			Status:  "unhealthy",
			Message: err.Error(),
			Latency: latency.String(),
		}
	}

	return Check{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}
