package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Services  HealthServices `json:"services"`
	Error     string         `json:"error,omitempty"`
}

// HealthServices is the per dependency status.
type HealthServices struct {
	Database    string `json:"database"`
	Application string `json:"application"`
}

// HealthHandler pings the database and answers 200 or 503.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC(),
		Version:   h.opts.Version,
		Services:  HealthServices{Database: "connected", Application: "running"},
	}

	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Error("Health check failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Services.Database = "disconnected"
		resp.Error = "Database connection failed"
		h.respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}
