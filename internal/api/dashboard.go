package api

import (
	"net/http"
	"strconv"

	"trading-journal/internal/apperr"
	"trading-journal/internal/metrics"
)

const (
	defaultRangeDays = 30
	maxRangeDays     = 365
)

// DashboardResponse wraps the dashboard payload.
type DashboardResponse struct {
	Success bool               `json:"success"`
	Data    *metrics.Dashboard `json:"data"`
}

// DashboardHandler returns summary metrics, the equity curve and recent trades.
func (h *Handler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	rangeDays := defaultRangeDays
	if raw := r.URL.Query().Get("range"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, r, apperr.Validation("Invalid request data", apperr.FieldError{Field: "range", Message: "must be an integer"}))
			return
		}
		rangeDays = max(1, min(n, maxRangeDays))
	}

	dash, err := h.metrics.Dashboard(r.Context(), claimsFromContext(r.Context()).Subject, rangeDays)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	dash.RecentTrades = nonNil(dash.RecentTrades)
	h.respondJSON(w, http.StatusOK, DashboardResponse{Success: true, Data: dash})
}
