// Package api is the JSON HTTP boundary of the journal: the trading terminal
// webhook, the health probe and the dashboard API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"trading-journal/internal/apperr"
	"trading-journal/internal/auth"
	"trading-journal/internal/journal"
	"trading-journal/internal/metrics"
	"trading-journal/internal/models"
	"trading-journal/internal/store"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Store is the read-side persistence the handlers use directly.
type Store interface {
	Ping(ctx context.Context) error
	UserByID(ctx context.Context, userID string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListTrades(ctx context.Context, userID string, f store.TradeFilter) ([]models.Trade, error)
}

// Options configures the HTTP layer.
type Options struct {
	Version          string
	RequestTimeout   time.Duration
	WebhookRateLimit float64
	WebhookBurst     int
}

// Handler holds dependencies for the API endpoints.
type Handler struct {
	log     *zap.Logger
	store   Store
	manager *journal.Manager
	metrics *metrics.Aggregator
	auth    *auth.Service
	limiter *keyLimiter
	opts    Options
	now     func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(log *zap.Logger, s Store, manager *journal.Manager, agg *metrics.Aggregator, authSvc *auth.Service, opts Options) *Handler {
	return &Handler{
		log:     log.Named("api"),
		store:   s,
		manager: manager,
		metrics: agg,
		auth:    authSvc,
		limiter: newKeyLimiter(opts.WebhookRateLimit, opts.WebhookBurst),
		opts:    opts,
		now:     time.Now,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Kind    apperr.Kind         `json:"kind"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("Failed to write response", zap.Error(err))
	}
}

// respondError maps err to its status. Internal causes are logged, never sent.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal("Internal server error", err)
	}

	if appErr.Kind == apperr.KindInternal {
		h.log.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Kind: apperr.KindInternal})
		return
	}

	h.respondJSON(w, apperr.HTTPStatus(appErr.Kind), ErrorResponse{
		Error:   appErr.Message,
		Kind:    appErr.Kind,
		Details: appErr.Details,
	})
}

// decodeJSON reads a single JSON object into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("Invalid JSON body", apperr.FieldError{Field: "body", Message: err.Error()})
	}
	return nil
}
