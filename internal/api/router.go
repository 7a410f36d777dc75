package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"trading-journal/internal/apperr"
)

// NewRouter wires every route. CORS and request logging wrap the router so
// preflight requests are answered before route matching.
func (h *Handler) NewRouter() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	webhooks := r.PathPrefix("/webhooks").Subrouter()
	webhooks.Use(h.withTimeout, h.requireAPIKey, h.rateLimit)
	webhooks.HandleFunc("/trade", h.WebhookTradeHandler).Methods(http.MethodPost)
	webhooks.HandleFunc("/trade", h.WebhookRecentTradesHandler).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/register", h.RegisterHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.LoginHandler).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.withTimeout, h.requireSession)
	api.HandleFunc("/me", h.MeHandler).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", h.DashboardHandler).Methods(http.MethodGet)
	api.HandleFunc("/trades", h.ListTradesHandler).Methods(http.MethodGet)
	api.HandleFunc("/trades", h.CreateTradeHandler).Methods(http.MethodPost)
	api.HandleFunc("/trades/{id}/close", h.CloseTradeHandler).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.requireAdmin)
	admin.HandleFunc("/users", h.ListUsersHandler).Methods(http.MethodGet)

	return cors(h.logRequests(r))
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "Route not found", Kind: apperr.KindNotFound})
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed", Kind: "method_not_allowed"})
}
