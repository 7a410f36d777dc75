package api

import (
	"net/http"
	"time"

	"trading-journal/internal/apperr"
	"trading-journal/internal/models"
)

// AdminUser is an account as listed to administrators. The API key is omitted.
type AdminUser struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

// UsersResponse wraps the admin user listing.
type UsersResponse struct {
	Success bool        `json:"success"`
	Users   []AdminUser `json:"users"`
}

// ListUsersHandler lists every account.
func (h *Handler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.respondError(w, r, apperr.Internal("failed to list users", err))
		return
	}

	out := make([]AdminUser, 0, len(users))
	for _, u := range users {
		out = append(out, AdminUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt})
	}
	h.respondJSON(w, http.StatusOK, UsersResponse{Success: true, Users: out})
}
