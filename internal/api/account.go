package api

import (
	"net/http"

	"trading-journal/internal/auth"
	"trading-journal/internal/models"
)

// UserResponse wraps a single account.
type UserResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	User    *models.User `json:"user"`
}

// RegisterHandler creates an account and returns it with its webhook API key.
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, UserResponse{Success: true, Message: "User created successfully", User: user})
}

// LoginHandler exchanges credentials for a session token.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}

	session, err := h.auth.Login(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, session)
}

// MeHandler returns the session's account, API key included.
func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessionUser(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}
