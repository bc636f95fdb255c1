package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bankr-ai/assistant-client/internal/middleware"
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/internal/service"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

// UserHandler handles profile and entitlement endpoints.
type UserHandler struct {
	users  *service.UserService
	logger *logger.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users *service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: log,
	}
}

// Me handles GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.users.Get(userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Update handles PATCH /users/me
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req model.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.UpdateProfile(userID, req)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SyncIAPSubscription handles POST /users/{id}/sync-iap-subscription
func (h *UserHandler) SyncIAPSubscription(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	targetID := chi.URLParam(r, "id")

	if targetID != userID {
		writeError(w, http.StatusForbidden, "cannot sync another user's subscription")
		return
	}

	if err := h.users.SyncIAP(targetID); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to sync subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}
