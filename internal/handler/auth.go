// Package handler provides HTTP handlers for the development stub server.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bankr-ai/assistant-client/internal/middleware"
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/internal/service"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

// AuthHandler handles signup, login, and logout.
type AuthHandler struct {
	users     *service.UserService
	jwtSecret string
	jwtTTL    time.Duration
	logger    *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users *service.UserService, jwtSecret string, jwtTTL time.Duration, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		users:     users,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
		logger:    log,
	}
}

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.users.Signup(req.Email, req.FullName, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	h.respondWithSession(w, http.StatusCreated, user)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.Authenticate(creds.Email, creds.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	h.respondWithSession(w, http.StatusOK, user)
}

// Logout handles POST /auth/logout. Tokens are stateless, so this only
// acknowledges the revocation.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, status int, user *model.User) {
	token, err := middleware.IssueToken(h.jwtSecret, user.ID, user.Email, h.jwtTTL)
	if err != nil {
		h.logger.Error("failed to issue token")
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}

	writeJSON(w, status, model.AuthResponse{
		User:    *user,
		Session: model.Session{AccessToken: token},
	})
}
