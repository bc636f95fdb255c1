package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/bankr-ai/assistant-client/internal/middleware"
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/internal/service"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

// maxMessageBytes bounds a single message body.
const maxMessageBytes = 100000

// ChatHandler handles chat and message endpoints.
type ChatHandler struct {
	chats  *service.ChatService
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chats *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chats:  chats,
		logger: log,
	}
}

// List handles GET /chats
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	writeJSON(w, http.StatusOK, h.chats.List(userID))
}

// Create handles POST /chats
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req model.CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Title) > 256 || !utf8.ValidString(req.Title) {
		writeError(w, http.StatusBadRequest, "invalid title")
		return
	}

	writeJSON(w, http.StatusCreated, h.chats.Create(userID, req.Title))
}

// Delete handles DELETE /chats/{id}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chatID := chi.URLParam(r, "id")

	if err := h.chats.Delete(userID, chatID); err != nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /chats/{id}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chatID := chi.URLParam(r, "id")

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" || len(req.Content) > maxMessageBytes || !utf8.ValidString(req.Content) {
		writeError(w, http.StatusBadRequest, "invalid message content")
		return
	}

	msg, err := h.chats.SendMessage(r.Context(), userID, chatID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFreeLimitReached):
			// Both the machine code and the legacy message text mark the
			// quota rejection; older clients match on the text.
			writeCodedError(w, http.StatusForbidden,
				"You have reached your free message limit. Please subscribe to continue.",
				"free_message_limit")
		case errors.Is(err, service.ErrChatNotFound):
			writeError(w, http.StatusNotFound, "chat not found")
		default:
			h.logger.Error("failed to send message")
			writeError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
