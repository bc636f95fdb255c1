package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bankr-ai/assistant-client/internal/assistant"
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

// freeMessageLimit mirrors the backend free tier: two messages before a
// subscription is required.
const freeMessageLimit = 2

var (
	// ErrChatNotFound is returned for unknown or foreign chat ids.
	ErrChatNotFound = errors.New("chat not found")
	// ErrFreeLimitReached is returned when an unsubscribed user has used
	// up the free tier.
	ErrFreeLimitReached = errors.New("you have reached your free message limit")
)

// ChatService holds chats in memory and generates assistant replies.
type ChatService struct {
	users     *UserService
	responder assistant.Responder
	logger    *logger.Logger

	mu    sync.RWMutex
	chats map[string]*model.Chat
}

// NewChatService creates an empty chat service.
func NewChatService(users *UserService, responder assistant.Responder, log *logger.Logger) *ChatService {
	return &ChatService{
		users:     users,
		responder: responder,
		logger:    log.WithComponent("chats"),
		chats:     make(map[string]*model.Chat),
	}
}

// List returns all chats owned by the user.
func (s *ChatService) List(userID string) []model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Chat, 0)
	for _, chat := range s.chats {
		if chat.UserID == userID && !chat.IsArchived {
			out = append(out, cloneChat(chat))
		}
	}
	return out
}

// Create creates a chat for the user.
func (s *ChatService) Create(userID, title string) *model.Chat {
	now := time.Now()
	chat := &model.Chat{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     title,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []model.Message{},
	}

	s.mu.Lock()
	s.chats[chat.ID] = chat
	s.mu.Unlock()

	clone := cloneChat(chat)
	return &clone
}

// Delete removes a chat owned by the user.
func (s *ChatService) Delete(userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return ErrChatNotFound
	}
	delete(s.chats, chatID)
	return nil
}

// SendMessage enforces the free tier, stores the user turn, and returns
// the generated assistant turn.
func (s *ChatService) SendMessage(ctx context.Context, userID, chatID, content string) (*model.Message, error) {
	user, err := s.users.Get(userID)
	if err != nil {
		return nil, err
	}
	if !user.HasPaidAccess && user.MessageCount >= freeMessageLimit {
		return nil, ErrFreeLimitReached
	}

	s.mu.Lock()
	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		s.mu.Unlock()
		return nil, ErrChatNotFound
	}

	now := time.Now()
	userMsg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChatID:    chatID,
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	chat.Messages = append(chat.Messages, userMsg)

	history := make([]assistant.Message, len(chat.Messages))
	for i, m := range chat.Messages {
		history[i] = assistant.Message{Role: string(m.Role), Content: m.Content}
	}
	s.mu.Unlock()

	replyText, err := s.responder.Reply(ctx, history)
	if err != nil {
		s.logger.Error("assistant reply failed", zap.Error(err))
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	reply := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChatID:    chatID,
		Role:      model.RoleModel,
		Content:   replyText,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	s.mu.Lock()
	if chat, ok := s.chats[chatID]; ok {
		chat.Messages = append(chat.Messages, reply)
		chat.UpdatedAt = reply.CreatedAt
	}
	s.mu.Unlock()

	s.users.IncrementMessageCount(userID)
	return &reply, nil
}

func cloneChat(c *model.Chat) model.Chat {
	clone := *c
	clone.Messages = make([]model.Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return clone
}
