package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// MessageState distinguishes remote-confirmed messages from locally
// synthesized placeholders awaiting a remote response.
type MessageState string

const (
	// StateConfirmed marks a message assigned by the remote, or a user
	// message the pipeline has committed locally.
	StateConfirmed MessageState = "confirmed"
	// StatePending marks an assistant placeholder shown while a send is in
	// flight. At most one pending message exists per chat, and it never
	// survives the completion of a pipeline operation.
	StatePending MessageState = "pending"
)

// Message represents a chat message.
type Message struct {
	ID        string       `json:"id"`
	ChatID    string       `json:"chatId"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	State     MessageState `json:"-"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Pending reports whether the message is a local placeholder.
func (m Message) Pending() bool {
	return m.State == StatePending
}

// Chat represents a conversation thread owned by a single user.
type Chat struct {
	ID         string    `json:"id"`
	Title      string    `json:"title,omitempty"`
	UserID     string    `json:"userId"`
	IsArchived bool      `json:"isArchived"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Messages   []Message `json:"messages"`
}

// Empty reports whether the chat has no messages.
func (c Chat) Empty() bool {
	return len(c.Messages) == 0
}

// CreateChatRequest is the request to create a new chat.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content string `json:"content"`
}
