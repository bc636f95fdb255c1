// Package chat manages the conversation list and the optimistic
// send/receive cycle for messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bankr-ai/assistant-client/internal/api"
	"github.com/bankr-ai/assistant-client/internal/engine"
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/internal/state"
	"github.com/bankr-ai/assistant-client/pkg/logger"
	"github.com/bankr-ai/assistant-client/pkg/metrics"
)

// FreeMessageLimit is the number of messages a user may send without a
// subscription.
const FreeMessageLimit = 2

// placeholderContent is what a pending assistant message displays.
const placeholderContent = "..."

var (
	// ErrQuotaExceeded signals the free message cap was reached. It is
	// recoverable by purchasing entitlement and never clears the session.
	ErrQuotaExceeded = errors.New("free message limit reached")

	// ErrSendInFlight signals a send is already unresolved for the chat.
	ErrSendInFlight = errors.New("a send is already in flight for this chat")

	// ErrUnknownChat signals the chat id is not in the local list.
	ErrUnknownChat = errors.New("unknown chat")
)

// SendError is a transient or remote-side send failure. The placeholder
// has always been rolled back before it is returned.
type SendError struct {
	Message string
	Err     error
}

func (e *SendError) Error() string {
	if e.Message != "" {
		return "send failed: " + e.Message
	}
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// API is the remote surface the pipeline depends on. *api.Client
// satisfies it.
type API interface {
	ListChats(ctx context.Context) ([]model.Chat, error)
	CreateChat(ctx context.Context, title string) (*model.Chat, error)
	SendMessage(ctx context.Context, chatID, content string) (*model.Message, error)
	DeleteChat(ctx context.Context, chatID string) error
}

// Gate exposes the engine state the pipeline reads for quota decisions.
type Gate interface {
	Snapshot() engine.Snapshot
	RefreshProfile(ctx context.Context) (*model.User, error)
}

// Snapshot is the chat state observable by the presentation layer.
type Snapshot struct {
	Chats        []model.Chat
	ActiveChatID string
}

// Pipeline manages chats and the optimistic message cycle.
type Pipeline struct {
	client API
	gate   Gate
	logger *logger.Logger
	state  *state.Holder[Snapshot]

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a pipeline.
func New(client API, gate Gate, log *logger.Logger) *Pipeline {
	return &Pipeline{
		client:   client,
		gate:     gate,
		logger:   log.WithComponent("chat"),
		state:    state.NewHolder(Snapshot{}),
		inFlight: make(map[string]bool),
	}
}

// Snapshot returns the current committed chat state.
func (p *Pipeline) Snapshot() Snapshot {
	return p.state.Get()
}

// Subscribe returns a channel receiving a snapshot after every committed
// change, plus a cancel function.
func (p *Pipeline) Subscribe() (<-chan Snapshot, func()) {
	return p.state.Subscribe()
}

// ActiveConversation fetches the chat list and picks the chat new input
// should go to: the newest chat when it is empty, otherwise a freshly
// created one. The returned chat carries only confirmed messages.
func (p *Pipeline) ActiveConversation(ctx context.Context) (*model.Chat, error) {
	chats, err := p.client.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	for i := range chats {
		confirmMessages(&chats[i])
	}

	var active *model.Chat
	switch {
	case len(chats) == 0:
		created, err := p.createChat(ctx)
		if err != nil {
			return nil, err
		}
		chats = []model.Chat{*created}
		active = created
	case chats[0].Empty():
		active = &chats[0]
	default:
		created, err := p.createChat(ctx)
		if err != nil {
			return nil, err
		}
		chats = append([]model.Chat{*created}, chats...)
		active = created
	}

	p.state.BeginOp()
	p.state.Stage(func(s *Snapshot) {
		s.Chats = chats
		s.ActiveChatID = active.ID
	})
	p.state.Commit()
	p.state.EndOp()

	result := cloneChat(*active)
	return &result, nil
}

// Refresh re-fetches the chat list and commits it without touching the
// active-chat selection.
func (p *Pipeline) Refresh(ctx context.Context) error {
	chats, err := p.client.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	for i := range chats {
		confirmMessages(&chats[i])
	}

	p.state.BeginOp()
	p.state.Stage(func(s *Snapshot) {
		s.Chats = chats
	})
	p.state.Commit()
	p.state.EndOp()
	return nil
}

func (p *Pipeline) createChat(ctx context.Context) (*model.Chat, error) {
	title := "New Chat - " + time.Now().UTC().Format(time.RFC3339)
	chat, err := p.client.CreateChat(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	confirmMessages(chat)
	return chat, nil
}

// SendMessage appends the user's message and an assistant placeholder
// locally, then sends the text to the remote. On success the placeholder
// is replaced by the confirmed assistant reply; on failure it is removed
// and the user's message is retained. The quota gate runs before any
// network call, and only one send may be in flight per chat.
func (p *Pipeline) SendMessage(ctx context.Context, chatID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	snap := p.gate.Snapshot()
	if !snap.IsSubscribed && snap.User != nil && snap.User.MessageCount >= FreeMessageLimit {
		metrics.QuotaRejectionsTotal.Inc()
		return nil, ErrQuotaExceeded
	}

	p.mu.Lock()
	if p.inFlight[chatID] {
		p.mu.Unlock()
		return nil, ErrSendInFlight
	}
	p.inFlight[chatID] = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, chatID)
		p.mu.Unlock()
	}()

	now := time.Now()
	userMsg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChatID:    chatID,
		Role:      model.RoleUser,
		Content:   text,
		State:     model.StateConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	placeholder := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChatID:    chatID,
		Role:      model.RoleModel,
		Content:   placeholderContent,
		State:     model.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Optimistic step: both messages appear before any network call.
	if !p.appendMessages(chatID, userMsg, placeholder) {
		return nil, ErrUnknownChat
	}

	start := time.Now()
	reply, err := p.client.SendMessage(ctx, chatID, text)
	if err != nil {
		// The placeholder never survives a failed send.
		p.resolvePlaceholder(chatID, nil)
		if api.IsQuotaExceeded(err) {
			metrics.RecordSend("quota", time.Since(start).Seconds())
			return nil, ErrQuotaExceeded
		}
		metrics.RecordSend("error", time.Since(start).Seconds())
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			return nil, &SendError{Message: apiErr.Message, Err: err}
		}
		return nil, &SendError{Err: err}
	}

	reply.State = model.StateConfirmed
	p.resolvePlaceholder(chatID, reply)
	metrics.RecordSend("success", time.Since(start).Seconds())

	// The server-side message count changed; refresh is best-effort.
	if _, err := p.gate.RefreshProfile(ctx); err != nil {
		p.logger.Warn("profile refresh after send failed", zap.Error(err))
	}

	return reply, nil
}

// DeleteChat removes a chat remotely and locally.
func (p *Pipeline) DeleteChat(ctx context.Context, chatID string) error {
	if err := p.client.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}

	p.state.BeginOp()
	p.state.Stage(func(s *Snapshot) {
		chats := make([]model.Chat, 0, len(s.Chats))
		for _, c := range s.Chats {
			if c.ID != chatID {
				chats = append(chats, c)
			}
		}
		s.Chats = chats
		if s.ActiveChatID == chatID {
			s.ActiveChatID = ""
		}
	})
	p.state.Commit()
	p.state.EndOp()
	return nil
}

// appendMessages clones the target chat and appends msgs. Reports false
// when the chat is not in the local list.
func (p *Pipeline) appendMessages(chatID string, msgs ...model.Message) bool {
	found := false
	p.state.BeginOp()
	p.state.Stage(func(s *Snapshot) {
		s.Chats, found = withChat(s.Chats, chatID, func(c *model.Chat) {
			c.Messages = append(c.Messages, msgs...)
		})
	})
	if found {
		p.state.Commit()
	}
	p.state.EndOp()
	return found
}

// resolvePlaceholder drops any pending message from the chat and, when
// reply is non-nil, appends it as the confirmed assistant turn.
func (p *Pipeline) resolvePlaceholder(chatID string, reply *model.Message) {
	p.state.BeginOp()
	p.state.Stage(func(s *Snapshot) {
		s.Chats, _ = withChat(s.Chats, chatID, func(c *model.Chat) {
			kept := make([]model.Message, 0, len(c.Messages))
			for _, m := range c.Messages {
				if !m.Pending() {
					kept = append(kept, m)
				}
			}
			if reply != nil {
				kept = append(kept, *reply)
			}
			c.Messages = kept
		})
	})
	p.state.Commit()
	p.state.EndOp()
}

// withChat returns a copy of chats where fn has been applied to a clone
// of the chat with the given id. The input slice is left untouched.
func withChat(chats []model.Chat, chatID string, fn func(*model.Chat)) ([]model.Chat, bool) {
	out := make([]model.Chat, len(chats))
	copy(out, chats)
	for i := range out {
		if out[i].ID == chatID {
			clone := cloneChat(out[i])
			fn(&clone)
			out[i] = clone
			return out, true
		}
	}
	return out, false
}

func cloneChat(c model.Chat) model.Chat {
	msgs := make([]model.Message, len(c.Messages))
	copy(msgs, c.Messages)
	c.Messages = msgs
	return c
}

// confirmMessages normalizes remote-fetched messages: everything the
// server returns is confirmed.
func confirmMessages(c *model.Chat) {
	for i := range c.Messages {
		c.Messages[i].State = model.StateConfirmed
	}
}
