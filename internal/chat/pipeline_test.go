package chat_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankr-ai/assistant-client/internal/api"
	"github.com/bankr-ai/assistant-client/internal/chat"
	"github.com/bankr-ai/assistant-client/internal/engine"
	"github.com/bankr-ai/assistant-client/internal/model"
	"github.com/bankr-ai/assistant-client/pkg/logger"
)

// fakeChatAPI implements chat.API.
type fakeChatAPI struct {
	mu sync.Mutex

	chats   []model.Chat
	created int

	sendReply *model.Message
	sendErr   error
	sendCalls int
	// sendGate, when set, blocks SendMessage until closed.
	sendGate chan struct{}
}

func (f *fakeChatAPI) ListChats(ctx context.Context) ([]model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Chat, len(f.chats))
	copy(out, f.chats)
	return out, nil
}

func (f *fakeChatAPI) CreateChat(ctx context.Context, title string) (*model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	c := model.Chat{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     title,
		CreatedAt: time.Now(),
		Messages:  []model.Message{},
	}
	f.chats = append(f.chats, c)
	return &c, nil
}

func (f *fakeChatAPI) SendMessage(ctx context.Context, chatID, content string) (*model.Message, error) {
	f.mu.Lock()
	f.sendCalls++
	gate := f.sendGate
	reply, sendErr := f.sendReply, f.sendErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if sendErr != nil {
		return nil, sendErr
	}
	if reply != nil {
		r := *reply
		r.ChatID = chatID
		return &r, nil
	}
	return &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChatID:    chatID,
		Role:      model.RoleModel,
		Content:   "echo: " + content,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeChatAPI) DeleteChat(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.chats {
		if c.ID == chatID {
			f.chats = append(f.chats[:i], f.chats[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

// fakeGate implements chat.Gate.
type fakeGate struct {
	mu           sync.Mutex
	snap         engine.Snapshot
	refreshCalls int
}

func (g *fakeGate) Snapshot() engine.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

func (g *fakeGate) RefreshProfile(ctx context.Context) (*model.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshCalls++
	return g.snap.User, nil
}

func subscribedGate() *fakeGate {
	return &fakeGate{snap: engine.Snapshot{
		Authenticated: true,
		IsSubscribed:  true,
		User:          &model.User{ID: "u1", MessageCount: 10},
	}}
}

func freeGate(count int) *fakeGate {
	return &fakeGate{snap: engine.Snapshot{
		Authenticated: true,
		IsSubscribed:  false,
		User:          &model.User{ID: "u1", MessageCount: count},
	}}
}

func newPipeline(client chat.API, gate chat.Gate) *chat.Pipeline {
	return chat.New(client, gate, logger.Nop())
}

func TestActiveConversationCreatesWhenEmpty(t *testing.T) {
	client := &fakeChatAPI{}
	p := newPipeline(client, subscribedGate())

	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, client.created)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, conv.ID, p.Snapshot().ActiveChatID)
}

func TestActiveConversationSelectsNewestEmpty(t *testing.T) {
	old := model.Chat{ID: "old", CreatedAt: time.Now().Add(-time.Hour),
		Messages: []model.Message{{ID: "m1", Role: model.RoleUser, Content: "hi"}}}
	empty := model.Chat{ID: "fresh", CreatedAt: time.Now(), Messages: []model.Message{}}
	client := &fakeChatAPI{chats: []model.Chat{old, empty}}
	p := newPipeline(client, subscribedGate())

	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", conv.ID)
	assert.Zero(t, client.created)
}

func TestActiveConversationCreatesWhenNewestHasMessages(t *testing.T) {
	used := model.Chat{ID: "used", CreatedAt: time.Now(),
		Messages: []model.Message{{ID: "m1", Role: model.RoleUser, Content: "hi"}}}
	client := &fakeChatAPI{chats: []model.Chat{used}}
	p := newPipeline(client, subscribedGate())

	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "used", conv.ID)
	assert.Equal(t, 1, client.created)

	snap := p.Snapshot()
	require.Len(t, snap.Chats, 2)
	assert.Equal(t, conv.ID, snap.Chats[0].ID)
}

func findChat(t *testing.T, snap chat.Snapshot, id string) model.Chat {
	t.Helper()
	for _, c := range snap.Chats {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("chat %s not in snapshot", id)
	return model.Chat{}
}

func pendingCount(c model.Chat) int {
	n := 0
	for _, m := range c.Messages {
		if m.Pending() {
			n++
		}
	}
	return n
}

func TestSendMessageSuccess(t *testing.T) {
	client := &fakeChatAPI{}
	gate := subscribedGate()
	p := newPipeline(client, gate)
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	reply, err := p.SendMessage(context.Background(), conv.ID, "what did I spend?")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, model.RoleModel, reply.Role)

	c := findChat(t, p.Snapshot(), conv.ID)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, model.RoleUser, c.Messages[0].Role)
	assert.Equal(t, "what did I spend?", c.Messages[0].Content)
	assert.Equal(t, model.RoleModel, c.Messages[1].Role)
	assert.Zero(t, pendingCount(c))
	assert.Equal(t, 1, gate.refreshCalls)
}

func TestSendMessageSequentialOrdering(t *testing.T) {
	client := &fakeChatAPI{}
	p := newPipeline(client, subscribedGate())
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	_, err = p.SendMessage(context.Background(), conv.ID, "first")
	require.NoError(t, err)
	_, err = p.SendMessage(context.Background(), conv.ID, "second")
	require.NoError(t, err)

	c := findChat(t, p.Snapshot(), conv.ID)
	require.Len(t, c.Messages, 4)
	assert.Equal(t, "first", c.Messages[0].Content)
	assert.Equal(t, model.RoleModel, c.Messages[1].Role)
	assert.Equal(t, "second", c.Messages[2].Content)
	assert.Equal(t, model.RoleModel, c.Messages[3].Role)
	assert.Zero(t, pendingCount(c))
}

func TestSendMessageQuotaGateBlocksBeforeNetwork(t *testing.T) {
	client := &fakeChatAPI{}
	p := newPipeline(client, freeGate(2))
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	_, err = p.SendMessage(context.Background(), conv.ID, "one more?")
	assert.ErrorIs(t, err, chat.ErrQuotaExceeded)

	// No network call, no placeholder, no user message.
	assert.Zero(t, client.sendCalls)
	c := findChat(t, p.Snapshot(), conv.ID)
	assert.Empty(t, c.Messages)
}

func TestSendMessageUnderQuotaAllowed(t *testing.T) {
	client := &fakeChatAPI{}
	p := newPipeline(client, freeGate(1))
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	_, err = p.SendMessage(context.Background(), conv.ID, "still free")
	require.NoError(t, err)
	assert.Equal(t, 1, client.sendCalls)
}

func TestSendMessageRemoteQuotaRejection(t *testing.T) {
	client := &fakeChatAPI{sendErr: &api.Error{
		Status:  http.StatusForbidden,
		Code:    api.CodeQuotaExceeded,
		Message: "You have reached your free message limit.",
	}}
	p := newPipeline(client, freeGate(0))
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	_, err = p.SendMessage(context.Background(), conv.ID, "hello")
	assert.ErrorIs(t, err, chat.ErrQuotaExceeded)

	c := findChat(t, p.Snapshot(), conv.ID)
	assert.Zero(t, pendingCount(c))
}

func TestSendMessageFailureRollsBackPlaceholder(t *testing.T) {
	client := &fakeChatAPI{sendErr: errors.New("connection reset")}
	p := newPipeline(client, subscribedGate())
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	_, err = p.SendMessage(context.Background(), conv.ID, "hello")

	var sendErr *chat.SendError
	require.ErrorAs(t, err, &sendErr)

	c := findChat(t, p.Snapshot(), conv.ID)
	assert.Zero(t, pendingCount(c))
	// The user's message survives the rollback.
	require.Len(t, c.Messages, 1)
	assert.Equal(t, model.RoleUser, c.Messages[0].Role)
}

func TestSendMessagePlaceholderVisibleWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeChatAPI{sendGate: gate}
	p := newPipeline(client, subscribedGate())
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	updates, cancel := p.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.SendMessage(context.Background(), conv.ID, "slow one")
	}()

	// First snapshot: optimistic user message plus exactly one placeholder.
	snap := <-updates
	c := findChat(t, snap, conv.ID)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, model.RoleUser, c.Messages[0].Role)
	assert.True(t, c.Messages[1].Pending())
	assert.Equal(t, 1, pendingCount(c))

	close(gate)
	<-done

	final := findChat(t, p.Snapshot(), conv.ID)
	assert.Zero(t, pendingCount(final))
	assert.Len(t, final.Messages, 2)
}

func TestSendMessageSingleInFlightPerChat(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeChatAPI{sendGate: gate}
	p := newPipeline(client, subscribedGate())
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	updates, cancel := p.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.SendMessage(context.Background(), conv.ID, "first")
	}()
	<-updates // optimistic commit: the first send holds the slot

	_, err = p.SendMessage(context.Background(), conv.ID, "second")
	assert.ErrorIs(t, err, chat.ErrSendInFlight)

	close(gate)
	<-done
}

func TestSendMessageUnknownChat(t *testing.T) {
	p := newPipeline(&fakeChatAPI{}, subscribedGate())

	_, err := p.SendMessage(context.Background(), "nope", "hello")
	assert.ErrorIs(t, err, chat.ErrUnknownChat)
}

func TestSendMessageEmptyTextIsNoOp(t *testing.T) {
	client := &fakeChatAPI{}
	p := newPipeline(client, subscribedGate())

	reply, err := p.SendMessage(context.Background(), "any", "   ")
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Zero(t, client.sendCalls)
}

func TestRefreshKeepsSelection(t *testing.T) {
	client := &fakeChatAPI{}
	p := newPipeline(client, subscribedGate())
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	// A chat appears remotely, newer than the active one.
	client.mu.Lock()
	client.chats = append(client.chats, model.Chat{
		ID:        "remote",
		CreatedAt: time.Now().Add(time.Minute),
		Messages:  []model.Message{{ID: "m1", Role: model.RoleUser, Content: "elsewhere"}},
	})
	client.mu.Unlock()

	require.NoError(t, p.Refresh(context.Background()))

	snap := p.Snapshot()
	require.Len(t, snap.Chats, 2)
	assert.Equal(t, "remote", snap.Chats[0].ID)
	assert.Equal(t, conv.ID, snap.ActiveChatID)
	assert.Zero(t, pendingCount(snap.Chats[0]))
}

func TestDeleteChat(t *testing.T) {
	client := &fakeChatAPI{}
	p := newPipeline(client, subscribedGate())
	conv, err := p.ActiveConversation(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.DeleteChat(context.Background(), conv.ID))
	snap := p.Snapshot()
	assert.Empty(t, snap.Chats)
	assert.Empty(t, snap.ActiveChatID)
}
