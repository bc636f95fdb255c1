// Package assistant provides the reply generators used by the
// development stub server.
package assistant

import (
	"context"
	"fmt"
)

// Message is one turn of conversation history passed to a responder.
type Message struct {
	Role    string
	Content string
}

// Responder generates an assistant reply for a conversation.
type Responder interface {
	// Reply returns the assistant turn for the given history, newest last.
	Reply(ctx context.Context, history []Message) (string, error)

	// Name returns the responder name.
	Name() string
}

// Provider selects the responder backend.
type Provider string

const (
	ProviderCanned    Provider = "canned"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// NewResponder creates a responder for the given provider. model may be
// empty to use the provider default.
func NewResponder(provider Provider, apiKey, model string) (Responder, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropic(apiKey, model)
	case ProviderOpenAI:
		return NewOpenAI(apiKey, model)
	case ProviderCanned, "":
		return Canned{}, nil
	default:
		return nil, fmt.Errorf("unknown assistant provider %q", provider)
	}
}

// Canned is a deterministic responder for offline development.
type Canned struct{}

func (Canned) Reply(_ context.Context, history []Message) (string, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return fmt.Sprintf("You said: %q. Connect a live model to get real answers.", history[i].Content), nil
		}
	}
	return "Hello! Ask me anything about your finances.", nil
}

func (Canned) Name() string {
	return "canned"
}
