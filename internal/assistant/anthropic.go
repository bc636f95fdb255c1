package assistant

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic is a live responder backed by the Anthropic messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates a live responder.
func NewAnthropic(apiKey, model string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (a *Anthropic) Name() string {
	return "anthropic"
}

func (a *Anthropic) Reply(ctx context.Context, history []Message) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		role := anthropic.MessageParamRoleUser
		if msg.Role != "user" {
			role = anthropic.MessageParamRoleAssistant
		}
		messages = append(messages, anthropic.MessageParam{
			Role: anthropic.F(role),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		})
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(a.model),
		MaxTokens: anthropic.F(int64(1024)),
		System: anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(systemPrompt),
		}}),
		Messages: anthropic.F(messages),
	})
	if err != nil {
		return "", err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	if content == "" {
		return "", errors.New("no text content returned")
	}
	return content, nil
}
