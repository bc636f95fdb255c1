package assistant

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are BankrAI, a concise financial assistant. " +
	"Answer questions about the user's spending and budgeting."

// OpenAI is a live responder backed by the OpenAI chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a live responder.
func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

func (o *OpenAI) Name() string {
	return "openai"
}

func (o *OpenAI) Reply(ctx context.Context, history []Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role != "user" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: 1024,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
