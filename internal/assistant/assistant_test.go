package assistant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankr-ai/assistant-client/internal/assistant"
)

func TestNewResponderSelection(t *testing.T) {
	tests := []struct {
		name     string
		provider assistant.Provider
		apiKey   string
		want     string
		wantErr  bool
	}{
		{"canned", assistant.ProviderCanned, "", "canned", false},
		{"empty defaults to canned", "", "", "canned", false},
		{"openai", assistant.ProviderOpenAI, "sk-test", "openai", false},
		{"openai without key", assistant.ProviderOpenAI, "", "", true},
		{"anthropic", assistant.ProviderAnthropic, "sk-ant-test", "anthropic", false},
		{"anthropic without key", assistant.ProviderAnthropic, "", "", true},
		{"unknown provider", assistant.Provider("bard"), "key", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := assistant.NewResponder(tt.provider, tt.apiKey, "")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Name())
		})
	}
}

func TestCannedEchoesLastUserTurn(t *testing.T) {
	reply, err := assistant.Canned{}.Reply(context.Background(), []assistant.Message{
		{Role: "user", Content: "what did I spend?"},
		{Role: "model", Content: "a lot"},
		{Role: "user", Content: "on what?"},
	})
	require.NoError(t, err)
	assert.Contains(t, reply, "on what?")
}

func TestCannedGreetsWithoutHistory(t *testing.T) {
	reply, err := assistant.Canned{}.Reply(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, reply)
}
