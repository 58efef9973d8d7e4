package llm

import (
	"context"
	"testing"

	"github.com/edibez/binanceagent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsProvider(t *testing.T) {
	m, err := New(context.Background(), config.LLM{
		Provider:        config.ProviderAnthropic,
		AnthropicAPIKey: "sk-test",
		AnthropicModel:  "claude-test",
	})
	require.NoError(t, err)
	assert.Equal(t, "claude-test", m.Name())
	assert.NoError(t, m.Close())
}

func TestNewErrors(t *testing.T) {
	_, err := New(context.Background(), config.LLM{Provider: "openai"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.LLM{Provider: config.ProviderGemini})
	assert.Error(t, err)
}
