package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortex-mentor/cortex/pkg/config"
)

func TestNewClientOllama(t *testing.T) {
	client, err := NewClient(config.LLMConfig{Provider: "ollama", ModelID: "llama3.1"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, client)
}

func TestNewClientAnthropic(t *testing.T) {
	client, err := NewClient(config.LLMConfig{Provider: "anthropic", ModelID: "claude-3-haiku", APIKey: "key"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, client)
}

func TestNewClientAnthropicRequiresKey(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "anthropic", ModelID: "claude-3-haiku"})
	assert.Error(t, err)
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "smoke-signals"})
	assert.Error(t, err)
}
