package llm

import (
	"fmt"

	"github.com/cortex-mentor/cortex/pkg/config"
	"github.com/cortex-mentor/cortex/pkg/errors"
)

// NewClient builds the configured generation client.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaClient(cfg.BaseURL, cfg.ModelID, cfg.EmbeddingModel, cfg.Timeout), nil
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.ModelID)
	default:
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("unsupported LLM provider: %q", cfg.Provider))
	}
}

// NewEmbedder builds the embedding client used by the private vector store.
// Embeddings always come from the Ollama endpoint; the Anthropic API has no
// embedding surface.
func NewEmbedder(cfg config.LLMConfig) Embedder {
	return NewOllamaClient(cfg.BaseURL, cfg.ModelID, cfg.EmbeddingModel, cfg.Timeout)
}
