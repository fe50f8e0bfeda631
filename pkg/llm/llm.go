// Package llm provides the language-model clients behind insight
// summarization, gateway decisions and final synthesis. Every call is a pure
// (instructions, prompt) -> text function: clients carry connection settings
// only and never conversational state, so one client is safe to share across
// unrelated requests.
package llm

import (
	"context"
)

// Client generates text from a prompt.
type Client interface {
	// Generate produces a completion for prompt. Transport failures are
	// reported as ServiceUnavailable, provider failures as
	// LLMGenerationFailed.
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (string, error)
}

// Embedder converts text into an embedding vector. Only providers with an
// embedding endpoint implement this; the private vector store depends on it.
type Embedder interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// GenerateOptions holds the tunable parameters of one generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// GenerateOption mutates GenerateOptions.
type GenerateOption func(*GenerateOptions)

// NewGenerateOptions returns options with conservative defaults.
func NewGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		MaxTokens:   2048,
		Temperature: 0.2,
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}
