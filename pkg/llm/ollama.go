package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cortex-mentor/cortex/pkg/errors"
)

// OllamaClient talks to an Ollama server for both generation and embeddings.
type OllamaClient struct {
	baseURL        string
	model          string
	embeddingModel string
	httpClient     *http.Client
}

var _ Client = (*OllamaClient)(nil)
var _ Embedder = (*OllamaClient)(nil)

// NewOllamaClient creates a client for an Ollama endpoint. An empty endpoint
// falls back to the local default.
func NewOllamaClient(endpoint, model, embeddingModel string, timeout time.Duration) *OllamaClient {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaClient{
		baseURL:        endpoint,
		model:          model,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

type ollamaGenerateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Stream      bool    `json:"stream"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Generate implements the Client interface.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (string, error) {
	opts := NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	reqBody := ollamaGenerateRequest{
		Model:       o.model,
		Prompt:      prompt,
		Stream:      false,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	body, err := o.post(ctx, "/api/generate", reqBody)
	if err != nil {
		return "", err
	}

	var resp ollamaGenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.WithFields(
			errors.Wrap(err, errors.InvalidResponse, "failed to unmarshal generate response"),
			errors.Fields{"model": o.model},
		)
	}
	return resp.Response, nil
}

// CreateEmbedding implements the Embedder interface.
func (o *OllamaClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	reqBody := ollamaEmbedRequest{
		Model: o.embeddingModel,
		Input: input,
	}

	body, err := o.post(ctx, "/api/embed", reqBody)
	if err != nil {
		return nil, err
	}

	var resp ollamaEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidResponse, "failed to unmarshal embed response"),
			errors.Fields{"model": o.embeddingModel},
		)
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New(errors.InvalidResponse, "embed response carried no embeddings")
	}
	return resp.Embeddings[0], nil
}

func (o *OllamaClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ServiceUnavailable, "failed to reach LLM service"),
			errors.Fields{"model": o.model},
		)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithFields(
			errors.New(errors.LLMGenerationFailed, fmt.Sprintf("API request failed with status code %d", resp.StatusCode)),
			errors.Fields{
				"model":       o.model,
				"status_code": resp.StatusCode,
			},
		)
	}

	return body, nil
}
