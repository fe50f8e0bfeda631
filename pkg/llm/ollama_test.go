package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortex-mentor/cortex/pkg/errors"
)

func TestOllamaGenerate(t *testing.T) {
	var gotReq ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]string{"response": "a concise summary"})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3.1", "nomic-embed-text:v1.5", time.Minute)
	result, err := client.Generate(context.Background(), "summarize this commit", WithMaxTokens(128), WithTemperature(0.7))

	require.NoError(t, err)
	assert.Equal(t, "a concise summary", result)
	assert.Equal(t, "llama3.1", gotReq.Model)
	assert.Equal(t, "summarize this commit", gotReq.Prompt)
	assert.False(t, gotReq.Stream)
	assert.Equal(t, 128, gotReq.MaxTokens)
}

func TestOllamaGenerateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3.1", "", time.Minute)
	_, err := client.Generate(context.Background(), "prompt")

	require.Error(t, err)
	assert.Equal(t, errors.LLMGenerationFailed, errors.Code(err))
}

func TestOllamaGenerateTransportError(t *testing.T) {
	// Point at a closed server to force a connection failure.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewOllamaClient(server.URL, "llama3.1", "", time.Second)
	_, err := client.Generate(context.Background(), "prompt")

	require.Error(t, err)
	assert.Equal(t, errors.ServiceUnavailable, errors.Code(err))
}

func TestOllamaCreateEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text:v1.5", req.Model)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3.1", "nomic-embed-text:v1.5", time.Minute)
	vec, err := client.CreateEmbedding(context.Background(), "embed me")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaCreateEmbeddingEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": [][]float32{}})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3.1", "m", time.Minute)
	_, err := client.CreateEmbedding(context.Background(), "embed me")

	require.Error(t, err)
	assert.Equal(t, errors.InvalidResponse, errors.Code(err))
}
