package curation

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/llm"
	"github.com/cortex-mentor/cortex/pkg/pipeline"
	"github.com/cortex-mentor/cortex/pkg/vector"
	"github.com/cortex-mentor/cortex/pkg/websearch"
)

// scriptedLLM answers by matching a marker in the prompt.
type scriptedLLM struct {
	mu      sync.Mutex
	answers map[string]string
	prompts []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string, _ ...llm.GenerateOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	for marker, answer := range s.answers {
		if strings.Contains(prompt, marker) {
			return answer, nil
		}
	}
	return "generic answer", nil
}

type stubSearcher struct {
	results []websearch.SearchResult
	err     error
}

func (s stubSearcher) Search(context.Context, string) ([]websearch.SearchResult, error) {
	return s.results, s.err
}

type recordingStore struct {
	mu      sync.Mutex
	upserts []vector.Result
}

func (r *recordingStore) Upsert(_ context.Context, id, content string, metadata map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, vector.Result{ID: id, Content: content, Metadata: metadata})
	return nil
}

func (r *recordingStore) Query(context.Context, string, int) ([]vector.Result, error) {
	return nil, nil
}

func TestCurationProducesAugmentedKnowledge(t *testing.T) {
	client := &scriptedLLM{answers: map[string]string{
		"security analyst":   "tokens must be httpOnly",
		"software architect": "prefer middleware for auth",
		"chief editor":       "Store JWTs in httpOnly cookies; validate in middleware.",
	}}
	searcher := stubSearcher{results: []websearch.SearchResult{
		{Title: "JWT guide", URL: "https://example.com", Snippet: "how to store tokens"},
	}}
	store := &recordingStore{}

	proc := NewProcessor(searcher, client, store)
	result, err := proc.Process(context.Background(),
		map[string]interface{}{"query_text": "how to auth"}, pipeline.NewContext())
	require.NoError(t, err)

	d := result.(map[string]interface{})
	assert.Equal(t, "Store JWTs in httpOnly cookies; validate in middleware.", d[AugmentedKnowledgeKey])

	// The curated entry was persisted with its provenance marker.
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "Store JWTs in httpOnly cookies; validate in middleware.", store.upserts[0].Content)
	assert.Equal(t, "web_search_curation", store.upserts[0].Metadata["source"])
	assert.NotEmpty(t, store.upserts[0].ID)
}

func TestBothAnalystsSeeSearchResults(t *testing.T) {
	client := &scriptedLLM{answers: map[string]string{}}
	searcher := stubSearcher{results: []websearch.SearchResult{
		{Title: "marker-title", URL: "http://m", Snippet: "marker-snippet"},
	}}

	proc := NewProcessor(searcher, client, &recordingStore{})
	_, err := proc.Process(context.Background(),
		map[string]interface{}{"query_text": "q"}, pipeline.NewContext())
	require.NoError(t, err)

	var analystPrompts int
	for _, p := range client.prompts {
		if strings.Contains(p, "marker-title") &&
			(strings.Contains(p, "security analyst") || strings.Contains(p, "software architect")) {
			analystPrompts++
		}
	}
	assert.Equal(t, 2, analystPrompts)
}

func TestSearchFailurePropagates(t *testing.T) {
	searcher := stubSearcher{err: errors.New(errors.ServiceUnavailable, "search down")}

	proc := NewProcessor(searcher, &scriptedLLM{}, &recordingStore{})
	_, err := proc.Process(context.Background(),
		map[string]interface{}{"query_text": "q"}, pipeline.NewContext())

	require.Error(t, err)
	assert.Equal(t, errors.ProcessorExecutionFailed, errors.Code(err))
}
