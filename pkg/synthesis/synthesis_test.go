package synthesis

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/knowledge"
	"github.com/cortex-mentor/cortex/pkg/llm"
	"github.com/cortex-mentor/cortex/pkg/pipeline"
	"github.com/cortex-mentor/cortex/pkg/vector"
)

// scriptedLLM routes prompts to canned answers by substring marker.
type scriptedLLM struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	prompts []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string, _ ...llm.GenerateOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	for marker, answer := range s.answers {
		if strings.Contains(prompt, marker) {
			return answer, nil
		}
	}
	return "default answer", nil
}

// stubVectorStore returns fixed query results.
type stubVectorStore struct {
	results []vector.Result
	err     error
}

func (s *stubVectorStore) Upsert(context.Context, string, string, map[string]interface{}) error {
	return nil
}

func (s *stubVectorStore) Query(context.Context, string, int) ([]vector.Result, error) {
	return s.results, s.err
}

// stubCuration stands in for the curation sub-pipeline.
type stubCuration struct {
	augmented string
	err       error
	invoked   bool
}

func (s *stubCuration) Name() string { return "StubCuration" }

func (s *stubCuration) Process(_ context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	s.invoked = true
	if s.err != nil {
		return nil, s.err
	}
	d := data.(map[string]interface{})
	d["augmented_knowledge"] = s.augmented
	return d, nil
}

func newPrivateBranch(store *knowledge.MemStore, results []vector.Result) *RunPrivatePipeline {
	return NewRunPrivatePipeline(
		&stubVectorStore{results: results},
		knowledge.NewTraverser(store),
		"",
		DefaultTopK,
	)
}

func TestSynthesisEndToEndWithCuration(t *testing.T) {
	docs := knowledge.NewMemStore()
	require.NoError(t, docs.Write("insights/git.commit.abc.md",
		"---\ninsight_id: commit_1\n---\n\nRefactored the auth module. [[../repositories/r.md]]"))
	require.NoError(t, docs.Write("repositories/r.md", "# Index: r\n\n## Related Insights\n"))

	client := &scriptedLLM{answers: map[string]string{
		"needs_improvement":          `{"needs_improvement": true}`,
		"synthesizing a final answer": "Use middleware-based JWT auth as you did in the auth refactor.",
	}}
	curation := &stubCuration{augmented: "OWASP: store JWTs in httpOnly cookies."}

	private := newPrivateBranch(docs, []vector.Result{
		{ID: "commit_1", Content: "auth refactor", Metadata: map[string]interface{}{"node_path": "insights/git.commit.abc.md"}},
	})
	public := NewRunPublicPipeline(
		&stubVectorStore{results: []vector.Result{{ID: "pub-1", Content: "generic auth advice"}}},
		client, curation, DefaultTopK,
	)

	result, err := NewPipeline(private, public, client).
		Execute(context.Background(), "how to auth", pipeline.NewContext())
	require.NoError(t, err)

	d := result.(map[string]interface{})
	assert.True(t, curation.invoked, "curation must run before final synthesis")

	publicKnowledge := d["public_knowledge"].(map[string]interface{})
	assert.Equal(t, "OWASP: store JWTs in httpOnly cookies.", publicKnowledge["augmented_knowledge"])

	privateKnowledge := d["private_knowledge"].(map[string]interface{})
	assert.Contains(t, privateKnowledge["traversed_knowledge"], "Refactored the auth module")

	assert.Equal(t, "Use middleware-based JWT auth as you did in the auth refactor.", d["final_insight"])

	// The final prompt carries all four fragments.
	finalPrompt := client.prompts[len(client.prompts)-1]
	assert.Contains(t, finalPrompt, "auth refactor")
	assert.Contains(t, finalPrompt, "Refactored the auth module")
	assert.Contains(t, finalPrompt, "generic auth advice")
	assert.Contains(t, finalPrompt, "OWASP: store JWTs in httpOnly cookies.")
}

func TestGatewayFalseSkipsCuration(t *testing.T) {
	client := &scriptedLLM{answers: map[string]string{
		"needs_improvement": `{"needs_improvement": false}`,
	}}
	curation := &stubCuration{augmented: "never used"}

	private := newPrivateBranch(knowledge.NewMemStore(), nil)
	public := NewRunPublicPipeline(&stubVectorStore{}, client, curation, DefaultTopK)

	result, err := NewPipeline(private, public, client).
		Execute(context.Background(), "query", pipeline.NewContext())
	require.NoError(t, err)

	assert.False(t, curation.invoked)
	publicKnowledge := result.(map[string]interface{})["public_knowledge"].(map[string]interface{})
	_, hasAugmented := publicKnowledge["augmented_knowledge"]
	assert.False(t, hasAugmented)
}

func TestCurationFailureDegradesGracefully(t *testing.T) {
	client := &scriptedLLM{answers: map[string]string{
		"needs_improvement": `{"needs_improvement": true}`,
	}}
	curation := &stubCuration{err: errors.New(errors.ServiceUnavailable, "search down")}

	private := newPrivateBranch(knowledge.NewMemStore(), nil)
	public := NewRunPublicPipeline(&stubVectorStore{}, client, curation, DefaultTopK)

	result, err := NewPipeline(private, public, client).
		Execute(context.Background(), "query", pipeline.NewContext())
	require.NoError(t, err, "curation failure must not abort synthesis")

	d := result.(map[string]interface{})
	assert.True(t, curation.invoked)
	assert.NotEmpty(t, d["final_insight"])
}

func TestParseGatewayDecision(t *testing.T) {
	tests := []struct {
		name       string
		evaluation string
		want       bool
	}{
		{"structured true", `{"needs_improvement": true}`, true},
		{"structured false", `{"needs_improvement": false}`, false},
		{"structured with whitespace", "  {\"needs_improvement\": true}\n", true},
		{"raw affirmative", "I believe this is true, the knowledge is thin.", true},
		{"raw marker", "Verdict: NEEDS_IMPROVEMENT", true},
		{"raw negative", "The knowledge is sufficient.", false},
		{"garbage", "%%%", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseGatewayDecision(tt.evaluation))
		})
	}
}

func TestGatewayLLMFailureDefaultsToNoCuration(t *testing.T) {
	client := &scriptedLLM{err: errors.New(errors.ServiceUnavailable, "llm down")}

	proc := NewKnowledgeGatewayProcessor(client)
	result, err := proc.Process(context.Background(), map[string]interface{}{
		"query_text": "q",
	}, pipeline.NewContext())

	require.NoError(t, err)
	assert.False(t, result.(map[string]interface{})["needs_improvement"].(bool))
}

func TestTraversalRecordsBrokenLinks(t *testing.T) {
	docs := knowledge.NewMemStore()
	require.NoError(t, docs.Write("insights/a.md", "Alpha. [[missing.md]]"))

	private := newPrivateBranch(docs, []vector.Result{
		{ID: "a", Metadata: map[string]interface{}{"node_path": "insights/a.md"}},
	})

	pctx := pipeline.NewContext()
	result, err := private.Process(context.Background(), "q", pctx)
	require.NoError(t, err)

	inner := result.(map[string]interface{})["private_knowledge"].(map[string]interface{})
	assert.Contains(t, inner["traversed_knowledge"], "Alpha.")
	assert.Equal(t, []string{"insights/missing.md"}, pctx.Strings(knowledge.BrokenLinksKey))
}

func TestEmptyPrivateResultsYieldEmptyTraversal(t *testing.T) {
	private := newPrivateBranch(knowledge.NewMemStore(), nil)

	result, err := private.Process(context.Background(), "q", pipeline.NewContext())
	require.NoError(t, err)

	inner := result.(map[string]interface{})["private_knowledge"].(map[string]interface{})
	assert.Equal(t, "", inner["traversed_knowledge"])
}

func TestPrivateQueryFailurePropagates(t *testing.T) {
	private := NewRunPrivatePipeline(
		&stubVectorStore{err: errors.New(errors.ServiceUnavailable, "index down")},
		knowledge.NewTraverser(knowledge.NewMemStore()),
		"", DefaultTopK,
	)

	_, err := private.Process(context.Background(), "q", pipeline.NewContext())
	require.Error(t, err)
}
