// Package synthesis assembles the query-to-answer pipeline: private and
// public retrieval run concurrently, the public branch may trigger curation,
// and a final LLM pass consolidates everything into one answer.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/knowledge"
	"github.com/cortex-mentor/cortex/pkg/llm"
	"github.com/cortex-mentor/cortex/pkg/logging"
	"github.com/cortex-mentor/cortex/pkg/pipeline"
	"github.com/cortex-mentor/cortex/pkg/vector"
)

// DefaultTopK is the similarity-query depth used by both branches.
const DefaultTopK = 2

// PrivateKnowledgeQuerier queries the local vector store.
type PrivateKnowledgeQuerier struct {
	store vector.Store
	topK  int
}

func NewPrivateKnowledgeQuerier(store vector.Store, topK int) *PrivateKnowledgeQuerier {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &PrivateKnowledgeQuerier{store: store, topK: topK}
}

func (q *PrivateKnowledgeQuerier) Name() string { return "PrivateKnowledgeQuerier" }

func (q *PrivateKnowledgeQuerier) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	query, ok := data.(string)
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a query string, got %T", data))
	}

	logging.GetLogger().Info(ctx, "Querying private knowledge store")
	results, err := q.store.Query(ctx, query, q.topK)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"query_text":      query,
		"private_results": results,
	}, nil
}

// GraphTraversalProcessor expands private similarity hits into multi-hop
// context by walking the knowledge graph from each hit's node path.
type GraphTraversalProcessor struct {
	traverser *knowledge.Traverser
	root      string
}

// NewGraphTraversalProcessor builds the traversal stage. root is the
// knowledge graph root, used to relativize any absolute entry paths found in
// result metadata.
func NewGraphTraversalProcessor(traverser *knowledge.Traverser, root string) *GraphTraversalProcessor {
	return &GraphTraversalProcessor{traverser: traverser, root: root}
}

func (p *GraphTraversalProcessor) Name() string { return "GraphTraversal" }

func (p *GraphTraversalProcessor) Process(ctx context.Context, data interface{}, pctx *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}

	results, _ := d["private_results"].([]vector.Result)
	entryPoints := p.entryPoints(results)
	if len(entryPoints) == 0 {
		logging.GetLogger().Info(ctx, "No private results to traverse")
		d["traversed_knowledge"] = ""
		return d, nil
	}

	d["traversed_knowledge"] = p.traverser.TraverseAll(ctx, entryPoints, pctx)
	return d, nil
}

func (p *GraphTraversalProcessor) entryPoints(results []vector.Result) []string {
	var entries []string
	for _, r := range results {
		nodePath, _ := r.Metadata["node_path"].(string)
		if nodePath == "" {
			continue
		}
		if filepath.IsAbs(nodePath) && p.root != "" {
			if rel, err := filepath.Rel(p.root, nodePath); err == nil {
				nodePath = filepath.ToSlash(rel)
			}
		}
		entries = append(entries, nodePath)
	}
	return entries
}

// PublicKnowledgeQuerier queries the shared public store.
type PublicKnowledgeQuerier struct {
	store vector.Store
	topK  int
}

func NewPublicKnowledgeQuerier(store vector.Store, topK int) *PublicKnowledgeQuerier {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &PublicKnowledgeQuerier{store: store, topK: topK}
}

func (q *PublicKnowledgeQuerier) Name() string { return "PublicKnowledgeQuerier" }

func (q *PublicKnowledgeQuerier) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	query, ok := data.(string)
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a query string, got %T", data))
	}

	logging.GetLogger().Info(ctx, "Querying public knowledge store")
	results, err := q.store.Query(ctx, query, q.topK)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"query_text":     query,
		"public_results": results,
	}, nil
}

// gatewayDecision is the structured shape the gateway LLM is asked for.
type gatewayDecision struct {
	NeedsImprovement bool `json:"needs_improvement"`
}

// KnowledgeGatewayProcessor judges whether the retrieved public knowledge
// suffices or curation should run. The decision errs toward not triggering
// curation: unparseable or failed evaluations resolve to false.
type KnowledgeGatewayProcessor struct {
	client llm.Client
}

func NewKnowledgeGatewayProcessor(client llm.Client) *KnowledgeGatewayProcessor {
	return &KnowledgeGatewayProcessor{client: client}
}

func (p *KnowledgeGatewayProcessor) Name() string { return "KnowledgeGateway" }

func (p *KnowledgeGatewayProcessor) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}

	logger := logging.GetLogger()
	query, _ := d["query_text"].(string)
	results, _ := d["public_results"].([]vector.Result)

	var contextLines []string
	for _, r := range results {
		contextLines = append(contextLines, r.Content)
	}

	prompt := fmt.Sprintf(`Evaluate whether the retrieved public knowledge below is sufficient to answer the query. Respond with JSON of the form {"needs_improvement": true} or {"needs_improvement": false} and nothing else.

Query: %s

Retrieved Knowledge:
%s
`, query, strings.Join(contextLines, "\n"))

	decision := false
	evaluation, err := p.client.Generate(ctx, prompt)
	if err != nil {
		logger.Warn(ctx, "Gateway evaluation failed, skipping curation: %v", err)
	} else {
		decision = parseGatewayDecision(evaluation)
	}

	logger.Info(ctx, "Knowledge evaluation result: %v", decision)
	d["needs_improvement"] = decision
	return d, nil
}

// parseGatewayDecision parses the structured response, falling back to an
// affirmative-marker scan of the raw text.
func parseGatewayDecision(evaluation string) bool {
	var parsed gatewayDecision
	if err := json.Unmarshal([]byte(strings.TrimSpace(evaluation)), &parsed); err == nil {
		return parsed.NeedsImprovement
	}
	return strings.Contains(strings.ToLower(evaluation), "true") ||
		strings.Contains(evaluation, "NEEDS_IMPROVEMENT")
}

// CurationTrigger runs the curation sub-pipeline when the gateway asked for
// it. Curation failure is logged and the run proceeds without augmentation.
type CurationTrigger struct {
	curation pipeline.Processor
}

func NewCurationTrigger(curation pipeline.Processor) *CurationTrigger {
	return &CurationTrigger{curation: curation}
}

func (p *CurationTrigger) Name() string { return "CurationTrigger" }

func (p *CurationTrigger) Process(ctx context.Context, data interface{}, pctx *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}

	logger := logging.GetLogger()
	needsImprovement, _ := d["needs_improvement"].(bool)
	if !needsImprovement {
		logger.Info(ctx, "Knowledge is sufficient")
		return d, nil
	}
	if p.curation == nil {
		logger.Warn(ctx, "Knowledge needs improvement but no curation processor is configured")
		return d, nil
	}

	logger.Info(ctx, "Knowledge needs improvement, triggering curation")
	result, err := p.curation.Process(ctx, d, pctx)
	if err != nil {
		logger.Error(ctx, "Curation failed, proceeding without augmented knowledge: %v", err)
		return d, nil
	}
	if curated, ok := result.(map[string]interface{}); ok {
		return curated, nil
	}
	return d, nil
}

// RunPrivatePipeline wraps the private retrieval branch so it can run as one
// parallel processor of the outer pipeline.
type RunPrivatePipeline struct {
	inner *pipeline.Pipeline
}

func NewRunPrivatePipeline(store vector.Store, traverser *knowledge.Traverser, root string, topK int) *RunPrivatePipeline {
	return &RunPrivatePipeline{
		inner: pipeline.New("synthesis.private",
			pipeline.Sequential(NewPrivateKnowledgeQuerier(store, topK)),
			pipeline.Sequential(NewGraphTraversalProcessor(traverser, root)),
		),
	}
}

func (p *RunPrivatePipeline) Name() string { return "RunPrivatePipeline" }

func (p *RunPrivatePipeline) Process(ctx context.Context, data interface{}, pctx *pipeline.Context) (interface{}, error) {
	result, err := p.inner.Execute(ctx, data, pctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"private_knowledge": result}, nil
}

// RunPublicPipeline wraps the public retrieval branch, including the gateway
// decision and optional curation.
type RunPublicPipeline struct {
	inner *pipeline.Pipeline
}

func NewRunPublicPipeline(store vector.Store, client llm.Client, curation pipeline.Processor, topK int) *RunPublicPipeline {
	return &RunPublicPipeline{
		inner: pipeline.New("synthesis.public",
			pipeline.Sequential(NewPublicKnowledgeQuerier(store, topK)),
			pipeline.Sequential(NewKnowledgeGatewayProcessor(client)),
			pipeline.Sequential(NewCurationTrigger(curation)),
		),
	}
}

func (p *RunPublicPipeline) Name() string { return "RunPublicPipeline" }

func (p *RunPublicPipeline) Process(ctx context.Context, data interface{}, pctx *pipeline.Context) (interface{}, error) {
	result, err := p.inner.Execute(ctx, data, pctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"public_knowledge": result}, nil
}

// InsightSynthesizer renders the four gathered knowledge fragments into one
// prompt and asks the LLM for the consolidated answer.
type InsightSynthesizer struct {
	client llm.Client
}

func NewInsightSynthesizer(client llm.Client) *InsightSynthesizer {
	return &InsightSynthesizer{client: client}
}

func (p *InsightSynthesizer) Name() string { return "InsightSynthesizer" }

func (p *InsightSynthesizer) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}

	private, _ := d["private_knowledge"].(map[string]interface{})
	public, _ := d["public_knowledge"].(map[string]interface{})

	prompt := fmt.Sprintf(`You are synthesizing a final answer from private and public knowledge gathered for a developer. Combine the fragments below into one clear, actionable response. Prefer the developer's own history where it is relevant.

Private Results:
%s

Traversed Private Knowledge:
%s

Public Results:
%s

Augmented Knowledge:
%s

Final Answer:
`,
		renderResults(private["private_results"]),
		stringValue(private["traversed_knowledge"]),
		renderResults(public["public_results"]),
		stringValue(public["augmented_knowledge"]),
	)

	logging.GetLogger().Info(ctx, "Synthesizing final insight")
	finalInsight, err := p.client.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	d["final_insight"] = finalInsight
	return d, nil
}

func renderResults(value interface{}) string {
	results, ok := value.([]vector.Result)
	if !ok || len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", r.Content)
	}
	return b.String()
}

func stringValue(value interface{}) string {
	s, _ := value.(string)
	return s
}

// NewPipeline wires the full synthesis run: both retrieval branches in
// parallel, then the consolidating synthesis, then any extra stages (audio
// delivery) appended in order.
func NewPipeline(private *RunPrivatePipeline, public *RunPublicPipeline, client llm.Client, extra ...pipeline.Processor) *pipeline.Pipeline {
	steps := []pipeline.Step{
		pipeline.Parallel(private, public),
		pipeline.Sequential(NewInsightSynthesizer(client)),
	}
	for _, proc := range extra {
		steps = append(steps, pipeline.Sequential(proc))
	}
	return pipeline.New("synthesis", steps...)
}
