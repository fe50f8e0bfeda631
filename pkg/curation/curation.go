// Package curation improves the public knowledge base on demand: a web
// search feeds two parallel analyst passes, a chief editor consolidates them,
// and the result is persisted to the public store and folded back into the
// synthesis run as augmented knowledge.
package curation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/llm"
	"github.com/cortex-mentor/cortex/pkg/logging"
	"github.com/cortex-mentor/cortex/pkg/pipeline"
	"github.com/cortex-mentor/cortex/pkg/vector"
	"github.com/cortex-mentor/cortex/pkg/websearch"
)

// Data keys produced by the curation stages.
const (
	webSearchResultsKey = "web_search_results"
	securityAnalysisKey = "security_analysis"
	bestPracticesKey    = "best_practices_analysis"
	curatedSummaryKey   = "curated_summary"

	// AugmentedKnowledgeKey is set on the synthesis data when curation
	// completes.
	AugmentedKnowledgeKey = "augmented_knowledge"
)

// webSearchProcessor fetches external context for the query.
type webSearchProcessor struct {
	searcher websearch.Searcher
}

func (webSearchProcessor) Name() string { return "WebSearcher" }

func (p webSearchProcessor) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}
	query, _ := d["query_text"].(string)

	results, err := p.searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	d[webSearchResultsKey] = websearch.FormatResults(results)
	return d, nil
}

// analystProcessor summarizes the search results from one perspective.
type analystProcessor struct {
	name        string
	instruction string
	outputKey   string
	client      llm.Client
}

func (p analystProcessor) Name() string { return p.name }

func (p analystProcessor) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}
	searchResults, _ := d[webSearchResultsKey].(string)

	prompt := fmt.Sprintf("%s\n\nText to analyze:\n%s\n\nFindings:\n", p.instruction, searchResults)
	analysis, err := p.client.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{p.outputKey: analysis}, nil
}

// chiefEditorProcessor consolidates the analyst passes into one curated
// summary.
type chiefEditorProcessor struct {
	client llm.Client
}

func (chiefEditorProcessor) Name() string { return "ChiefEditor" }

func (p chiefEditorProcessor) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}

	searchResults, _ := d[webSearchResultsKey].(string)
	security, _ := d[securityAnalysisKey].(string)
	bestPractices, _ := d[bestPracticesKey].(string)

	prompt := fmt.Sprintf(`You are a chief editor consolidating research into one authoritative knowledge-base entry. Merge the material below into a single coherent summary. Keep it factual and self-contained.

Web Search Results:
%s

Security Analysis:
%s

Best Practices Analysis:
%s

Consolidated Entry:
`, searchResults, security, bestPractices)

	summary, err := p.client.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	d[curatedSummaryKey] = summary
	return d, nil
}

// publicWriterProcessor persists the curated summary to the public store.
type publicWriterProcessor struct {
	store vector.Store
}

func (publicWriterProcessor) Name() string { return "PublicStoreWriter" }

func (p publicWriterProcessor) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}
	summary, _ := d[curatedSummaryKey].(string)
	if summary == "" {
		return nil, errors.New(errors.InvalidResponse, "curation produced no summary to persist")
	}

	docID := uuid.NewString()
	metadata := map[string]interface{}{"source": "web_search_curation"}
	if err := p.store.Upsert(ctx, docID, summary, metadata); err != nil {
		return nil, err
	}
	logging.GetLogger().Info(ctx, "Curated knowledge persisted as document %s", docID)
	return d, nil
}

// Processor runs the full curation sub-pipeline for one query and sets
// augmented_knowledge on the data. The inner pipeline is rebuilt per
// invocation; nothing here outlives one request.
type Processor struct {
	searcher websearch.Searcher
	client   llm.Client
	store    vector.Store
}

func NewProcessor(searcher websearch.Searcher, client llm.Client, store vector.Store) *Processor {
	return &Processor{searcher: searcher, client: client, store: store}
}

func (p *Processor) Name() string { return "CurationProcessor" }

func (p *Processor) Process(ctx context.Context, data interface{}, pctx *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}
	query, _ := d["query_text"].(string)
	logging.GetLogger().Info(ctx, "Starting curation for query: %s", query)

	inner := pipeline.New("curation",
		pipeline.Sequential(webSearchProcessor{searcher: p.searcher}),
		pipeline.Parallel(
			analystProcessor{
				name:        "SecurityAnalyst",
				instruction: "You are a security analyst. Analyze the provided text for any security implications, vulnerabilities, or best practices. Summarize your findings.",
				outputKey:   securityAnalysisKey,
				client:      p.client,
			},
			analystProcessor{
				name:        "BestPracticesAnalyst",
				instruction: "You are a software architect. Analyze the provided text for software development best practices, design patterns, or architectural principles. Summarize your findings.",
				outputKey:   bestPracticesKey,
				client:      p.client,
			},
		),
		pipeline.Sequential(chiefEditorProcessor{client: p.client}),
		pipeline.Sequential(publicWriterProcessor{store: p.store}),
	)

	result, err := inner.Execute(ctx, d, pctx)
	if err != nil {
		return nil, err
	}

	final, ok := result.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidResponse, "curation pipeline returned a non-mapping result")
	}
	final[AugmentedKnowledgeKey] = final[curatedSummaryKey]
	return final, nil
}
