// Package comprehension assembles the event-to-insight pipeline: deserialize
// a raw developer-activity event, summarize it with an LLM, persist the
// resulting insight to the knowledge graph and the vector index in parallel,
// then enqueue a synthesis follow-up.
package comprehension

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/events"
	"github.com/cortex-mentor/cortex/pkg/insights"
	"github.com/cortex-mentor/cortex/pkg/knowledge"
	"github.com/cortex-mentor/cortex/pkg/llm"
	"github.com/cortex-mentor/cortex/pkg/logging"
	"github.com/cortex-mentor/cortex/pkg/pipeline"
	"github.com/cortex-mentor/cortex/pkg/vector"
)

// TaskQueueKey is the pipeline context key under which the run's task queue
// handle is injected.
const TaskQueueKey = "task_queue"

// SynthesisTaskName is the follow-up task enqueued after an insight is
// persisted.
const SynthesisTaskName = "synthesize_insight"

// Enqueuer is the slice of the task queue the trigger stage needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, payload interface{}) error
}

// EventDeserializer decodes a raw tagged event into its variant.
type EventDeserializer struct{}

func (EventDeserializer) Name() string { return "EventDeserializer" }

func (EventDeserializer) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	logger := logging.GetLogger()

	var event events.Event
	var err error
	switch raw := data.(type) {
	case []byte:
		event, err = events.Parse(raw)
	case json.RawMessage:
		event, err = events.Parse(raw)
	case map[string]interface{}:
		event, err = events.ParseMap(raw)
	case events.Event:
		event = raw
	default:
		err = errors.New(errors.InvalidInput, fmt.Sprintf("cannot deserialize event from %T", data))
	}
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "Deserialized event of type: %s", event.Kind())
	return event, nil
}

// InsightGenerator produces a structured insight from a source event by
// asking the LLM for a one-sentence semantic summary.
type InsightGenerator struct {
	client llm.Client
}

func NewInsightGenerator(client llm.Client) *InsightGenerator {
	return &InsightGenerator{client: client}
}

func (g *InsightGenerator) Name() string { return "InsightGenerator" }

func (g *InsightGenerator) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	logger := logging.GetLogger()

	switch event := data.(type) {
	case *events.CommitEvent:
		logger.Info(ctx, "Generating insight for commit %s", event.CommitHash)
		summary, err := g.client.Generate(ctx, commitSummaryPrompt(event))
		if err != nil {
			return nil, err
		}
		embedding := fmt.Sprintf(
			"Commit by %s to %s/%s. Summary: %s. Message: %s",
			event.AuthorName, event.RepoName, event.BranchName, summary, event.Message,
		)
		return insights.New(event, summary, embedding, map[string]interface{}{
			"repo_name":   event.RepoName,
			"branch_name": event.BranchName,
			"commit_hash": event.CommitHash,
		}), nil

	case *events.FileChangeEvent:
		logger.Info(ctx, "Generating insight for file change %s", event.FilePath)
		summary, err := g.client.Generate(ctx, fileChangeSummaryPrompt(event))
		if err != nil {
			return nil, err
		}
		embedding := fmt.Sprintf(
			"File change in %s. Type: %s. Summary: %s.",
			event.FilePath, event.ChangeType, summary,
		)
		return insights.New(event, summary, embedding, map[string]interface{}{
			"file_path":   event.FilePath,
			"change_type": string(event.ChangeType),
		}), nil

	default:
		return nil, errors.New(errors.InvalidInput,
			fmt.Sprintf("unsupported event type for insight generation: %T", data))
	}
}

func commitSummaryPrompt(event *events.CommitEvent) string {
	return fmt.Sprintf(`Analyze the following git commit and provide a concise, one-sentence semantic summary. Focus on the intent and impact of the change, not just a list of files. Do not start your response with 'This user' or 'This commit'. Just state the change directly.

Example: "Refactored authentication module to improve security and performance."

Commit Message: %s
Commit Diff: %s

Semantic Summary:
`, event.Message, event.Diff)
}

func fileChangeSummaryPrompt(event *events.FileChangeEvent) string {
	return fmt.Sprintf(`A file was changed. Analyze the event and provide a concise, one-sentence semantic summary of the change's likely intent or impact.

File Path: %s
Change Type: %s
New Content:
%s

Semantic Summary:
`, event.FilePath, event.ChangeType, event.Content)
}

// GraphWriterProcessor persists the insight into the markdown knowledge
// graph. Side-effect only; the insight flows through unchanged.
type GraphWriterProcessor struct {
	writer *knowledge.GraphWriter
}

func NewGraphWriterProcessor(writer *knowledge.GraphWriter) *GraphWriterProcessor {
	return &GraphWriterProcessor{writer: writer}
}

func (p *GraphWriterProcessor) Name() string { return "KnowledgeGraphWriter" }

func (p *GraphWriterProcessor) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	insight, ok := data.(*insights.Insight)
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected an insight, got %T", data))
	}

	logger := logging.GetLogger()
	logger.Info(ctx, "Writing insight %s to knowledge graph", insight.ID)
	rel, err := p.writer.ProcessInsight(insight)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Insight %s written to %s", insight.ID, rel)
	return nil, nil
}

// VectorWriterProcessor indexes the insight's embedding text. The node path
// derived from the insight goes into the metadata so synthesis can later map
// similarity hits back to graph entry points.
type VectorWriterProcessor struct {
	store vector.Store
}

func NewVectorWriterProcessor(store vector.Store) *VectorWriterProcessor {
	return &VectorWriterProcessor{store: store}
}

func (p *VectorWriterProcessor) Name() string { return "VectorWriter" }

func (p *VectorWriterProcessor) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	insight, ok := data.(*insights.Insight)
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected an insight, got %T", data))
	}

	metadata := make(map[string]interface{}, len(insight.Metadata)+2)
	for k, v := range insight.Metadata {
		metadata[k] = v
	}
	metadata["source_event_type"] = string(insight.SourceEventType)
	metadata["node_path"] = path.Join(knowledge.InsightsDir, knowledge.InsightFilename(insight))

	logger := logging.GetLogger()
	logger.Info(ctx, "Indexing insight %s in vector store", insight.ID)
	if err := p.store.Upsert(ctx, insight.ID, insight.ContentForEmbedding, metadata); err != nil {
		return nil, err
	}
	return nil, nil
}

// SynthesisTrigger enqueues the follow-up synthesis job, keyed by the
// insight's embedding text. A missing queue handle is logged, not fatal, so
// local runs without Redis still comprehend events.
type SynthesisTrigger struct{}

func (SynthesisTrigger) Name() string { return "SynthesisTrigger" }

func (SynthesisTrigger) Process(ctx context.Context, data interface{}, pctx *pipeline.Context) (interface{}, error) {
	insight, ok := data.(*insights.Insight)
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected an insight, got %T", data))
	}

	logger := logging.GetLogger()

	handle, _ := pctx.Get(TaskQueueKey)
	queue, ok := handle.(Enqueuer)
	if !ok || queue == nil {
		logger.Error(ctx, "Task queue not found in context for SynthesisTrigger")
		return data, nil
	}

	payload := map[string]interface{}{"text": insight.ContentForEmbedding}
	if err := queue.Enqueue(ctx, SynthesisTaskName, payload); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Synthesis task enqueued for insight %s", insight.ID)
	return data, nil
}

// NewPipeline wires the comprehension stages around the injected service
// handles. Build one pipeline per invocation; processors hold no per-run
// state.
func NewPipeline(client llm.Client, writer *knowledge.GraphWriter, store vector.Store) *pipeline.Pipeline {
	return pipeline.New("comprehension",
		pipeline.Sequential(EventDeserializer{}),
		pipeline.Sequential(NewInsightGenerator(client)),
		pipeline.Parallel(
			NewGraphWriterProcessor(writer),
			NewVectorWriterProcessor(store),
		),
		pipeline.Sequential(SynthesisTrigger{}),
	)
}
