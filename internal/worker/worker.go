// Package worker consumes the Redis task list and runs the comprehension and
// synthesis pipelines. Service handles are built per job invocation so no
// pipeline state outlives one run.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cortex-mentor/cortex/pkg/comprehension"
	"github.com/cortex-mentor/cortex/pkg/config"
	"github.com/cortex-mentor/cortex/pkg/curation"
	"github.com/cortex-mentor/cortex/pkg/delivery"
	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/knowledge"
	"github.com/cortex-mentor/cortex/pkg/llm"
	"github.com/cortex-mentor/cortex/pkg/logging"
	"github.com/cortex-mentor/cortex/pkg/pipeline"
	"github.com/cortex-mentor/cortex/pkg/queue"
	"github.com/cortex-mentor/cortex/pkg/speech"
	"github.com/cortex-mentor/cortex/pkg/synthesis"
	"github.com/cortex-mentor/cortex/pkg/vector"
	"github.com/cortex-mentor/cortex/pkg/websearch"
)

const dequeueTimeout = 5 * time.Second

// Worker owns the queue connection for its lifetime and dispatches jobs to
// per-invocation pipelines.
type Worker struct {
	cfg   *config.Config
	tasks *queue.Queue
}

func New(cfg *config.Config, tasks *queue.Queue) *Worker {
	return &Worker{cfg: cfg, tasks: tasks}
}

// Run consumes jobs until ctx is canceled. Job failures are logged, never
// fatal; the loop keeps serving.
func (w *Worker) Run(ctx context.Context) error {
	logger := logging.GetLogger()
	logger.Info(ctx, "Worker started, consuming queue %q", w.cfg.Redis.QueueKey)

	for {
		if ctx.Err() != nil {
			logger.Info(ctx, "Worker shutting down")
			return nil
		}

		job, err := w.tasks.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if errors.CheckContext(ctx, "worker loop") != nil {
				return nil
			}
			logger.Error(ctx, "Dequeue failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if err := w.dispatch(ctx, job); err != nil {
			logger.Error(ctx, "Job %s failed: %v", job.Task, err)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job *queue.Job) error {
	switch job.Task {
	case queue.TaskComprehendEvent:
		return w.runComprehension(ctx, job.Payload)
	case queue.TaskSynthesizeInsight:
		return w.runSynthesis(ctx, job.Payload)
	default:
		return errors.WithFields(
			errors.New(errors.InvalidInput, "unknown task"),
			errors.Fields{"task": job.Task},
		)
	}
}

// runComprehension builds the event-to-insight pipeline and feeds it the raw
// payload.
func (w *Worker) runComprehension(ctx context.Context, payload json.RawMessage) error {
	logger := logging.GetLogger()
	logger.Info(ctx, "Starting comprehension pipeline")

	client, err := llm.NewClient(w.cfg.LLM)
	if err != nil {
		return err
	}
	docs, err := knowledge.NewFSStore(w.cfg.Knowledge.Root)
	if err != nil {
		return err
	}
	vectors, err := vector.NewSQLiteStore(w.cfg.Vector.PrivatePath, llm.NewEmbedder(w.cfg.LLM))
	if err != nil {
		return err
	}
	defer vectors.Close()

	pctx := pipeline.NewContext()
	pctx.Set(comprehension.TaskQueueKey, comprehension.Enqueuer(w.tasks))

	p := comprehension.NewPipeline(client, knowledge.NewGraphWriter(docs), vectors)
	if _, err := p.Execute(ctx, payload, pctx); err != nil {
		return err
	}
	logger.Info(ctx, "Comprehension pipeline finished")
	return nil
}

// runSynthesis builds the query-to-answer pipeline for one synthesis job.
func (w *Worker) runSynthesis(ctx context.Context, payload json.RawMessage) error {
	logger := logging.GetLogger()

	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errors.Wrap(err, errors.InvalidInput, "malformed synthesis payload")
	}
	if req.Text == "" {
		return errors.New(errors.InvalidInput, "synthesis payload missing text")
	}
	logger.Info(ctx, "Starting synthesis pipeline")

	client, err := llm.NewClient(w.cfg.LLM)
	if err != nil {
		return err
	}
	docs, err := knowledge.NewFSStore(w.cfg.Knowledge.Root)
	if err != nil {
		return err
	}
	vectors, err := vector.NewSQLiteStore(w.cfg.Vector.PrivatePath, llm.NewEmbedder(w.cfg.LLM))
	if err != nil {
		return err
	}
	defer vectors.Close()

	var publicStore vector.Store = emptyStore{}
	if w.cfg.Vector.PublicURL != "" {
		publicStore = vector.NewRESTStore(w.cfg.Vector.PublicURL, w.cfg.Vector.PublicToken)
	}

	var curator pipeline.Processor
	if w.cfg.Search.Endpoint != "" {
		curator = curation.NewProcessor(
			websearch.NewHTTPSearcher(w.cfg.Search.Endpoint), client, publicStore)
	}

	private := synthesis.NewRunPrivatePipeline(
		vectors, knowledge.NewTraverser(docs), docs.Root(), w.cfg.Vector.TopK)
	public := synthesis.NewRunPublicPipeline(publicStore, client, curator, w.cfg.Vector.TopK)

	var extra []pipeline.Processor
	if w.cfg.Speech.Endpoint != "" {
		synth := speech.NewRESTSynthesizer(
			w.cfg.Speech.Endpoint, w.cfg.Speech.APIKey, w.cfg.Speech.Voice)
		extra = append(extra, delivery.NewAudioDeliveryProcessor(synth, w.tasks))
	}

	p := synthesis.NewPipeline(private, public, client, extra...)
	if _, err := p.Execute(ctx, req.Text, pipeline.NewContext()); err != nil {
		return err
	}
	logger.Info(ctx, "Synthesis pipeline finished")
	return nil
}

// emptyStore stands in for the public store when none is configured: queries
// find nothing and writes are dropped.
type emptyStore struct{}

func (emptyStore) Upsert(context.Context, string, string, map[string]interface{}) error {
	return nil
}

func (emptyStore) Query(context.Context, string, int) ([]vector.Result, error) {
	return []vector.Result{}, nil
}
