package pipeline

import (
	"context"

	"github.com/sourcegraph/conc"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/logging"
)

// Step is one stage of a pipeline: a single processor executed sequentially,
// or several processors executed concurrently against the same data snapshot.
type Step struct {
	processors []Processor
}

// Sequential builds a step holding exactly one processor.
func Sequential(p Processor) Step {
	return Step{processors: []Processor{p}}
}

// Parallel builds a step whose processors all run concurrently.
func Parallel(processors ...Processor) Step {
	return Step{processors: processors}
}

// IsParallel reports whether the step runs more than one processor.
func (s Step) IsParallel() bool { return len(s.processors) > 1 }

// Pipeline manages the execution of a sequence of steps.
type Pipeline struct {
	name  string
	steps []Step
}

// New creates a pipeline from ordered steps.
func New(name string, steps ...Step) *Pipeline {
	return &Pipeline{name: name, steps: steps}
}

// Name returns the pipeline's name.
func (p *Pipeline) Name() string { return p.name }

// Execute passes data through each step in order. Sequential steps fail fast;
// parallel steps wait for every sibling before failing (no forced
// cancellation), so successful siblings' side effects persist. Context
// mutations are visible to all subsequently executed processors.
func (p *Pipeline) Execute(ctx context.Context, data interface{}, pctx *Context) (interface{}, error) {
	logger := logging.GetLogger()
	ctx = logging.WithPipeline(ctx, p.name)
	logger.Info(ctx, "Starting pipeline execution with %d steps", len(p.steps))

	if pctx == nil {
		pctx = NewContext()
	}

	for i, step := range p.steps {
		var err error
		if step.IsParallel() {
			data, err = p.executeParallel(ctx, step, data, pctx)
		} else {
			data, err = p.executeSequential(ctx, step.processors[0], data, pctx)
		}
		if err != nil {
			return nil, errors.WithFields(err, errors.Fields{
				"pipeline": p.name,
				"step":     i,
			})
		}
	}

	logger.Info(ctx, "Pipeline execution completed")
	return data, nil
}

func (p *Pipeline) executeSequential(ctx context.Context, proc Processor, data interface{}, pctx *Context) (interface{}, error) {
	logger := logging.GetLogger()
	procCtx := logging.WithProcessor(ctx, proc.Name())
	logger.Debug(procCtx, "Processing with %s", proc.Name())

	if err := errors.CheckContext(ctx, "pipeline step"); err != nil {
		return nil, err
	}

	result, err := proc.Process(procCtx, data, pctx)
	if err != nil {
		return nil, wrapProcessorError(err, proc)
	}
	logger.Debug(procCtx, "%s completed successfully", proc.Name())
	return result, nil
}

// executeParallel runs every processor of the step against the same data
// snapshot and the shared Context. Results are merged in configured list
// order, not completion order, so pipeline output is deterministic for
// identical inputs regardless of scheduling.
func (p *Pipeline) executeParallel(ctx context.Context, step Step, data interface{}, pctx *Context) (interface{}, error) {
	logger := logging.GetLogger()

	results := make([]interface{}, len(step.processors))
	procErrs := make([]error, len(step.processors))

	var wg conc.WaitGroup
	for i, proc := range step.processors {
		i, proc := i, proc
		wg.Go(func() {
			procCtx := logging.WithProcessor(ctx, proc.Name())
			logger.Debug(procCtx, "Processing with %s (parallel)", proc.Name())
			results[i], procErrs[i] = proc.Process(procCtx, data, pctx)
		})
	}
	wg.Wait()

	// First failure by list order wins; siblings already ran to completion
	// and their side effects are not rolled back.
	for i, err := range procErrs {
		if err != nil {
			return nil, wrapProcessorError(err, step.processors[i])
		}
	}

	merged, isMap := data.(map[string]interface{})
	for i, result := range results {
		if result == nil {
			continue
		}
		m, ok := result.(map[string]interface{})
		if !ok {
			logger.Warn(ctx, "Parallel processor %s returned a non-mapping result; not merged",
				step.processors[i].Name())
			continue
		}
		if !isMap {
			// Non-mapping running data is replaced wholesale by the
			// first mapping result encountered.
			merged = m
			isMap = true
			continue
		}
		for k, v := range m {
			merged[k] = v
		}
	}
	if isMap {
		return merged, nil
	}
	return data, nil
}

func wrapProcessorError(err error, proc Processor) error {
	return errors.WithFields(
		errors.Wrap(err, errors.ProcessorExecutionFailed, "processor "+proc.Name()+" failed"),
		errors.Fields{"processor": proc.Name()},
	)
}
