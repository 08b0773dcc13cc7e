// Package pipeline orchestrates one ExecutionRequest end to end:
// prestage files, run each stage's transfers and sandbox execution in
// order, and stream results as they complete.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/harrowfung/pentagon/internal/blobstore"
	"github.com/harrowfung/pentagon/internal/logging"
	"github.com/harrowfung/pentagon/internal/metrics"
	"github.com/harrowfung/pentagon/internal/model"
	"github.com/harrowfung/pentagon/internal/sandbox"
	"github.com/harrowfung/pentagon/internal/transfer"
	"github.com/harrowfung/pentagon/internal/workspace"
)

// Event is one item of the lazy sequence the engine produces: either a
// completed stage Result or a terminal/stage-level error message.
type Event struct {
	Result *model.ExecutionResult
	Error  string
}

// Engine is the pipeline orchestrator. One Engine is shared by every
// request; Run owns no state beyond the lifetime of a single call.
type Engine struct {
	baseDir    string
	blobs      blobstore.Store
	metrics    *metrics.Metrics
	newSandbox func() sandbox.Sandbox
}

func New(baseDir string, blobs blobstore.Store, m *metrics.Metrics) *Engine {
	return &Engine{
		baseDir:    baseDir,
		blobs:      blobs,
		metrics:    m,
		newSandbox: func() sandbox.Sandbox { return sandbox.New(sandbox.Config{}) },
	}
}

// Run produces events on the returned channel and closes it when the
// request terminates, successfully or not. Workspace cleanup always
// runs before the channel closes, including when ctx is canceled.
func (e *Engine) Run(ctx context.Context, req model.ExecutionRequest) <-chan Event {
	events := make(chan Event)
	go e.run(ctx, req, events)
	return events
}

func (e *Engine) run(ctx context.Context, req model.ExecutionRequest, events chan<- Event) {
	defer close(events)
	e.metrics.RequestsTotal.Inc()
	log := logging.FromContext(ctx)

	ws, err := workspace.New(e.baseDir)
	if err != nil {
		log.Error("workspace create failed", zap.Error(err))
		events <- Event{Error: err.Error()}
		return
	}
	defer ws.Close()

	resolver := transfer.NewResolver(ws, e.blobs)

	for _, f := range req.Files {
		if err := resolver.Prestage(ctx, f); err != nil {
			log.Error("prestage failed", zap.Error(err))
			events <- Event{Error: err.Error()}
			return
		}
	}

	for i, stage := range req.Executions {
		if ctx.Err() != nil {
			return
		}
		if !e.runStage(ctx, resolver, i, stage, events) {
			return
		}
	}
}

// runStage runs one stage to completion and reports whether the pipeline
// should continue to the next stage.
func (e *Engine) runStage(ctx context.Context, resolver *transfer.Resolver, index int, stage model.Execution, events chan<- Event) bool {
	log := logging.ForStage(logging.FromContext(ctx), index, stage.Program)

	stdin, err := resolver.ResolveCopyIn(ctx, stage.CopyIn)
	if err != nil {
		return e.emitError(log, events, err, stage.DieOnError)
	}

	sb := e.newSandbox()
	limits := sandbox.Limits{
		CPUSeconds:  stage.TimeLimit,
		WallSeconds: stage.WallTimeLimit,
		MemoryKB:    stage.MemoryLimit,
	}

	start := time.Now()
	res, err := sb.Run(ctx, resolver.WorkspaceRoot(), stage.Program, stage.Args, limits, stdin)
	e.metrics.ExecutionWallTimeMs.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return e.emitError(log, events, err, stage.DieOnError)
	}

	if err := resolver.ResolveCopyOut(ctx, stage.CopyOut, res.Stdout, res.Stderr); err != nil {
		return e.emitError(log, events, err, stage.DieOnError)
	}

	returned, err := resolver.ResolveReturnFiles(ctx, stage.ReturnFiles, res.Stdout, res.Stderr)
	if err != nil {
		return e.emitError(log, events, err, stage.DieOnError)
	}

	result := model.ExecutionResult{
		ExitCode:    res.ExitCode,
		TimeUsed:    res.CPUTimeMs,
		MemoryUsed:  res.PeakRSSKB,
		ReturnFiles: returned,
	}
	events <- Event{Result: &result}
	log.Info("stage completed", zap.Int64("exit_code", res.ExitCode), zap.Int64("time_used_ms", res.CPUTimeMs), zap.Int64("memory_used_kb", res.PeakRSSKB))

	if res.ExitCode == 0 {
		e.metrics.ExecutionsTotal.WithLabelValues("ok").Inc()
		e.metrics.ExecutionTimeMs.Observe(float64(res.CPUTimeMs))
		e.metrics.ExecutionMemoryKB.Observe(float64(res.PeakRSSKB))
	} else {
		e.metrics.ExecutionsTotal.WithLabelValues("error").Inc()
	}

	if res.ExitCode != 0 && stage.DieOnError {
		return false
	}
	return true
}

func (e *Engine) emitError(log *zap.Logger, events chan<- Event, err error, dieOnError bool) bool {
	log.Error("stage failed", zap.Error(err), zap.Bool("die_on_error", dieOnError))
	events <- Event{Error: err.Error()}
	e.metrics.ExecutionsTotal.WithLabelValues("error").Inc()
	return !dieOnError
}
