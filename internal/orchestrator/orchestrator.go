// Package orchestrator chains the retrieval strategies: direct link first,
// then the precise storage path inferred from that link, then a broad
// search of the task's storage prefix. The first stage to succeed wins.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// Request is one retrieval for a resolved task.
type Request struct {
	Identity    retrieval.TaskIdentity
	RawMetadata *string
	// InferredPath is an optional parse-store key hint used by the precise
	// stage when the direct stage cannot supply one.
	InferredPath string
	Decompress   bool
}

// State is shared by the stages of a single run.
type State struct {
	Request      Request
	InferredPath string
}

// Stage is one retrieval strategy. ran is false when the stage's
// preconditions were not met and it did nothing.
type Stage interface {
	Method() retrieval.Method
	Run(ctx context.Context, st *State) (out retrieval.Outcome, ran bool)
}

// Links is the subset of the link extractor the direct stage needs.
type Links interface {
	Parseable(taskType string) bool
	Extract(taskType, rawMetadata string) (retrieval.ExtractedLinks, error)
	TaskID(taskType, rawMetadata string) string
}

// Strategies is the subset of the fetcher the stages need.
type Strategies interface {
	FetchDirect(ctx context.Context, identity retrieval.TaskIdentity, urls []string, decompress bool) retrieval.Outcome
	FetchPrecise(ctx context.Context, key string, identity retrieval.TaskIdentity, decompress bool) retrieval.Outcome
	FetchBroad(ctx context.Context, identity retrieval.TaskIdentity, decompress bool) retrieval.Outcome
	SavePath(identity retrieval.TaskIdentity) string
}

// Observer receives per-stage metrics.
type Observer interface {
	ObserveStage(method, outcome string, elapsed time.Duration)
}

// Orchestrator runs stages in order until one succeeds.
type Orchestrator struct {
	stages   []Stage
	savePath func(retrieval.TaskIdentity) string
	observer Observer
	logger   *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithObserver wires stage metrics.
func WithObserver(o Observer) Option {
	return func(orc *Orchestrator) {
		orc.observer = o
	}
}

// WithStages replaces the default stage list.
func WithStages(stages ...Stage) Option {
	return func(orc *Orchestrator) {
		orc.stages = stages
	}
}

// New builds an Orchestrator with the default direct, precise and broad stages.
func New(links Links, strategies Strategies, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	orc := &Orchestrator{
		stages:   DefaultStages(links, strategies),
		savePath: strategies.SavePath,
		logger:   logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(orc)
	}
	return orc
}

// Run executes the stage chain and normalizes the outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) retrieval.Result {
	logger := o.logger.With(
		zap.String("task_type", req.Identity.TaskType),
		zap.String("task_id", req.Identity.TaskID),
	)
	st := &State{Request: req, InferredPath: req.InferredPath}
	result := retrieval.Result{
		FilesDownloaded: []retrieval.FileRecord{},
		SavePath:        o.savePath(req.Identity),
	}

	lastErr := ""
	for _, stage := range o.stages {
		method := stage.Method()
		if err := ctx.Err(); err != nil {
			lastErr = fmt.Sprintf("%s: %v", method, err)
			break
		}
		start := time.Now()
		out, ran := stage.Run(ctx, st)
		elapsed := time.Since(start)
		if !ran {
			o.observe(method, "skipped", 0)
			logger.Debug("stage skipped", zap.String("method", string(method)))
			continue
		}
		if out.Success {
			o.observe(method, "success", elapsed)
			logger.Info("stage succeeded",
				zap.String("method", string(method)),
				zap.Int("files", len(out.Files)),
				zap.Duration("elapsed", elapsed),
			)
			result.Success = true
			result.MethodUsed = method
			result.FilesDownloaded = append(result.FilesDownloaded, out.Files...)
			result.TotalFilesDownloaded = len(out.Files)
			return result
		}
		o.observe(method, "failure", elapsed)
		logger.Info("stage failed", zap.String("method", string(method)), zap.String("error", out.Err))
		lastErr = fmt.Sprintf("%s: %s", method, out.Err)
	}

	if lastErr == "" {
		lastErr = "no retrieval stage ran"
	}
	result.Error = lastErr
	logger.Warn("all retrieval methods failed", zap.String("error", lastErr))
	return result
}

func (o *Orchestrator) observe(method retrieval.Method, outcome string, elapsed time.Duration) {
	if o.observer != nil {
		o.observer.ObserveStage(string(method), outcome, elapsed)
	}
}
