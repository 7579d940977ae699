// Package service runs a complete retrieval for an external job id: it
// resolves the id, drives the orchestrator, optionally fetches raw inputs,
// records bookkeeping and publishes a completion event.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/clock/system"
	"github.com/JakeFAU/parse-artifact-retriever/internal/orchestrator"
	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// ErrInvalidRequest marks caller input errors.
var ErrInvalidRequest = errors.New("invalid request")

// Resolver maps external job ids to task ids.
type Resolver interface {
	Resolve(ctx context.Context, jobID string) (retrieval.ResolutionRecord, error)
	ResolveWithMetadata(ctx context.Context, jobID string) (retrieval.ResolutionRecord, error)
}

// Runner executes the retrieval chain for a resolved task.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) retrieval.Result
}

// RawFetcher reads raw inputs for a task.
type RawFetcher interface {
	FetchRaw(ctx context.Context, identity retrieval.TaskIdentity, files []string, format string) retrieval.Outcome
}

// Observer receives retrieval and resolution metrics.
type Observer interface {
	ObserveRetrieval(method, status string, files int, bytes int64)
	ObserveResolution(outcome string)
}

// Config carries the settings the service needs from the application config.
type Config struct {
	Topic     string
	RawFormat string
	// RawFiles returns the default raw file list for a task type.
	RawFiles func(taskType string) []string
}

// Deps bundles the service collaborators. Mappings, Publisher, Observer,
// Clock and IDs are optional.
type Deps struct {
	Resolver  Resolver
	Runner    Runner
	Raw       RawFetcher
	Mappings  retrieval.MappingStore
	Publisher retrieval.Publisher
	Observer  Observer
	Clock     retrieval.Clock
	IDs       retrieval.IDGenerator
	Logger    *zap.Logger
}

// Service coordinates a retrieval end to end.
type Service struct {
	cfg       Config
	resolver  Resolver
	runner    Runner
	raw       RawFetcher
	mappings  retrieval.MappingStore
	publisher retrieval.Publisher
	observer  Observer
	clock     retrieval.Clock
	ids       retrieval.IDGenerator
	logger    *zap.Logger
	locks     identityLocks
}

// New validates deps and builds a Service.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = system.New()
	}
	if cfg.RawFiles == nil {
		cfg.RawFiles = func(string) []string { return nil }
	}
	return &Service{
		cfg:       cfg,
		resolver:  deps.Resolver,
		runner:    deps.Runner,
		raw:       deps.Raw,
		mappings:  deps.Mappings,
		publisher: deps.Publisher,
		observer:  deps.Observer,
		clock:     clock,
		ids:       deps.IDs,
		logger:    logger.Named("service"),
	}, nil
}

// RetrieveRequest asks for the parse artifact of one external job.
type RetrieveRequest struct {
	TaskType     string
	JobID        string
	WithRaw      bool
	Decompress   bool
	InferredPath string
	// RawFiles overrides the configured raw file list when non-empty.
	RawFiles []string
}

// Report is the outcome of Retrieve.
type Report struct {
	JobID        string `json:"job_id"`
	TaskType     string `json:"task_type"`
	TaskID       string `json:"task_id"`
	RelativePath string `json:"relative_path"`
	retrieval.Result
	RawFiles []retrieval.FileRecord `json:"raw_files,omitempty"`
	RawError string                 `json:"raw_error,omitempty"`
	EventID  string                 `json:"event_id,omitempty"`
}

// Err returns nil for a successful report and an error wrapping
// retrieval.ErrAllMethodsFailed otherwise.
func (r Report) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%w: %s", retrieval.ErrAllMethodsFailed, r.Error)
}

func validate(taskType, jobID string) error {
	if strings.TrimSpace(taskType) == "" {
		return fmt.Errorf("%w: task_type is required", ErrInvalidRequest)
	}
	if strings.ContainsAny(taskType, `/\`) || taskType == "." || taskType == ".." {
		return fmt.Errorf("%w: task_type %q is not a valid name", ErrInvalidRequest, taskType)
	}
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("%w: job_id is required", ErrInvalidRequest)
	}
	return nil
}

// Retrieve resolves req.JobID and retrieves its parse artifact. Resolution
// failures are returned as errors; retrieval failures are described by the
// returned Report (see Report.Err).
func (s *Service) Retrieve(ctx context.Context, req RetrieveRequest) (Report, error) {
	if err := validate(req.TaskType, req.JobID); err != nil {
		return Report{}, err
	}
	jobID := strings.TrimSpace(req.JobID)
	rec, err := s.resolve(ctx, jobID, true)
	if err != nil {
		return Report{}, err
	}
	identity := retrieval.TaskIdentity{TaskType: req.TaskType, TaskID: rec.TaskID}

	// Job id aliases resolve to one save directory; runs for it take turns.
	release, err := s.locks.acquire(ctx, retrieval.RelativeDir(identity))
	if err != nil {
		return Report{}, fmt.Errorf("wait for retrieval of %s: %w", retrieval.RelativeDir(identity), err)
	}
	defer release()

	logger := s.logger.With(
		zap.String("job_id", jobID),
		zap.String("task_type", identity.TaskType),
		zap.String("task_id", identity.TaskID),
	)

	result := s.runner.Run(ctx, orchestrator.Request{
		Identity:     identity,
		RawMetadata:  rec.RawMetadata,
		InferredPath: req.InferredPath,
		Decompress:   req.Decompress,
	})
	report := Report{
		JobID:        jobID,
		TaskType:     identity.TaskType,
		TaskID:       identity.TaskID,
		RelativePath: retrieval.RelativeDir(identity),
		Result:       result,
	}

	if req.WithRaw {
		out := s.fetchRaw(ctx, identity, req.RawFiles)
		report.RawFiles = out.Files
		report.RawError = out.Err
	}

	s.record(ctx, report, logger)
	report.EventID = s.publish(ctx, report, logger)
	s.observeRetrieval(report)

	if result.Success {
		logger.Info("retrieval completed",
			zap.String("method", string(result.MethodUsed)),
			zap.Int("files", result.TotalFilesDownloaded),
		)
	} else {
		logger.Warn("retrieval failed", zap.String("error", result.Error))
	}
	return report, nil
}

// Resolve maps jobID to its task id without metadata.
func (s *Service) Resolve(ctx context.Context, jobID string) (retrieval.ResolutionRecord, error) {
	if strings.TrimSpace(jobID) == "" {
		return retrieval.ResolutionRecord{}, fmt.Errorf("%w: job_id is required", ErrInvalidRequest)
	}
	return s.resolve(ctx, strings.TrimSpace(jobID), false)
}

// ResolveWithMetadata maps jobID to its task id and analysis metadata.
func (s *Service) ResolveWithMetadata(ctx context.Context, jobID string) (retrieval.ResolutionRecord, error) {
	if strings.TrimSpace(jobID) == "" {
		return retrieval.ResolutionRecord{}, fmt.Errorf("%w: job_id is required", ErrInvalidRequest)
	}
	return s.resolve(ctx, strings.TrimSpace(jobID), true)
}

// FetchRaw resolves jobID and fetches its raw inputs only.
func (s *Service) FetchRaw(ctx context.Context, taskType, jobID string, files []string) (retrieval.Outcome, error) {
	if err := validate(taskType, jobID); err != nil {
		return retrieval.Outcome{}, err
	}
	rec, err := s.resolve(ctx, strings.TrimSpace(jobID), false)
	if err != nil {
		return retrieval.Outcome{}, err
	}
	identity := retrieval.TaskIdentity{TaskType: taskType, TaskID: rec.TaskID}
	out := s.fetchRaw(ctx, identity, files)
	status := retrieval.StatusCompleted
	if !out.Success {
		status = retrieval.StatusFailed
	}
	if s.observer != nil {
		s.observer.ObserveRetrieval(string(retrieval.MethodRaw), status, len(out.Files), totalBytes(out.Files))
	}
	return out, nil
}

// Mapping returns the bookkeeping row for jobID.
func (s *Service) Mapping(ctx context.Context, jobID string) (retrieval.TaskMapping, error) {
	if s.mappings == nil {
		return retrieval.TaskMapping{}, fmt.Errorf("%w: bookkeeping is disabled", retrieval.ErrMappingNotFound)
	}
	m, err := s.mappings.GetMapping(ctx, jobID)
	if err != nil {
		return retrieval.TaskMapping{}, fmt.Errorf("get mapping: %w", err)
	}
	return m, nil
}

// Mappings lists every bookkeeping row.
func (s *Service) Mappings(ctx context.Context) ([]retrieval.TaskMapping, error) {
	if s.mappings == nil {
		return []retrieval.TaskMapping{}, nil
	}
	list, err := s.mappings.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	if list == nil {
		list = []retrieval.TaskMapping{}
	}
	return list, nil
}

func (s *Service) resolve(ctx context.Context, jobID string, withMetadata bool) (retrieval.ResolutionRecord, error) {
	var (
		rec retrieval.ResolutionRecord
		err error
	)
	if withMetadata {
		rec, err = s.resolver.ResolveWithMetadata(ctx, jobID)
	} else {
		rec, err = s.resolver.Resolve(ctx, jobID)
	}
	outcome := "resolved"
	switch {
	case errors.Is(err, retrieval.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, retrieval.ErrAmbiguous):
		outcome = "ambiguous"
	case err != nil:
		outcome = "error"
	}
	if s.observer != nil {
		s.observer.ObserveResolution(outcome)
	}
	if err != nil {
		s.logger.Info("resolution failed", zap.String("job_id", jobID), zap.Error(err))
		return retrieval.ResolutionRecord{}, fmt.Errorf("resolve %s: %w", jobID, err)
	}
	return rec, nil
}

func (s *Service) fetchRaw(ctx context.Context, identity retrieval.TaskIdentity, files []string) retrieval.Outcome {
	if s.raw == nil {
		return retrieval.Failed(retrieval.MethodRaw, fmt.Errorf("raw fetch is not configured"))
	}
	if len(files) == 0 {
		files = s.cfg.RawFiles(identity.TaskType)
	}
	return s.raw.FetchRaw(ctx, identity, files, s.cfg.RawFormat)
}

func (s *Service) record(ctx context.Context, report Report, logger *zap.Logger) {
	if s.mappings == nil {
		return
	}
	status := retrieval.StatusCompleted
	if !report.Success {
		status = retrieval.StatusFailed
	}
	mapping := retrieval.TaskMapping{
		JobID:        report.JobID,
		TaskType:     report.TaskType,
		TaskID:       report.TaskID,
		RelativePath: report.RelativePath,
		SavePath:     report.SavePath,
		Method:       report.MethodUsed,
		FileCount:    report.TotalFilesDownloaded + len(report.RawFiles),
		HasParseFile: hasParseFile(report.FilesDownloaded),
		Status:       status,
		UpdatedAt:    s.clock.Now(),
	}
	if err := s.mappings.RecordMapping(ctx, mapping); err != nil {
		logger.Warn("record mapping failed", zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, report Report, logger *zap.Logger) string {
	if s.publisher == nil {
		return ""
	}
	event := RetrievalCompleted{
		JobID:      report.JobID,
		TaskType:   report.TaskType,
		TaskID:     report.TaskID,
		Method:     string(report.MethodUsed),
		SavePath:   report.SavePath,
		FileCount:  report.TotalFilesDownloaded,
		Success:    report.Success,
		Error:      report.Error,
		OccurredAt: s.clock.Now(),
	}
	if s.ids != nil {
		id, err := s.ids.NewID()
		if err != nil {
			logger.Warn("event id generation failed", zap.Error(err))
		}
		event.EventID = id
	}
	msgID, err := s.publisher.Publish(ctx, s.cfg.Topic, event)
	if err != nil {
		logger.Warn("publish retrieval event failed", zap.Error(err))
		return ""
	}
	logger.Debug("retrieval event published", zap.String("message_id", msgID), zap.String("event_id", event.EventID))
	return event.EventID
}

func (s *Service) observeRetrieval(report Report) {
	if s.observer == nil {
		return
	}
	status := retrieval.StatusCompleted
	if !report.Success {
		status = retrieval.StatusFailed
	}
	s.observer.ObserveRetrieval(string(report.MethodUsed), status,
		report.TotalFilesDownloaded, totalBytes(report.FilesDownloaded))
}

func hasParseFile(files []retrieval.FileRecord) bool {
	for _, f := range files {
		if f.SavedName == retrieval.CanonicalParseName {
			return true
		}
	}
	return false
}

func totalBytes(files []retrieval.FileRecord) int64 {
	var n int64
	for _, f := range files {
		n += f.SizeBytes
	}
	return n
}
