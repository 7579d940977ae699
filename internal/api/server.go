package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/parse-artifact-retriever/internal/metrics"
	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
	"github.com/JakeFAU/parse-artifact-retriever/internal/service"
)

// Retriever is the service surface the API exposes.
type Retriever interface {
	Retrieve(ctx context.Context, req service.RetrieveRequest) (service.Report, error)
	ResolveWithMetadata(ctx context.Context, jobID string) (retrieval.ResolutionRecord, error)
	Mapping(ctx context.Context, jobID string) (retrieval.TaskMapping, error)
	Mappings(ctx context.Context) ([]retrieval.TaskMapping, error)
}

// Options tune the server.
type Options struct {
	AuthEnabled bool
	APIKey      string
	// RequestTimeout bounds a single retrieval, which may run every stage.
	RequestTimeout    time.Duration
	DefaultDecompress bool
	// Ready reports whether downstream dependencies are usable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the retrieval service.
type Server struct {
	router   chi.Router
	svc      Retriever
	opts     Options
	inflight singleflight.Group
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Retriever, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}
	s := &Server{
		svc:    svc,
		opts:   opts,
		logger: logger.Named("api"),
	}
	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(s.logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.AuthEnabled {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		// The handler bounds retrievals itself; leave headroom for the response.
		r.Use(timeoutMiddleware(opts.RequestTimeout + 5*time.Second))
		r.Post("/retrievals", s.createRetrieval)
		r.Get("/resolve/{job_id}", s.resolve)
		r.Get("/mappings", s.listMappings)
		r.Get("/mappings/{job_id}", s.getMapping)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type retrievalRequest struct {
	TaskType     string   `json:"task_type"`
	JobID        string   `json:"job_id"`
	WithRaw      bool     `json:"with_raw"`
	Decompress   *bool    `json:"decompress"`
	InferredPath string   `json:"inferred_path"`
	RawFiles     []string `json:"raw_files"`
}

func (s *Server) createRetrieval(w http.ResponseWriter, r *http.Request) {
	var req retrievalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	decompress := s.opts.DefaultDecompress
	if req.Decompress != nil {
		decompress = *req.Decompress
	}
	svcReq := service.RetrieveRequest{
		TaskType:     strings.TrimSpace(req.TaskType),
		JobID:        strings.TrimSpace(req.JobID),
		WithRaw:      req.WithRaw,
		Decompress:   decompress,
		InferredPath: strings.TrimSpace(req.InferredPath),
		RawFiles:     req.RawFiles,
	}

	// Concurrent identical requests share one retrieval. The shared run
	// outlives any single caller's disconnect but not the request timeout.
	key := inflightKey(svcReq)
	v, err, shared := s.inflight.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.RequestTimeout)
		defer cancel()
		return s.svc.Retrieve(ctx, svcReq)
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	report, ok := v.(service.Report)
	if !ok {
		writeError(w, http.StatusInternalServerError, "unexpected retrieval result")
		return
	}
	if shared {
		s.logger.Debug("retrieval shared with concurrent request", zap.String("key", key))
	}
	status := http.StatusOK
	if !report.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, report)
}

// inflightKey covers every field that changes what a retrieval does, so
// requests only share a run when they would have produced the same report.
func inflightKey(req service.RetrieveRequest) string {
	return strings.Join([]string{
		req.TaskType,
		req.JobID,
		strconv.FormatBool(req.WithRaw),
		strconv.FormatBool(req.Decompress),
		req.InferredPath,
		strings.Join(req.RawFiles, ","),
	}, "\x00")
}

type resolveResponse struct {
	JobID       string `json:"job_id"`
	TaskID      string `json:"task_id"`
	HasMetadata bool   `json:"has_metadata"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	rec, err := s.svc.ResolveWithMetadata(r.Context(), jobID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{JobID: jobID, TaskID: rec.TaskID, HasMetadata: rec.HasMetadata()})
}

// statusFor maps sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, retrieval.ErrNotFound), errors.Is(err, retrieval.ErrMappingNotFound):
		return http.StatusNotFound
	case errors.Is(err, retrieval.ErrAmbiguous):
		return http.StatusConflict
	case errors.Is(err, retrieval.ErrAllMethodsFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
