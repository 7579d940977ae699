// Package metrics exposes Prometheus collectors for the retriever service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

var (
	stageAttemptsTotal         *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	retrievalsTotal            *prometheus.CounterVec
	filesDownloadedTotal       *prometheus.CounterVec
	bytesDownloadedTotal       *prometheus.CounterVec
	resolutionsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		stageAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retriever_stage_attempts_total",
				Help: "Total number of retrieval stage attempts, labeled by method and outcome.",
			},
			[]string{"method", "outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retriever_stage_duration_seconds",
				Help:    "Histogram of retrieval stage latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method"},
		)

		retrievalsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retriever_retrievals_total",
				Help: "Total number of retrievals, labeled by winning method and status.",
			},
			[]string{"method", "status"},
		)

		filesDownloadedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retriever_files_downloaded_total",
				Help: "Total number of files written to disk, labeled by method.",
			},
			[]string{"method"},
		)

		bytesDownloadedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retriever_bytes_downloaded_total",
				Help: "Total number of bytes written to disk, labeled by method.",
			},
			[]string{"method"},
		)

		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retriever_resolutions_total",
				Help: "Total number of job id resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retriever_rate_limit_delay_seconds",
				Help:    "Time direct-link downloads spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Recorder adapts the package-level collectors to the observer interfaces
// used by the orchestrator and service.
type Recorder struct{}

// NewRecorder initializes the collectors and returns a Recorder.
func NewRecorder() Recorder {
	Init()
	return Recorder{}
}

// ObserveStage records one stage attempt.
func (Recorder) ObserveStage(method, outcome string, elapsed time.Duration) {
	ObserveStage(method, outcome, elapsed)
}

// ObserveRetrieval records a finished retrieval.
func (Recorder) ObserveRetrieval(method, status string, files int, bytes int64) {
	ObserveRetrieval(method, status, files, bytes)
}

// ObserveResolution records a resolution outcome.
func (Recorder) ObserveResolution(outcome string) {
	ObserveResolution(outcome)
}

// ObserveStage increments the stage attempt counter and, for stages that
// ran, the duration histogram.
func ObserveStage(method, outcome string, elapsed time.Duration) {
	stageAttemptsTotal.WithLabelValues(method, outcome).Inc()
	if outcome != OutcomeSkipped {
		stageDurationSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

// ObserveRetrieval increments the retrieval counters.
func ObserveRetrieval(method, status string, files int, bytes int64) {
	if method == "" {
		method = "none"
	}
	retrievalsTotal.WithLabelValues(method, status).Inc()
	if files > 0 {
		filesDownloadedTotal.WithLabelValues(method).Add(float64(files))
	}
	if bytes > 0 {
		bytesDownloadedTotal.WithLabelValues(method).Add(float64(bytes))
	}
}

// ObserveResolution increments the resolution counter.
func ObserveResolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting for a rate limit token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}
