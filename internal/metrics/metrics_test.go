package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if stageAttemptsTotal == nil || retrievalsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestRecorderObservesStages(t *testing.T) {
	rec := NewRecorder()
	before := testutil.ToFloat64(stageAttemptsTotal.WithLabelValues("direct_link", OutcomeFailure))
	rec.ObserveStage("direct_link", OutcomeFailure, 20*time.Millisecond)
	rec.ObserveStage("precise_path", OutcomeSkipped, 0)

	if got := testutil.ToFloat64(stageAttemptsTotal.WithLabelValues("direct_link", OutcomeFailure)); got != before+1 {
		t.Errorf("expected direct_link failures to be %f, got %f", before+1, got)
	}
	if got := testutil.ToFloat64(stageAttemptsTotal.WithLabelValues("precise_path", OutcomeSkipped)); got < 1 {
		t.Errorf("expected skipped precise_path attempt, got %f", got)
	}
	if val := testutil.CollectAndCount(stageDurationSeconds); val <= 0 {
		t.Errorf("expected stage durations to be observed, got %d", val)
	}
}

func TestRecorderObservesRetrievals(t *testing.T) {
	rec := NewRecorder()
	rec.ObserveRetrieval("broad_search", "completed", 3, 1024)
	rec.ObserveRetrieval("", "failed", 0, 0)
	rec.ObserveResolution("ambiguous")

	if got := testutil.ToFloat64(filesDownloadedTotal.WithLabelValues("broad_search")); got < 3 {
		t.Errorf("expected at least 3 files, got %f", got)
	}
	if got := testutil.ToFloat64(bytesDownloadedTotal.WithLabelValues("broad_search")); got < 1024 {
		t.Errorf("expected at least 1024 bytes, got %f", got)
	}
	if got := testutil.ToFloat64(retrievalsTotal.WithLabelValues("none", "failed")); got < 1 {
		t.Errorf("expected failed retrieval without method, got %f", got)
	}
	if got := testutil.ToFloat64(resolutionsTotal.WithLabelValues("ambiguous")); got < 1 {
		t.Errorf("expected ambiguous resolution, got %f", got)
	}
}
