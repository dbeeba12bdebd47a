package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordJobEnd(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordJobStart()
	m.RecordJobStart()
	if got := testutil.ToFloat64(m.JobsActive); got != 2 {
		t.Fatalf("expected 2 active jobs, got %v", got)
	}

	m.RecordJobEnd("", 1.5)
	m.RecordJobEnd("analysis_failed", 0.5)

	if got := testutil.ToFloat64(m.JobsActive); got != 0 {
		t.Errorf("expected 0 active jobs, got %v", got)
	}
	if got := testutil.ToFloat64(m.JobsSuccess); got != 1 {
		t.Errorf("expected 1 successful job, got %v", got)
	}
	if got := testutil.ToFloat64(m.JobsFailed.WithLabelValues("analysis_failed")); got != 1 {
		t.Errorf("expected 1 failed job, got %v", got)
	}
}

func TestRecordRecognitionEvent(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRecognitionEvent("RecognizedSpeech", true)
	m.RecordRecognitionEvent("NoMatch", false)
	m.RecordRecognitionEvent("NoMatch", false)

	if got := testutil.ToFloat64(m.RecognitionEvents.WithLabelValues("RecognizedSpeech", "true")); got != 1 {
		t.Errorf("expected 1 accepted event, got %v", got)
	}
	if got := testutil.ToFloat64(m.RecognitionEvents.WithLabelValues("NoMatch", "false")); got != 2 {
		t.Errorf("expected 2 ignored events, got %v", got)
	}
}

func TestRecordPersistAndAnalysis(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPersist(nil)
	m.RecordPersist(errors.New("db down"))
	m.RecordAnalysis("sentiment", nil, 0.1)
	m.RecordAnalysis("key_phrases", errors.New("boom"), 0.2)

	if got := testutil.ToFloat64(m.RecordsPersisted); got != 1 {
		t.Errorf("expected 1 persisted record, got %v", got)
	}
	if got := testutil.ToFloat64(m.PersistErrors); got != 1 {
		t.Errorf("expected 1 persist error, got %v", got)
	}
	if got := testutil.ToFloat64(m.AnalysisErrors.WithLabelValues("key_phrases")); got != 1 {
		t.Errorf("expected 1 key phrase error, got %v", got)
	}
	if got := testutil.ToFloat64(m.AnalysisErrors.WithLabelValues("sentiment")); got != 0 {
		t.Errorf("expected 0 sentiment errors, got %v", got)
	}
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	_ = NewMetrics(prometheus.NewRegistry())
	_ = NewMetrics(prometheus.NewRegistry())
}
