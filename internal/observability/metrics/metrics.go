// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_insights"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Job metrics
	JobsTotal   prometheus.Counter
	JobsActive  prometheus.Gauge
	JobsSuccess prometheus.Counter
	JobsFailed  *prometheus.CounterVec
	JobDuration prometheus.Histogram

	// Recognition metrics
	RecognitionEvents   *prometheus.CounterVec
	RecognitionDuration *prometheus.HistogramVec
	STTErrors           *prometheus.CounterVec
	AudioBytesReceived  prometheus.Counter

	// Text analytics metrics
	AnalysisLatency *prometheus.HistogramVec
	AnalysisErrors  *prometheus.CounterVec

	// Persistence metrics
	RecordsPersisted prometheus.Counter
	PersistErrors    prometheus.Counter

	// Kafka metrics
	KafkaPublishTotal     *prometheus.CounterVec
	KafkaPublishErrors    *prometheus.CounterVec
	KafkaPublishLatency   *prometheus.HistogramVec
	NotificationsConsumed *prometheus.CounterVec

	// Temp file housekeeping
	TempFilesSwept prometheus.Counter
}

// DefaultMetrics is the global metrics instance registered with the default registry.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of transcription jobs started",
		}),
		JobsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of transcription jobs currently running",
		}),
		JobsSuccess: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_success_total",
			Help:      "Total number of jobs that persisted a record",
		}),
		JobsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of failed jobs",
		}, []string{"reason"}),
		JobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of transcription jobs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),

		RecognitionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_events_total",
			Help:      "Recognition events delivered by the STT provider",
		}, []string{"reason", "accepted"}),
		RecognitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognition_duration_seconds",
			Help:      "Time from session start to session stop",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider"}),
		STTErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes materialized for recognition",
		}),

		AnalysisLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_latency_seconds",
			Help:      "Text analytics call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"operation"}),
		AnalysisErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_errors_total",
			Help:      "Total number of failed text analytics calls",
		}, []string{"operation"}),

		RecordsPersisted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_persisted_total",
			Help:      "Total number of transcription records written",
		}),
		PersistErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Total number of failed record writes",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
		NotificationsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_consumed_total",
			Help:      "Blob notifications consumed, by outcome",
		}, []string{"result"}),

		TempFilesSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_files_swept_total",
			Help:      "Stale temp files removed by the sweeper",
		}),
	}
}

// RecordJobStart records a new job starting.
func (m *Metrics) RecordJobStart() {
	m.JobsTotal.Inc()
	m.JobsActive.Inc()
}

// RecordJobEnd records a job ending. An empty reason means success.
func (m *Metrics) RecordJobEnd(reason string, durationSeconds float64) {
	m.JobsActive.Dec()
	m.JobDuration.Observe(durationSeconds)
	if reason == "" {
		m.JobsSuccess.Inc()
		return
	}
	m.JobsFailed.WithLabelValues(reason).Inc()
}

// RecordRecognitionEvent records one recognition event and whether it entered the transcript.
func (m *Metrics) RecordRecognitionEvent(reason string, accepted bool) {
	a := "false"
	if accepted {
		a = "true"
	}
	m.RecognitionEvents.WithLabelValues(reason, a).Inc()
}

// RecordRecognition records the length of a recognition session.
func (m *Metrics) RecordRecognition(provider string, seconds float64) {
	m.RecognitionDuration.WithLabelValues(provider).Observe(seconds)
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordAudioReceived records audio bytes written to a temp file.
func (m *Metrics) RecordAudioReceived(bytes int64) {
	m.AudioBytesReceived.Add(float64(bytes))
}

// RecordAnalysis records a text analytics call.
func (m *Metrics) RecordAnalysis(operation string, err error, latencySeconds float64) {
	m.AnalysisLatency.WithLabelValues(operation).Observe(latencySeconds)
	if err != nil {
		m.AnalysisErrors.WithLabelValues(operation).Inc()
	}
}

// RecordPersist records a record write.
func (m *Metrics) RecordPersist(err error) {
	if err != nil {
		m.PersistErrors.Inc()
		return
	}
	m.RecordsPersisted.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordNotification records the outcome of one consumed blob notification.
func (m *Metrics) RecordNotification(result string) {
	m.NotificationsConsumed.WithLabelValues(result).Inc()
}

// RecordTempFilesSwept records stale temp files removed.
func (m *Metrics) RecordTempFilesSwept(n int) {
	m.TempFilesSwept.Add(float64(n))
}
