// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deepspeak"

// Metrics holds all Prometheus metrics for the transcriber.
type Metrics struct {
	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Media metrics
	ExtractionDuration prometheus.Histogram
	InputBytes         prometheus.Histogram

	// Chunk metrics
	ChunksCreated  prometheus.Counter
	ChunksFinished *prometheus.CounterVec
	ChunksActive   prometheus.Gauge

	// STT metrics
	STTRequests     *prometheus.CounterVec
	STTLatency      *prometheus.HistogramVec
	STTErrors       *prometheus.CounterVec
	STTBytesSent    *prometheus.CounterVec
	TranscriptChars prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance registered with the default registry.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all Prometheus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of transcription runs by outcome",
		}, []string{"mode", "result"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a transcription run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		}),

		ExtractionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time spent extracting or decoding audio with ffmpeg",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
		InputBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "input_bytes",
			Help:      "Size of the audio file measured at the size check",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 8),
		}),

		ChunksCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_created_total",
			Help:      "Total number of temporary chunk files written",
		}),
		ChunksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_finished_total",
			Help:      "Total number of chunks whose transcription attempt finished",
		}, []string{"result"}),
		ChunksActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_active",
			Help:      "Number of temporary chunk files currently on disk",
		}),

		STTRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_requests_total",
			Help:      "Total number of speech-to-text requests",
		}, []string{"provider"}),
		STTLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Speech-to-text request latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider"}),
		STTErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
		STTBytesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_bytes_sent_total",
			Help:      "Total audio bytes submitted to the STT provider",
		}, []string{"provider"}),
		TranscriptChars: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_chars_total",
			Help:      "Total characters of aggregated transcript produced",
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
	}
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(mode string, success bool, durationSeconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.RunsTotal.WithLabelValues(mode, result).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordExtraction records an ffmpeg extraction or decode.
func (m *Metrics) RecordExtraction(durationSeconds float64) {
	m.ExtractionDuration.Observe(durationSeconds)
}

// RecordInputSize records the measured size of the audio to transcribe.
func (m *Metrics) RecordInputSize(bytes int64) {
	m.InputBytes.Observe(float64(bytes))
}

// RecordChunkCreated records a chunk temp file being written.
func (m *Metrics) RecordChunkCreated() {
	m.ChunksCreated.Inc()
	m.ChunksActive.Inc()
}

// RecordChunkReleased records a chunk temp file being removed.
func (m *Metrics) RecordChunkReleased(success bool) {
	m.ChunksActive.Dec()
	if success {
		m.ChunksFinished.WithLabelValues("success").Inc()
	} else {
		m.ChunksFinished.WithLabelValues("failure").Inc()
	}
}

// RecordSTTRequest records one speech-to-text call.
func (m *Metrics) RecordSTTRequest(provider string, bytes int64, latencySeconds float64) {
	m.STTRequests.WithLabelValues(provider).Inc()
	m.STTBytesSent.WithLabelValues(provider).Add(float64(bytes))
	m.STTLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordTranscript records the length of an aggregated transcript.
func (m *Metrics) RecordTranscript(chars int) {
	m.TranscriptChars.Add(float64(chars))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
