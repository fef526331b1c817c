// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pacing"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram
	BufferedEvents  prometheus.Gauge

	// Pipeline metrics
	ChunksProcessed     prometheus.Counter
	TranscriptionFaults prometheus.Counter
	SourceFaults        prometheus.Counter

	// Agent metrics
	AgentDispatchLatency *prometheus.HistogramVec
	AgentFaults          *prometheus.CounterVec

	// Review queue metrics
	ReviewItemsFlagged *prometheus.CounterVec
	ReviewQueueSize    prometheus.Gauge
	ReviewQueueWarning prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all Prometheus metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of sessions in seconds",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}),
		BufferedEvents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_buffered_events",
			Help:      "Transcription events buffered in the current session",
		}),

		// Pipeline metrics
		ChunksProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_processed_total",
			Help:      "Total number of audio chunks transcribed and dispatched",
		}),
		TranscriptionFaults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_faults_total",
			Help:      "Total number of chunks skipped because transcription failed",
		}),
		SourceFaults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_source_faults_total",
			Help:      "Total number of audio source failures",
		}),

		// Agent metrics
		AgentDispatchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_dispatch_latency_seconds",
			Help:      "Time an agent spent handling one event",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"agent"}),
		AgentFaults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_faults_total",
			Help:      "Total number of agent handler failures",
		}, []string{"agent"}),

		// Review queue metrics
		ReviewItemsFlagged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_items_flagged_total",
			Help:      "Total number of events flagged for review",
		}, []string{"priority"}),
		ReviewQueueSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "review_queue_size",
			Help:      "Number of items in the review queue",
		}),
		ReviewQueueWarning: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_queue_limit_exceeded_total",
			Help:      "Total number of inserts that left the review queue above its soft limit",
		}),

		// Kafka publish metrics
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

		// gRPC metrics
		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls handled",
		}, []string{"method", "code"}),
		GRPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC call duration; health Watch streams live as long as the client",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"method", "kind"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
	m.BufferedEvents.Set(0)
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	m.BufferedEvents.Set(0)
}

// RecordChunk records one transcribed and dispatched chunk.
func (m *Metrics) RecordChunk() {
	m.ChunksProcessed.Inc()
	m.BufferedEvents.Inc()
}

// RecordTranscriptionFault records a skipped chunk.
func (m *Metrics) RecordTranscriptionFault() {
	m.TranscriptionFaults.Inc()
}

// RecordSourceFault records an audio source failure.
func (m *Metrics) RecordSourceFault() {
	m.SourceFaults.Inc()
}

// RecordAgentDispatch records one agent handling one event.
func (m *Metrics) RecordAgentDispatch(agent string, latencySeconds float64) {
	m.AgentDispatchLatency.WithLabelValues(agent).Observe(latencySeconds)
}

// RecordAgentFault records an agent failure.
func (m *Metrics) RecordAgentFault(agent string) {
	m.AgentFaults.WithLabelValues(agent).Inc()
}

// RecordReviewItem records a flagged event and the resulting queue size.
func (m *Metrics) RecordReviewItem(priority string, queueSize int) {
	m.ReviewItemsFlagged.WithLabelValues(priority).Inc()
	m.ReviewQueueSize.Set(float64(queueSize))
}

// RecordQueueSize records the current review queue size.
func (m *Metrics) RecordQueueSize(queueSize int) {
	m.ReviewQueueSize.Set(float64(queueSize))
}

// RecordQueueWarning records an insert above the soft queue limit.
func (m *Metrics) RecordQueueWarning() {
	m.ReviewQueueWarning.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCRequest records a handled gRPC call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}

// RecordGRPCLatency records the duration of a unary or stream call.
func (m *Metrics) RecordGRPCLatency(method, kind string, seconds float64) {
	m.GRPCLatency.WithLabelValues(method, kind).Observe(seconds)
}
