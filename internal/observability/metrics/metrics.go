// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_transcript"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsEnded    *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	StartFailures    prometheus.Counter
	StateTransitions *prometheus.CounterVec

	// Provider run metrics
	SegmentsStarted   prometheus.Counter
	AutoRestarts      prometheus.Counter
	RestartsCancelled prometheus.Counter
	ProviderErrors    *prometheus.CounterVec
	StaleEvents       prometheus.Counter

	// Transcript metrics
	BatchesApplied     prometheus.Counter
	BatchesRejected    prometheus.Counter
	HypothesesFinal    prometheus.Counter
	InterimFolded      prometheus.Counter
	TranscriptLength   prometheus.Gauge
	FinalConfidence    prometheus.Histogram
	TranscriptsCleared prometheus.Counter

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Publish metrics
	PublishTotal   *prometheus.CounterVec
	PublishErrors  *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec

	// STT stream metrics (gRPC)
	STTStreamDuration *prometheus.HistogramVec

	// gRPC server metrics (health service)
	GRPCServerHandling *prometheus.HistogramVec

	// Backpressure metrics
	SegmentLimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of manually started listening sessions",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently listening",
		}),
		SessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions that returned to idle",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of listening sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		StartFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_failures_total",
			Help:      "Total number of provider start commands rejected",
		}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions",
		}, []string{"from", "to"}),

		// Provider run metrics
		SegmentsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_started_total",
			Help:      "Total number of provider runs started, including restarts",
		}),
		AutoRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_restarts_total",
			Help:      "Total number of provider runs restarted after an unrequested end",
		}),
		RestartsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_cancelled_total",
			Help:      "Total number of scheduled restarts abandoned because of a stop",
		}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Total number of provider errors by kind",
		}, []string{"kind"}),
		StaleEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_total",
			Help:      "Total number of provider events dropped because their run was superseded",
		}),

		// Transcript metrics
		BatchesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_applied_total",
			Help:      "Total number of recognition batches folded into transcripts",
		}),
		BatchesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_rejected_total",
			Help:      "Total number of recognition batches dropped as invalid",
		}),
		HypothesesFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hypotheses_final_total",
			Help:      "Total number of batches that finalized text",
		}),
		InterimFolded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interim_folded_total",
			Help:      "Total number of times pending interim text was kept at stream end",
		}),
		TranscriptLength: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcript_length_bytes",
			Help:      "Length of the current displayable transcript",
		}),
		FinalConfidence: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "final_confidence",
			Help:      "Confidence of finalized hypotheses",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		TranscriptsCleared: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_cleared_total",
			Help:      "Total number of explicit transcript clears",
		}),

		// Audio metrics
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes forwarded to the provider",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames forwarded to the provider",
		}),

		// Publish metrics
		PublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Total number of transcript events published",
		}, []string{"transport", "topic", "event_type"}),
		PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total number of transcript publish errors",
		}, []string{"transport", "topic", "event_type"}),
		PublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_latency_seconds",
			Help:      "Transcript publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"transport", "topic"}),

		// STT stream metrics
		STTStreamDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_stream_duration_seconds",
			Help:      "Duration of provider gRPC streams in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 240, 300, 600},
		}, []string{"method", "code"}),

		// gRPC server metrics
		GRPCServerHandling: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_server_handling_seconds",
			Help:      "Duration of gRPC calls served by the process",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 300},
		}, []string{"method", "code"}),

		// Backpressure metrics
		SegmentLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_limit_exceeded_total",
			Help:      "Total number of times per-segment audio limits ended a provider run",
		}, []string{"limit_type"}),
	}
}

// RecordSessionStart records a manual session start.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session returning to idle.
func (m *Metrics) RecordSessionEnd(reason string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordStartFailure records a rejected provider start.
func (m *Metrics) RecordStartFailure() {
	m.StartFailures.Inc()
}

// RecordTransition records a state change.
func (m *Metrics) RecordTransition(from, to string) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordSegmentStart records a provider run being started.
func (m *Metrics) RecordSegmentStart(restart bool) {
	m.SegmentsStarted.Inc()
	if restart {
		m.AutoRestarts.Inc()
	}
}

// RecordRestartCancelled records a scheduled restart abandoned by a stop.
func (m *Metrics) RecordRestartCancelled() {
	m.RestartsCancelled.Inc()
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(kind string) {
	m.ProviderErrors.WithLabelValues(kind).Inc()
}

// RecordStaleEvent records an event from a superseded provider run.
func (m *Metrics) RecordStaleEvent() {
	m.StaleEvents.Inc()
}

// RecordBatch records a folded batch.
func (m *Metrics) RecordBatch(finalized bool, confidence float64, hasConfidence bool) {
	m.BatchesApplied.Inc()
	if finalized {
		m.HypothesesFinal.Inc()
		if hasConfidence {
			m.FinalConfidence.Observe(confidence)
		}
	}
}

// RecordBatchRejected records a batch dropped as invalid.
func (m *Metrics) RecordBatchRejected() {
	m.BatchesRejected.Inc()
}

// RecordInterimFolded records interim text kept at stream end.
func (m *Metrics) RecordInterimFolded() {
	m.InterimFolded.Inc()
}

// RecordTranscriptLength records the current displayable transcript length.
func (m *Metrics) RecordTranscriptLength(n int) {
	m.TranscriptLength.Set(float64(n))
}

// RecordClear records an explicit clear.
func (m *Metrics) RecordClear() {
	m.TranscriptsCleared.Inc()
}

// RecordAudioReceived records audio bytes and frames forwarded.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordPublish records a publish attempt.
func (m *Metrics) RecordPublish(transport, topic, eventType string, err error, latencySeconds float64) {
	m.PublishTotal.WithLabelValues(transport, topic, eventType).Inc()
	m.PublishLatency.WithLabelValues(transport, topic).Observe(latencySeconds)
	if err != nil {
		m.PublishErrors.WithLabelValues(transport, topic, eventType).Inc()
	}
}

// RecordSTTStream records a finished provider gRPC stream.
func (m *Metrics) RecordSTTStream(method, code string, durationSeconds float64) {
	m.STTStreamDuration.WithLabelValues(method, code).Observe(durationSeconds)
}

// RecordGRPCServerCall records a served gRPC call.
func (m *Metrics) RecordGRPCServerCall(method, code string, durationSeconds float64) {
	m.GRPCServerHandling.WithLabelValues(method, code).Observe(durationSeconds)
}

// RecordLimitExceeded records when a segment limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.SegmentLimitExceeded.WithLabelValues(limitType).Inc()
}
