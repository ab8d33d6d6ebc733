// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lecture_interpreter"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted    prometheus.Counter
	SessionTransitions *prometheus.CounterVec
	SessionDuration    prometheus.Histogram
	WatchdogWarnings   prometheus.Counter
	WatchdogTimeouts   prometheus.Counter

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	SentencesFinalized prometheus.Counter

	// Recognition metrics
	RecognitionRestarts *prometheus.CounterVec
	RecognitionErrors   *prometheus.CounterVec
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Translation metrics
	TranslationRequests *prometheus.CounterVec
	TranslationOutcomes *prometheus.CounterVec
	TranslationLatency  *prometheus.HistogramVec
	TranslationsStale   *prometheus.CounterVec

	// Summary metrics
	Summaries *prometheus.CounterVec

	// Dictionary metrics
	DictionaryLookups *prometheus.CounterVec

	// Presentation metrics
	WebsocketClients prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Ingress stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsSuccess prometheus.Counter
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of lecture sessions started",
		}),
		SessionTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Total number of session state transitions",
		}, []string{"from", "to"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of ended lecture sessions in seconds",
			Buckets:   []float64{60, 300, 900, 1800, 2700, 3600, 5400, 7200},
		}),
		WatchdogWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_warnings_total",
			Help:      "Total number of inactivity warnings raised",
		}),
		WatchdogTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_timeouts_total",
			Help:      "Total number of sessions ended by inactivity",
		}),

		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts received",
		}),
		SentencesFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_finalized_total",
			Help:      "Total number of sentence records finalized",
		}),

		RecognitionRestarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_restarts_total",
			Help:      "Total number of recognition engine restarts",
		}, []string{"reason"}),
		RecognitionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Total number of recognition engine errors",
		}, []string{"engine", "code"}),
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		TranslationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_requests_total",
			Help:      "Total number of translation requests issued",
		}, []string{"channel"}),
		TranslationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_outcomes_total",
			Help:      "Total number of translation results by outcome",
		}, []string{"channel", "outcome"}),
		TranslationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_latency_seconds",
			Help:      "Translation backend latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"channel"}),
		TranslationsStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_stale_total",
			Help:      "Total number of translation results dropped as superseded",
		}, []string{"channel"}),

		Summaries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Total number of note summarizations by outcome",
		}, []string{"outcome"}),

		DictionaryLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dictionary_lookups_total",
			Help:      "Total number of dictionary lookups by outcome",
		}, []string{"outcome"}),

		WebsocketClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected presentation clients",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		StreamsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of recognition ingress streams started",
		}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active ingress streams",
		}),
		StreamsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_success_total",
			Help:      "Total number of successfully completed streams",
		}),
		StreamsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of failed streams",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of ingress streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// RecordSessionStarted records a new lecture session.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordTransition records a session state change.
func (m *Metrics) RecordTransition(from, to string) {
	m.SessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordSessionEnded records the length of a finished session.
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	m.SessionDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordWatchdogWarning() {
	m.WatchdogWarnings.Inc()
}

func (m *Metrics) RecordWatchdogTimeout() {
	m.WatchdogTimeouts.Inc()
}

// RecordPartialTranscript records a partial transcript received.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordSentenceFinalized records a sentence record snapshot.
func (m *Metrics) RecordSentenceFinalized() {
	m.SentencesFinalized.Inc()
}

// RecordRecognitionRestart records an engine re-arm.
func (m *Metrics) RecordRecognitionRestart(reason string) {
	m.RecognitionRestarts.WithLabelValues(reason).Inc()
}

// RecordRecognitionError records an engine error code.
func (m *Metrics) RecordRecognitionError(engine, code string) {
	m.RecognitionErrors.WithLabelValues(engine, code).Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordTranslationRequest records an issued translation request.
func (m *Metrics) RecordTranslationRequest(channel string) {
	m.TranslationRequests.WithLabelValues(channel).Inc()
}

// RecordTranslationResult records a backend outcome and its latency.
func (m *Metrics) RecordTranslationResult(channel, outcome string, latencySeconds float64) {
	m.TranslationOutcomes.WithLabelValues(channel, outcome).Inc()
	m.TranslationLatency.WithLabelValues(channel).Observe(latencySeconds)
}

// RecordStaleTranslation records a result dropped by the identity check.
func (m *Metrics) RecordStaleTranslation(channel string) {
	m.TranslationsStale.WithLabelValues(channel).Inc()
}

// RecordSummary records a summarization outcome.
func (m *Metrics) RecordSummary(outcome string) {
	m.Summaries.WithLabelValues(outcome).Inc()
}

// RecordDictionaryLookup records a dictionary lookup outcome.
func (m *Metrics) RecordDictionaryLookup(outcome string) {
	m.DictionaryLookups.WithLabelValues(outcome).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if success {
		m.StreamsSuccess.Inc()
	} else {
		m.StreamsFailed.Inc()
	}
}
