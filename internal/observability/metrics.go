package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coach_gateway_active_sessions",
		Help: "Number of active coaching sessions",
	})

	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coach_gateway_turns_total",
		Help: "Total number of conversational turns started",
	})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coach_gateway_turn_duration_seconds",
		Help:    "Duration of a full turn from recording start to idle",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	// Transcription metrics
	transcriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_gateway_transcription_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"status"})

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coach_gateway_transcription_latency_seconds",
		Help:    "Transcription request latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Synthesis metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_gateway_synthesis_requests_total",
		Help: "Total number of speech synthesis requests",
	}, []string{"status"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coach_gateway_synthesis_latency_seconds",
		Help:    "Speech synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "captured" or "synthesized"
)

// Metrics tracks metrics for a single coaching session
type Metrics struct {
	sessionID          string
	turnStartTime      time.Time
	transcribeStart    time.Time
	synthesisStartTime time.Time
	mu                 sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{sessionID: sessionID}
}

// RecordSessionStart records the start of a coaching session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
}

// RecordSessionEnd records the end of a coaching session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
}

// RecordTurnStart records the start of a turn
func (m *Metrics) RecordTurnStart() {
	m.mu.Lock()
	m.turnStartTime = time.Now()
	m.mu.Unlock()
	turnsTotal.Inc()
}

// RecordTurnEnd records the end of a turn
func (m *Metrics) RecordTurnEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.turnStartTime.IsZero() {
		turnDuration.Observe(time.Since(m.turnStartTime).Seconds())
		m.turnStartTime = time.Time{}
	}
}

// RecordTranscriptionStart records the start of a transcription request
func (m *Metrics) RecordTranscriptionStart() {
	m.mu.Lock()
	m.transcribeStart = time.Now()
	m.mu.Unlock()
}

// RecordTranscriptionEnd records the end of a transcription request
func (m *Metrics) RecordTranscriptionEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.transcribeStart.IsZero() {
		transcriptionLatency.Observe(time.Since(m.transcribeStart).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	transcriptionRequests.WithLabelValues(status).Inc()
}

// RecordSynthesisStart records the start of a synthesis request
func (m *Metrics) RecordSynthesisStart() {
	m.mu.Lock()
	m.synthesisStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSynthesisEnd records the end of a synthesis request
func (m *Metrics) RecordSynthesisEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.synthesisStartTime.IsZero() {
		synthesisLatency.Observe(time.Since(m.synthesisStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	synthesisRequests.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}
