package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "jan"
	subsystem = "chat_stream"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"method", "endpoint"},
	)

	SessionsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_started_total",
			Help:      "Stream sessions registered by start",
		},
	)

	SessionsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_finished_total",
			Help:      "Attached stream sessions by outcome",
		},
		[]string{"outcome"},
	)

	SessionsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_swept_total",
			Help:      "Sessions removed by the periodic sweep",
		},
	)

	TokensStreamedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tokens_streamed_total",
			Help:      "Text increments relayed to clients",
		},
	)

	TimeToFirstToken = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "time_to_first_token_seconds",
			Help:      "Delay between attach and the first relayed increment",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stream_duration_seconds",
			Help:      "Attached stream duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	BudgetDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "budget_degraded_total",
			Help:      "Starts whose response budget fell below the configured minimum",
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// StreamRecorder feeds orchestrator events into the collectors above.
type StreamRecorder struct{}

func NewStreamRecorder() *StreamRecorder {
	return &StreamRecorder{}
}

func (StreamRecorder) SessionStarted(degraded bool) {
	SessionsStartedTotal.Inc()
	if degraded {
		BudgetDegradedTotal.Inc()
	}
}

func (StreamRecorder) FirstToken(latency time.Duration) {
	TimeToFirstToken.Observe(latency.Seconds())
}

func (StreamRecorder) SessionFinished(outcome string, tokens int, duration time.Duration) {
	SessionsFinishedTotal.WithLabelValues(outcome).Inc()
	StreamDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	TokensStreamedTotal.Add(float64(tokens))
}

func (StreamRecorder) SessionsSwept(n int) {
	SessionsSweptTotal.Add(float64(n))
}
