package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/luma/ondemand/protocol"
)

const (
	metricsNamespace = "ondemand"
	metricsSubsystem = "transport"
)

// metrics holds the Prometheus collectors for a server. A nil *metrics
// records nothing.
type metrics struct {
	accepted     prometheus.Counter
	active       prometheus.Gauge
	disconnects  *prometheus.CounterVec
	requests     *prometheus.CounterVec
	chunks       prometheus.Counter
	payloadBytes prometheus.Counter
	tickDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions_accepted_total",
			Help:      "Total number of accepted client connections",
		}),

		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions_active",
			Help:      "Number of live client sessions",
		}),

		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "disconnects_total",
			Help:      "Total number of destroyed sessions by reason",
		}, []string{"reason"}),

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "Total number of queued archive requests by priority",
		}, []string{"priority"}),

		chunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "chunks_sent_total",
			Help:      "Total number of response chunks written",
		}),

		payloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "payload_bytes_sent_total",
			Help:      "Total number of archive bytes written",
		}),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one dispatch loop tick, accept wait included",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}
}

func (m *metrics) sessionAccepted() {
	if m == nil {
		return
	}

	m.accepted.Inc()
	m.active.Inc()
}

func (m *metrics) sessionDestroyed(reason DisconnectReason) {
	if m == nil {
		return
	}

	m.active.Dec()
	m.disconnects.WithLabelValues(reason.String()).Inc()
}

func (m *metrics) requestQueued(p protocol.Priority) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(p.String()).Inc()
}

func (m *metrics) chunkSent(payload int) {
	if m == nil {
		return
	}

	m.chunks.Inc()
	m.payloadBytes.Add(float64(payload))
}

func (m *metrics) tick(d time.Duration) {
	if m == nil {
		return
	}

	m.tickDuration.Observe(d.Seconds())
}
