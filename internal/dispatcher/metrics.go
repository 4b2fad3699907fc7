package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes dispatcher counters. A nil *Metrics records nothing.
type Metrics struct {
	outcomes      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	refunds       prometheus.Counter
	tokens        prometheus.Counter
	duration      *prometheus.HistogramVec
	inflight      prometheus.Gauge
	providerUnits *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagebot",
			Subsystem: "dispatcher",
			Name:      "outcomes_total",
			Help:      "Processed deliveries by outcome.",
		}, []string{"outcome"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagebot",
			Subsystem: "dispatcher",
			Name:      "attempt_failures_total",
			Help:      "Failed attempts by provider and failure class.",
		}, []string{"provider", "class"}),
		refunds: f.NewCounter(prometheus.CounterOpts{
			Namespace: "imagebot",
			Subsystem: "dispatcher",
			Name:      "refunds_total",
			Help:      "Refunds issued for failed tasks.",
		}),
		tokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: "imagebot",
			Subsystem: "dispatcher",
			Name:      "refunded_tokens_total",
			Help:      "Tokens returned to accounts.",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imagebot",
			Subsystem: "dispatcher",
			Name:      "process_duration_seconds",
			Help:      "Time spent processing one delivery.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"outcome"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "imagebot",
			Subsystem: "dispatcher",
			Name:      "inflight",
			Help:      "Deliveries currently being processed.",
		}),
		providerUnits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagebot",
			Subsystem: "dispatcher",
			Name:      "provider_units_total",
			Help:      "Provider units consumed by completed tasks.",
		}, []string{"provider"}),
	}
}

func (m *Metrics) observe(out Outcome, took time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(out.Kind.String()).Inc()
	m.duration.WithLabelValues(out.Kind.String()).Observe(took.Seconds())
}

func (m *Metrics) attemptFailed(provider, class string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(provider, class).Inc()
}

func (m *Metrics) refunded(tokens int64) {
	if m == nil {
		return
	}
	m.refunds.Inc()
	m.tokens.Add(float64(tokens))
}

func (m *Metrics) completed(provider string, units int64) {
	if m == nil {
		return
	}
	m.providerUnits.WithLabelValues(provider).Add(float64(units))
}

func (m *Metrics) track(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}
