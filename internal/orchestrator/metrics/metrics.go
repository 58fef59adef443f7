package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification requests.
type Metrics struct {
	Outcomes        *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	VerifyLatency   prometheus.Histogram
	UnauditedBurned prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerotrust_verifications_completed_total",
			Help: "Completed verifications by outcome and policy scope",
		}, []string{"outcome", "policy_scope_id"}),
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerotrust_verifications_rejected_total",
			Help: "Rejected verifications by reason code and the state reached",
		}, []string{"reason", "state"}),
		VerifyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "zerotrust_verification_duration_seconds",
			Help:    "End-to-end verification latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		UnauditedBurned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zerotrust_nullifiers_consumed_without_audit_total",
			Help: "Nullifiers consumed whose verdict could not be recorded",
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome, scope string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome, scope).Inc()
	}
}

func (m *Metrics) IncrementRejection(reason, state string) {
	if m != nil {
		m.Rejections.WithLabelValues(reason, state).Inc()
	}
}

func (m *Metrics) ObserveVerify(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementUnauditedBurned() {
	if m != nil {
		m.UnauditedBurned.Inc()
	}
}
