package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the audit chain. Suspended is 1 while appends are halted.
type Metrics struct {
	Appends        prometheus.Counter
	AppendFailures prometheus.Counter
	AppendDuration prometheus.Histogram
	ChainBreaks    prometheus.Counter
	Suspended      prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Appends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zerotrust_audit_appends_total",
			Help: "Records appended to the audit chain",
		}),
		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zerotrust_audit_append_failures_total",
			Help: "Append attempts that could not be persisted",
		}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "zerotrust_audit_append_duration_seconds",
			Help:    "Duration of audit appends including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ChainBreaks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zerotrust_audit_chain_breaks_total",
			Help: "Integrity violations detected in the audit chain",
		}),
		Suspended: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "zerotrust_audit_suspended",
			Help: "1 while appends are suspended pending reconciliation",
		}),
	}
}

func (m *Metrics) IncrementAppends() {
	m.Appends.Inc()
}

func (m *Metrics) IncrementAppendFailures() {
	m.AppendFailures.Inc()
}

func (m *Metrics) ObserveAppend(start time.Time) {
	m.AppendDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementChainBreaks() {
	m.ChainBreaks.Inc()
}

func (m *Metrics) SetSuspended(v bool) {
	if v {
		m.Suspended.Set(1)
		return
	}
	m.Suspended.Set(0)
}
