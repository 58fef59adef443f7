package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks commitment issuance and revocation.
type Metrics struct {
	CommitmentsIssued  prometheus.Counter
	CommitmentsRevoked prometheus.Counter
	IssueDuration      prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		CommitmentsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zerotrust_commitments_issued_total",
			Help: "Total number of attribute commitments issued",
		}),
		CommitmentsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zerotrust_commitments_revoked_total",
			Help: "Total number of commitments revoked",
		}),
		IssueDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "zerotrust_commitment_issue_duration_seconds",
			Help:    "Duration of commitment issuance including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementIssued() {
	m.CommitmentsIssued.Inc()
}

func (m *Metrics) IncrementRevoked() {
	m.CommitmentsRevoked.Inc()
}

// ObserveIssue records issuance latency. Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIssue(start time.Time) {
	m.IssueDuration.Observe(time.Since(start).Seconds())
}
