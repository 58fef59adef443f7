package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published prometheus.Counter
	Rejected  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zerotrust_policies_published_total",
			Help: "Total number of policies published",
		}),
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerotrust_policy_publish_rejected_total",
			Help: "Policy publications rejected, by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) IncrementPublished() {
	m.Published.Inc()
}

func (m *Metrics) IncrementRejected(code string) {
	m.Rejected.WithLabelValues(code).Inc()
}
