package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registrations *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerotrust_nullifier_registrations_total",
			Help: "Nullifier registration attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementAccepted() {
	m.Registrations.WithLabelValues("accepted").Inc()
}

// IncrementReplays counts attempts to reuse a consumed nullifier.
func (m *Metrics) IncrementReplays() {
	m.Registrations.WithLabelValues("already_consumed").Inc()
}
