package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published     *prometheus.CounterVec
	PublishFailed *prometheus.CounterVec
	LastBatchSize prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerotrust_outbox_published_total",
			Help: "Outbox events delivered to the publisher",
		}, []string{"event_type"}),
		PublishFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zerotrust_outbox_publish_failures_total",
			Help: "Outbox events that failed delivery after retries",
		}, []string{"event_type"}),
		LastBatchSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "zerotrust_outbox_last_batch_size",
			Help: "Pending events picked up by the last drain",
		}),
	}
}

func (m *Metrics) IncrementPublished(eventType string) {
	m.Published.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementPublishFailed(eventType string) {
	m.PublishFailed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SetBatchSize(n int) {
	m.LastBatchSize.Set(float64(n))
}
