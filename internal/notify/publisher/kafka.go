package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"zerotrust/internal/notify"
)

// Producer is the slice of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Kafka publishes event envelopes to a single topic, keyed by event id so
// consumers can deduplicate redeliveries.
type Kafka struct {
	producer Producer
	topic    string
}

func NewKafka(producer Producer, topic string) (*Kafka, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return &Kafka{producer: producer, topic: topic}, nil
}

func (k *Kafka) Publish(ctx context.Context, e *notify.Event) error {
	value, err := e.Envelope()
	if err != nil {
		return fmt.Errorf("encode event envelope: %w", err)
	}
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(e.ID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "aggregate_type", Value: []byte(e.AggregateType)},
		},
	}
	if err := k.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", e.Type, err)
	}
	return nil
}
