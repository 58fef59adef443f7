//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"zerotrust/internal/attestation/models"
	"zerotrust/internal/notify"
	"zerotrust/internal/notify/outbox"
	"zerotrust/internal/notify/publisher"
	"zerotrust/internal/platform/config"
	"zerotrust/internal/platform/kafka"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/testutil/containers"
)

// OutboxKafkaSuite drives events from the Postgres outbox to a Redpanda topic.
type OutboxKafkaSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	outbox   *outbox.PostgresStore
	producer *kgo.Client
	topic    string
}

func TestOutboxKafkaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxKafkaSuite))
}

func (s *OutboxKafkaSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())
	s.outbox = outbox.NewPostgres(s.postgres.DB)
	s.topic = "zerotrust.events." + uuid.NewString()[:8]

	var err error
	s.producer, err = kafka.NewProducer(context.Background(), config.KafkaConfig{
		Brokers:  s.redpanda.Brokers,
		Topic:    s.topic,
		ClientID: "zerotrust-it",
	})
	s.Require().NoError(err)
}

func (s *OutboxKafkaSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *OutboxKafkaSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *OutboxKafkaSuite) event(aggregateID string) *notify.Event {
	return &notify.Event{
		ID:            uuid.New(),
		AggregateType: "commitment",
		AggregateID:   aggregateID,
		Type:          notify.EventCommitmentIssued,
		Payload:       json.RawMessage(`{"commitment_id":"` + aggregateID + `"}`),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *OutboxKafkaSuite) TestPendingOrderAndMarking() {
	ctx := context.Background()
	first, second := s.event("a"), s.event("b")
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)
	s.Require().NoError(s.outbox.Enqueue(ctx, second))
	s.Require().NoError(s.outbox.Enqueue(ctx, first))

	pending, err := s.outbox.Pending(ctx, 10, 3)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID)

	s.Require().NoError(s.outbox.MarkPublished(ctx, first.ID, time.Now()))
	for range 3 {
		s.Require().NoError(s.outbox.MarkFailed(ctx, second.ID, "broker down"))
	}
	pending, err = s.outbox.Pending(ctx, 10, 3)
	s.Require().NoError(err)
	s.Empty(pending, "published and parked events are not pending")

	s.ErrorIs(s.outbox.MarkPublished(ctx, uuid.New(), time.Now()), sentinel.ErrNotFound)
}

func (s *OutboxKafkaSuite) TestWorkerDeliversToKafka() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	c, err := models.NewCommitment([]byte{0x9f, 0x86, 0xd0, 0x81}, "issuer-1", make([]byte, models.BlindingSize), now, now.Add(time.Hour))
	s.Require().NoError(err)
	notifier, err := notify.NewNotifier(s.outbox)
	s.Require().NoError(err)
	s.Require().NoError(notifier.CommitmentIssued(ctx, c))
	queued, err := s.outbox.Pending(ctx, 10, 10)
	s.Require().NoError(err)
	s.Require().Len(queued, 1)
	ev := queued[0]

	pub, err := publisher.NewKafka(s.producer, s.topic)
	s.Require().NoError(err)
	worker, err := notify.NewWorker(s.outbox, pub)
	s.Require().NoError(err)
	n, err := worker.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got *kgo.Record
	for got == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for record")
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == ev.ID.String() {
				got = r
			}
		})
	}

	var env map[string]any
	s.Require().NoError(json.Unmarshal(got.Value, &env))
	s.Equal(string(notify.EventCommitmentIssued), env["type"])
	s.Equal(string(c.ID), env["aggregate_id"])
	payload, ok := env["payload"].(map[string]any)
	s.Require().True(ok)
	s.Equal("9f86d081", payload["attribute_digest"])

	pending, err := s.outbox.Pending(ctx, 10, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
