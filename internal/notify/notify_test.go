package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zerotrust/internal/attestation/models"
	"zerotrust/internal/audit"
	"zerotrust/internal/notify"
	"zerotrust/internal/notify/outbox"
	"zerotrust/pkg/domain"
	"zerotrust/pkg/requestcontext"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []*notify.Event
	failFor   map[notify.EventType]bool
}

func (p *recordingPublisher) Publish(_ context.Context, e *notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[e.Type] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, e)
	return nil
}

type NotifySuite struct {
	suite.Suite
	ctx      context.Context
	outbox   *outbox.InMemory
	notifier *notify.Notifier
	pub      *recordingPublisher
	worker   *notify.Worker
}

func TestNotifySuite(t *testing.T) {
	suite.Run(t, new(NotifySuite))
}

func (s *NotifySuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	s.outbox = outbox.NewInMemory()
	var err error
	s.notifier, err = notify.NewNotifier(s.outbox)
	s.Require().NoError(err)
	s.pub = &recordingPublisher{failFor: map[notify.EventType]bool{}}
	s.worker, err = notify.NewWorker(s.outbox, s.pub, notify.WithMaxAttempts(2))
	s.Require().NoError(err)
}

func (s *NotifySuite) commitment() *models.Commitment {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	c, err := models.NewCommitment([]byte{1, 2, 3}, "issuer-1", make([]byte, models.BlindingSize), now, now.Add(time.Hour))
	s.Require().NoError(err)
	return c
}

func (s *NotifySuite) TestEnqueueAndDrain() {
	c := s.commitment()
	s.Require().NoError(s.notifier.CommitmentIssued(s.ctx, c))
	s.Require().NoError(s.notifier.VerdictRecorded(s.ctx, &audit.Record{
		Seq:        4,
		RecordID:   domain.NewRecordID(),
		ScopeID:    "baseline/basic/v1",
		Nullifier:  "ab",
		Outcome:    domain.OutcomePass,
		RecordHash: []byte{0xde, 0xad},
	}))

	n, err := s.worker.Drain(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Require().Len(s.pub.published, 2)
	s.Equal(notify.EventCommitmentIssued, s.pub.published[0].Type)
	s.Equal(string(c.ID), s.pub.published[0].AggregateID)

	var issued map[string]any
	s.Require().NoError(json.Unmarshal(s.pub.published[0].Payload, &issued))
	s.Equal(string(c.ID), issued["commitment_id"])
	s.Equal("010203", issued["attribute_digest"])

	var payload map[string]any
	s.Require().NoError(json.Unmarshal(s.pub.published[1].Payload, &payload))
	s.Equal("dead", payload["record_hash"])
	s.Equal("pass", payload["outcome"])

	s.Run("published events are not redelivered", func() {
		n, err := s.worker.Drain(s.ctx)
		s.Require().NoError(err)
		s.Zero(n)
	})
}

func (s *NotifySuite) TestFailedDeliveryIsRetriedThenParked() {
	s.pub.failFor[notify.EventCommitmentIssued] = true
	s.Require().NoError(s.notifier.CommitmentIssued(s.ctx, s.commitment()))

	for range 3 {
		n, err := s.worker.Drain(s.ctx)
		s.Require().NoError(err)
		s.Zero(n)
	}
	events := s.outbox.Events()
	s.Require().Len(events, 1)
	s.Equal(2, events[0].Attempts)

	// parked after max attempts even once the broker recovers
	s.pub.failFor[notify.EventCommitmentIssued] = false
	n, err := s.worker.Drain(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *NotifySuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	s.Require().NoError(s.notifier.CommitmentIssued(ctx, s.commitment()))
	done := make(chan error, 1)
	go func() { done <- s.worker.Run(ctx) }()

	s.Eventually(func() bool {
		s.pub.mu.Lock()
		defer s.pub.mu.Unlock()
		return len(s.pub.published) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	s.ErrorIs(<-done, context.Canceled)
}
