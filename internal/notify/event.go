// Package notify turns engine state changes into outbound events. Events are
// written to a transactional outbox in the same unit of work as the change
// and drained to a publisher by Worker, giving at-least-once delivery keyed
// by event id.
package notify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"zerotrust/internal/attestation/models"
	"zerotrust/internal/audit"
	"zerotrust/pkg/requestcontext"
)

type EventType string

const (
	EventCommitmentIssued EventType = "commitment_issued"
	EventVerdictRecorded  EventType = "verdict_recorded"
)

// Event is one outbox row.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	Type          EventType
	Payload       json.RawMessage
	CreatedAt     time.Time
	Attempts      int
}

type envelope struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	CreatedAt   time.Time       `json:"created_at"`
	Payload     json.RawMessage `json:"payload"`
}

// Envelope is the wire form handed to publishers.
func (e *Event) Envelope() ([]byte, error) {
	return json.Marshal(envelope{
		ID:          e.ID.String(),
		Type:        e.Type,
		AggregateID: e.AggregateID,
		CreatedAt:   e.CreatedAt,
		Payload:     e.Payload,
	})
}

// Outbox stores events until they are published.
type Outbox interface {
	Enqueue(ctx context.Context, e *Event) error
	Pending(ctx context.Context, limit, maxAttempts int) ([]*Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type commitmentIssuedPayload struct {
	CommitmentID    string    `json:"commitment_id"`
	AttributeDigest string    `json:"attribute_digest"`
	IssuerID        string    `json:"issuer_id"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type verdictRecordedPayload struct {
	Seq           uint64    `json:"seq"`
	RecordID      string    `json:"record_id"`
	PolicyScopeID string    `json:"policy_scope_id"`
	Nullifier     string    `json:"nullifier"`
	Outcome       string    `json:"outcome"`
	Timestamp     time.Time `json:"timestamp"`
	RecordHash    string    `json:"record_hash"`
}

// Notifier enqueues events. It satisfies the attestation service and audit
// trail notifier ports.
type Notifier struct {
	outbox Outbox
	logger *slog.Logger
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func NewNotifier(outbox Outbox, opts ...Option) (*Notifier, error) {
	if outbox == nil {
		return nil, errors.New("outbox is required")
	}
	n := &Notifier{outbox: outbox, logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *Notifier) CommitmentIssued(ctx context.Context, c *models.Commitment) error {
	return n.enqueue(ctx, "commitment", string(c.ID), EventCommitmentIssued, commitmentIssuedPayload{
		CommitmentID:    string(c.ID),
		AttributeDigest: hex.EncodeToString(c.AttributeDigest),
		IssuerID:        string(c.IssuerID),
		IssuedAt:        c.IssuedAt,
		ExpiresAt:       c.ExpiresAt,
	})
}

func (n *Notifier) VerdictRecorded(ctx context.Context, r *audit.Record) error {
	return n.enqueue(ctx, "audit_record", r.RecordID.String(), EventVerdictRecorded, verdictRecordedPayload{
		Seq:           r.Seq,
		RecordID:      r.RecordID.String(),
		PolicyScopeID: string(r.ScopeID),
		Nullifier:     string(r.Nullifier),
		Outcome:       string(r.Outcome),
		Timestamp:     r.Timestamp,
		RecordHash:    hex.EncodeToString(r.RecordHash),
	})
}

func (n *Notifier) enqueue(ctx context.Context, aggType, aggID string, typ EventType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	e := &Event{
		ID:            uuid.New(),
		AggregateType: aggType,
		AggregateID:   aggID,
		Type:          typ,
		Payload:       body,
		CreatedAt:     requestcontext.Now(ctx).UTC(),
	}
	if err := n.outbox.Enqueue(ctx, e); err != nil {
		n.logger.ErrorContext(ctx, "failed to enqueue outbound event",
			"event_type", typ,
			"error", err,
		)
		return fmt.Errorf("enqueue %s: %w", typ, err)
	}
	return nil
}
