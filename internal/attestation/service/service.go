package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"time"

	"zerotrust/internal/attestation/canonical"
	"zerotrust/internal/attestation/metrics"
	"zerotrust/internal/attestation/models"
	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/platform/tx"
	"zerotrust/pkg/requestcontext"
)

const maxReasonLength = 512

type Store interface {
	Create(ctx context.Context, c *models.Commitment) error
	FindByID(ctx context.Context, id domain.CommitmentID) (*models.Commitment, error)
	Revoke(ctx context.Context, id domain.CommitmentID, at time.Time, reason string) (*models.Commitment, error)
}

// Committer computes the attribute digest. The proof system provides it.
type Committer interface {
	Commit(ctx context.Context, entries []canonical.Entry, blinding []byte) ([]byte, error)
}

// Notifier records an issuance event in the same unit of work as the commitment.
type Notifier interface {
	CommitmentIssued(ctx context.Context, c *models.Commitment) error
}

// IssueRequest carries attributes as an ordered list so duplicates are detectable.
type IssueRequest struct {
	IssuerID   string
	Attributes []models.RawAttribute
	Validity   models.Validity
}

// IssueResult is returned once. The blinding factor is never stored and is
// what lets the subject later prove statements about the attributes.
type IssueResult struct {
	Commitment *models.Commitment
	Attributes models.AttributeSet
	Blinding   []byte
}

// Service issues, looks up and revokes commitments.
type Service struct {
	store     Store
	committer Committer
	schema    *models.Schema
	notifier  Notifier
	txRunner  tx.Runner
	validity  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) {
		s.txRunner = r
	}
}

func WithSchema(schema *models.Schema) Option {
	return func(s *Service) {
		s.schema = schema
	}
}

// WithDefaultValidity sets the lifetime used when a request carries none.
func WithDefaultValidity(d time.Duration) Option {
	return func(s *Service) {
		s.validity = d
	}
}

func New(store Store, committer Committer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("commitment store is required")
	}
	if committer == nil {
		return nil, errors.New("committer is required")
	}
	s := &Service{
		store:     store,
		committer: committer,
		schema:    models.DefaultSchema(),
		txRunner:  tx.NopRunner{},
		validity:  models.DefaultValidity,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Schema exposes the attribute declarations commitments are validated against.
func (s *Service) Schema() *models.Schema {
	return s.schema
}

// Issue validates the attribute set, commits to it and persists the commitment.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	start := time.Now()

	issuer, err := domain.ParseIssuerID(req.IssuerID)
	if err != nil {
		return nil, err
	}
	if len(req.Attributes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAttributeSet, "at least one attribute is required")
	}
	set, err := s.schema.Parse(req.Attributes, dErrors.CodeInvalidAttributeSet)
	if err != nil {
		return nil, err
	}
	entries, err := canonical.EncodeSet(set)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidAttributeSet, "attributes are not canonically encodable")
	}

	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	expiresAt, err := req.Validity.Resolve(now, s.validity)
	if err != nil {
		return nil, err
	}

	blinding := make([]byte, models.BlindingSize)
	if _, err := rand.Read(blinding); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate blinding factor")
	}
	digest, err := s.committer.Commit(ctx, entries, blinding)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit attributes")
	}

	c, err := models.NewCommitment(digest, issuer, blinding, now, expiresAt.Truncate(time.Microsecond))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build commitment")
		}
		return nil, err
	}

	err = s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, c); err != nil {
			return err
		}
		if s.notifier != nil {
			return s.notifier.CommitmentIssued(ctx, c)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "commitment already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist commitment")
	}

	s.logger.InfoContext(ctx, "commitment issued",
		"commitment_id", c.ID,
		"issuer_id", c.IssuerID,
		"attribute_count", len(set),
		"expires_at", c.ExpiresAt,
	)
	if s.metrics != nil {
		s.metrics.IncrementIssued()
		s.metrics.ObserveIssue(start)
	}
	return &IssueResult{Commitment: c, Attributes: set, Blinding: blinding}, nil
}

// Lookup returns commitment metadata. Attribute values are never stored.
func (s *Service) Lookup(ctx context.Context, rawID string) (*models.Commitment, error) {
	id, err := domain.ParseCommitmentID(rawID)
	if err != nil {
		return nil, err
	}
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "commitment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load commitment")
	}
	return c, nil
}

// Revoke permanently disables a commitment. Revoking twice keeps the first
// revocation and succeeds.
func (s *Service) Revoke(ctx context.Context, rawID, reason string) (*models.Commitment, error) {
	id, err := domain.ParseCommitmentID(rawID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation reason is required")
	}
	if len(reason) > maxReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation reason is too long")
	}

	c, err := s.store.Revoke(ctx, id, requestcontext.Now(ctx).UTC().Truncate(time.Microsecond), reason)
	switch {
	case errors.Is(err, sentinel.ErrInvalidState):
		s.logger.InfoContext(ctx, "commitment already revoked", "commitment_id", id)
		return c, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeNotFound, "commitment not found")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke commitment")
	}

	s.logger.InfoContext(ctx, "commitment revoked", "commitment_id", id, "reason", reason)
	if s.metrics != nil {
		s.metrics.IncrementRevoked()
	}
	return c, nil
}
