// Package disclosure binds a selective-disclosure proof to a stored
// commitment and the attributes it claims to reveal.
package disclosure

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zerotrust/internal/attestation/canonical"
	"zerotrust/internal/attestation/models"
	"zerotrust/internal/proofsystem"
	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/requestcontext"
)

type CommitmentReader interface {
	FindByID(ctx context.Context, id domain.CommitmentID) (*models.Commitment, error)
}

// Request is an untrusted disclosure presented by a subject.
type Request struct {
	CommitmentID domain.CommitmentID
	Revealed     []models.RawAttribute
	Proof        []byte
}

// Disclosure is the result of a successful verification. Only revealed
// attributes are present; nothing else about the subject is known.
type Disclosure struct {
	CommitmentID domain.CommitmentID
	IssuerID     domain.IssuerID
	Revealed     models.AttributeSet
	ExpiresAt    time.Time
	VerifiedAt   time.Time
}

// Verifier checks disclosures. Every failure path rejects; there is no
// partial acceptance.
type Verifier struct {
	commitments CommitmentReader
	proofs      proofsystem.System
	schema      *models.Schema
	logger      *slog.Logger
}

type Option func(*Verifier)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

func WithSchema(schema *models.Schema) Option {
	return func(v *Verifier) {
		v.schema = schema
	}
}

func New(commitments CommitmentReader, proofs proofsystem.System, opts ...Option) (*Verifier, error) {
	if commitments == nil {
		return nil, errors.New("commitment reader is required")
	}
	if proofs == nil {
		return nil, errors.New("proof system is required")
	}
	v := &Verifier{
		commitments: commitments,
		proofs:      proofs,
		schema:      models.DefaultSchema(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify runs the checks in a fixed order: commitment lookup, revocation,
// expiry, canonical re-encoding, then the proof itself. Revocation is
// reported even when the proof is valid.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Disclosure, error) {
	c, err := v.commitments.FindByID(ctx, req.CommitmentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeProofInvalid, "proof does not open a known commitment")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load commitment")
	}
	if c.IsRevoked() {
		return nil, dErrors.New(dErrors.CodeCommitmentRevoked, "commitment has been revoked")
	}
	now := requestcontext.Now(ctx)
	if c.IsExpired(now) {
		return nil, dErrors.New(dErrors.CodeExpiredCommitment, "commitment has expired")
	}

	revealed, err := v.schema.Parse(req.Revealed, dErrors.CodeEncodingMismatch)
	if err != nil {
		return nil, err
	}
	entries, err := canonical.EncodeSet(revealed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncodingMismatch, "revealed attributes are not canonically encodable")
	}

	ok, err := v.proofs.VerifyProof(ctx, proofsystem.PublicInputs{
		Digest:   c.AttributeDigest,
		Revealed: entries,
	}, req.Proof)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "verification cancelled")
		}
		v.logger.WarnContext(ctx, "proof backend failed, rejecting disclosure",
			"commitment_id", c.ID,
			"backend", v.proofs.Name(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeProofInvalid, "proof could not be verified")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeProofInvalid, "proof does not match commitment")
	}

	return &Disclosure{
		CommitmentID: c.ID,
		IssuerID:     c.IssuerID,
		Revealed:     revealed,
		ExpiresAt:    c.ExpiresAt,
		VerifiedAt:   now,
	}, nil
}
