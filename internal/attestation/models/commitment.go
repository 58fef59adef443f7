package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
)

// DefaultValidity is applied when an issue request carries no validity.
const DefaultValidity = 90 * 24 * time.Hour

// BlindingSize is the byte length of a commitment blinding factor.
const BlindingSize = 32

const commitmentIDTag = "zerotrust/commitment/v1"

// Commitment is the stored, non-sensitive half of an attestation.
// Attribute values never appear here; only their digest does.
type Commitment struct {
	ID               domain.CommitmentID
	AttributeDigest  []byte
	IssuerID         domain.IssuerID
	IssuedAt         time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	RevocationReason string
}

// NewCommitment constructs a commitment and derives its identifier.
func NewCommitment(digest []byte, issuer domain.IssuerID, blinding []byte, issuedAt, expiresAt time.Time) (*Commitment, error) {
	if len(digest) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "attribute digest is required")
	}
	if len(blinding) != BlindingSize {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "blinding factor has wrong size")
	}
	if !expiresAt.After(issuedAt) {
		return nil, dErrors.New(dErrors.CodeValidation, "expiry must be after issuance")
	}
	return &Commitment{
		ID:              DeriveCommitmentID(digest, issuer, blinding),
		AttributeDigest: append([]byte(nil), digest...),
		IssuerID:        issuer,
		IssuedAt:        issuedAt.UTC(),
		ExpiresAt:       expiresAt.UTC(),
	}, nil
}

// DeriveCommitmentID hashes the digest, issuer and blinding into a stable identifier.
func DeriveCommitmentID(digest []byte, issuer domain.IssuerID, blinding []byte) domain.CommitmentID {
	h := sha256.New()
	h.Write([]byte(commitmentIDTag))
	for _, part := range [][]byte{digest, []byte(issuer), blinding} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(part)))
		h.Write(n[:])
		h.Write(part)
	}
	return domain.CommitmentID(hex.EncodeToString(h.Sum(nil)))
}

func (c *Commitment) IsRevoked() bool { return c.RevokedAt != nil }

// IsExpired reports whether now is at or past the expiry instant.
func (c *Commitment) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Revoke marks the commitment revoked. Revocation is permanent.
func (c *Commitment) Revoke(at time.Time, reason string) error {
	if c.IsRevoked() {
		return dErrors.New(dErrors.CodeCommitmentRevoked, "commitment already revoked")
	}
	t := at.UTC()
	c.RevokedAt = &t
	c.RevocationReason = reason
	return nil
}

// Validity bounds a commitment's lifetime. ExpiresAt wins over TTL when both are set.
type Validity struct {
	TTL       time.Duration
	ExpiresAt time.Time
}

// Resolve computes the expiry for a commitment issued at now.
func (v Validity) Resolve(now time.Time, fallback time.Duration) (time.Time, error) {
	if !v.ExpiresAt.IsZero() {
		if !v.ExpiresAt.After(now) {
			return time.Time{}, dErrors.New(dErrors.CodeValidation, "validity must end in the future")
		}
		return v.ExpiresAt, nil
	}
	if v.TTL < 0 {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "validity must be positive")
	}
	ttl := v.TTL
	if ttl == 0 {
		ttl = fallback
	}
	if ttl <= 0 {
		ttl = DefaultValidity
	}
	return now.Add(ttl), nil
}
