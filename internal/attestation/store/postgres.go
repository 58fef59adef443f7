package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"zerotrust/internal/attestation/models"
	"zerotrust/pkg/domain"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists commitments in PostgreSQL. Writes join the
// transaction carried by ctx so issuance and its outbox event commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Commitment) error {
	_, err := tx.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO commitments (id, attribute_digest, issuer_id, issued_at, expires_at, revoked_at, revocation_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, string(c.ID), c.AttributeDigest, string(c.IssuerID), c.IssuedAt, c.ExpiresAt, c.RevokedAt, c.RevocationReason)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert commitment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.CommitmentID) (*models.Commitment, error) {
	c, err := scanCommitment(tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, attribute_digest, issuer_id, issued_at, expires_at, revoked_at, revocation_reason
		FROM commitments
		WHERE id = $1
	`, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find commitment: %w", err)
	}
	return c, nil
}

// Revoke is a conditional update so concurrent revocations keep the first reason.
func (s *PostgresStore) Revoke(ctx context.Context, id domain.CommitmentID, at time.Time, reason string) (*models.Commitment, error) {
	c, err := scanCommitment(tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx, `
		UPDATE commitments
		SET revoked_at = $2, revocation_reason = $3
		WHERE id = $1 AND revoked_at IS NULL
		RETURNING id, attribute_digest, issuer_id, issued_at, expires_at, revoked_at, revocation_reason
	`, string(id), at.UTC(), reason))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revoke commitment: %w", err)
	}
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return existing, sentinel.ErrInvalidState
}

func scanCommitment(row *sql.Row) (*models.Commitment, error) {
	var (
		c         models.Commitment
		id        string
		issuer    string
		revokedAt sql.NullTime
	)
	if err := row.Scan(&id, &c.AttributeDigest, &issuer, &c.IssuedAt, &c.ExpiresAt, &revokedAt, &c.RevocationReason); err != nil {
		return nil, err
	}
	c.ID = domain.CommitmentID(id)
	c.IssuerID = domain.IssuerID(issuer)
	c.IssuedAt = c.IssuedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		c.RevokedAt = &t
	}
	return &c, nil
}
