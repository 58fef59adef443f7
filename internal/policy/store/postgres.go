package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	attestation "zerotrust/internal/attestation/models"
	"zerotrust/internal/policy/models"
	"zerotrust/pkg/domain"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/platform/tx"
)

// PostgresStore keeps the normalized document and recompiles it on load.
type PostgresStore struct {
	db     *sql.DB
	schema *attestation.Schema
}

func NewPostgres(db *sql.DB, schema *attestation.Schema) *PostgresStore {
	return &PostgresStore{db: db, schema: schema}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Policy) error {
	doc, err := json.Marshal(p.Document())
	if err != nil {
		return fmt.Errorf("encode policy document: %w", err)
	}
	res, err := tx.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO policies (scope_id, jurisdiction, description, document, document_hash, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope_id) DO NOTHING
	`, string(p.ScopeID), p.Jurisdiction, p.Description, doc, p.Hash, p.PublishedAt)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert policy rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByScope(ctx context.Context, scope domain.PolicyScopeID) (*models.Policy, error) {
	row := tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx, `
		SELECT document, document_hash, published_at
		FROM policies
		WHERE scope_id = $1
	`, string(scope))
	p, err := s.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find policy: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Policy, error) {
	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, `
		SELECT document, document_hash, published_at
		FROM policies
		ORDER BY scope_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []*models.Policy
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scan(row scanner) (*models.Policy, error) {
	var (
		raw         []byte
		hash        []byte
		publishedAt time.Time
	)
	if err := row.Scan(&raw, &hash, &publishedAt); err != nil {
		return nil, err
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}
	p, err := models.NewPolicy(doc, s.schema, publishedAt)
	if err != nil {
		return nil, fmt.Errorf("compile stored policy %s: %w", doc.ScopeID, err)
	}
	if !bytes.Equal(p.Hash, hash) {
		return nil, fmt.Errorf("stored policy %s does not match its hash", doc.ScopeID)
	}
	return p, nil
}
