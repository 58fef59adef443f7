package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"zerotrust/internal/audit"
	"zerotrust/pkg/domain"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore keeps the chain in audit_records. The seq primary key is
// what turns a racing writer into sentinel.ErrConflict.
type PostgresStore struct {
	db        *sql.DB
	algorithm string
}

func NewPostgres(db *sql.DB, algorithm string) *PostgresStore {
	return &PostgresStore{db: db, algorithm: algorithm}
}

const recordColumns = `seq, record_id, policy_scope_id, nullifier, outcome, timestamp_us, prev_hash, record_hash`

func (s *PostgresStore) Last(ctx context.Context) (*audit.Record, error) {
	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM audit_records
		ORDER BY seq DESC
		LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query audit head: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return records[0], nil
}

func (s *PostgresStore) Insert(ctx context.Context, r *audit.Record) error {
	_, err := tx.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_records (`+recordColumns+`, hash_algorithm)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, int64(r.Seq), uuid.UUID(r.RecordID), string(r.ScopeID), string(r.Nullifier), string(r.Outcome),
		r.Timestamp.UnixMicro(), r.PrevHash, r.RecordHash, s.algorithm)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Range(ctx context.Context, from, to uint64) ([]*audit.Record, error) {
	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM audit_records
		WHERE seq BETWEEN $1 AND $2
		ORDER BY seq
	`, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("query audit range: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*audit.Record, error) {
	defer rows.Close()
	var out []*audit.Record
	for rows.Next() {
		var (
			r         audit.Record
			seq       int64
			recordID  uuid.UUID
			scope     string
			nullifier string
			outcome   string
			micros    int64
		)
		if err := rows.Scan(&seq, &recordID, &scope, &nullifier, &outcome, &micros, &r.PrevHash, &r.RecordHash); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Seq = uint64(seq)
		r.RecordID = domain.RecordID(recordID)
		r.ScopeID = domain.PolicyScopeID(scope)
		r.Nullifier = domain.NullifierValue(nullifier)
		r.Outcome = domain.Outcome(outcome)
		r.Timestamp = time.UnixMicro(micros).UTC()
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}
