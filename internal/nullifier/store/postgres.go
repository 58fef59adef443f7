package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zerotrust/pkg/domain"
	"zerotrust/pkg/platform/tx"
)

// Postgres relies on the primary key for atomicity.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Insert(ctx context.Context, value domain.NullifierValue, at time.Time) (bool, error) {
	res, err := tx.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO nullifiers (value, registered_at)
		VALUES ($1, $2)
		ON CONFLICT (value) DO NOTHING
	`, string(value), at)
	if err != nil {
		return false, fmt.Errorf("insert nullifier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert nullifier rows affected: %w", err)
	}
	return n == 1, nil
}
