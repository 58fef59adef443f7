//go:build integration

package store_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"zerotrust/internal/audit"
	"zerotrust/internal/audit/store"
	"zerotrust/pkg/domain"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/platform/tx"
	"zerotrust/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	hasher   audit.Hasher
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	var err error
	s.hasher, err = audit.NewHasher(audit.AlgSHA256)
	s.Require().NoError(err)
	s.store = store.NewPostgres(s.postgres.DB, s.hasher.Algorithm())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_records", "outbox"))
}

func (s *PostgresStoreSuite) newTrail() *audit.Trail {
	trail, err := audit.New(s.store, s.hasher,
		audit.WithTxRunner(tx.SQLRunner{DB: s.postgres.DB}),
		audit.WithAppendRetries(20),
	)
	s.Require().NoError(err)
	return trail
}

func entry(i int) audit.Entry {
	return audit.Entry{
		ScopeID:   "baseline/standard/v1",
		Nullifier: domain.NullifierValue(strings.Repeat(string(rune('a'+i%6)), 64)),
		Outcome:   domain.OutcomePass,
	}
}

func (s *PostgresStoreSuite) TestEmptyChain() {
	_, err := s.store.Last(context.Background())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateSeqConflicts() {
	ctx := context.Background()
	rec, err := s.newTrail().Append(ctx, entry(0))
	s.Require().NoError(err)

	dup := *rec
	dup.RecordID = domain.NewRecordID()
	s.ErrorIs(s.store.Insert(ctx, &dup), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestRoundTripPreservesHash() {
	ctx := context.Background()
	trail := s.newTrail()
	for i := range 5 {
		_, err := trail.Append(ctx, entry(i))
		s.Require().NoError(err)
	}

	records, err := s.store.Range(ctx, 0, 4)
	s.Require().NoError(err)
	s.Require().Len(records, 5)
	s.NoError(audit.VerifyRecords(s.hasher, audit.Genesis(s.hasher), records))

	ok, err := trail.VerifyChain(ctx, 0, 4)
	s.Require().NoError(err)
	s.True(ok)
}

// TestTwoTrailsShareOneChain runs two trails, as two engine processes would,
// against one table. The primary key on seq serializes them.
func (s *PostgresStoreSuite) TestTwoTrailsShareOneChain() {
	ctx := context.Background()
	a, b := s.newTrail(), s.newTrail()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 40 {
		trail := a
		if i%2 == 1 {
			trail = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := trail.Append(ctx, entry(i)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	size, _, err := a.Head(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(40), size)
	s.NoError(a.Audit(ctx))
}

func (s *PostgresStoreSuite) TestTamperedRowSuspendsTrail() {
	ctx := context.Background()
	trail := s.newTrail()
	for i := range 3 {
		_, err := trail.Append(ctx, entry(i))
		s.Require().NoError(err)
	}
	_, err := s.postgres.Exec(ctx, `UPDATE audit_records SET outcome = 'fail' WHERE seq = 1`)
	s.Require().NoError(err)

	ok, err := trail.VerifyChain(ctx, 0, 2)
	s.Require().NoError(err)
	s.False(ok)
	suspended, _ := trail.Suspended()
	s.True(suspended)
}
