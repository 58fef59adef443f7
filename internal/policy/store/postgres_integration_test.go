//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	attestation "zerotrust/internal/attestation/models"
	"zerotrust/internal/policy/models"
	"zerotrust/internal/policy/store"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Cached
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "policies"))
	var err error
	s.store, err = store.NewCached(store.NewPostgres(s.postgres.DB, attestation.DefaultSchema()), 16)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestBaselineRoundTrip() {
	ctx := context.Background()
	published := time.Now().UTC().Truncate(time.Microsecond)
	for _, doc := range models.Baseline() {
		p, err := models.NewPolicy(doc, attestation.DefaultSchema(), published)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Create(ctx, p))
		s.ErrorIs(s.store.Create(ctx, p), sentinel.ErrConflict)
	}

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(all, len(models.Baseline()))

	// A fresh cache forces the read through Postgres and the rule recompile.
	cold, err := store.NewCached(store.NewPostgres(s.postgres.DB, attestation.DefaultSchema()), 16)
	s.Require().NoError(err)
	for _, want := range all {
		got, err := cold.FindByScope(ctx, want.ScopeID)
		s.Require().NoError(err)
		s.Equal(want.Hash, got.Hash)
		s.Equal(want.Document(), got.Document())
	}

	_, err = cold.FindByScope(ctx, "nowhere/v1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
