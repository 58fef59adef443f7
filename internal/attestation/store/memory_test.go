package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zerotrust/internal/attestation/models"
	"zerotrust/pkg/domain"
	"zerotrust/pkg/platform/sentinel"
)

type CommitmentStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestCommitmentStoreSuite(t *testing.T) {
	suite.Run(t, new(CommitmentStoreSuite))
}

func (s *CommitmentStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *CommitmentStoreSuite) newCommitment(seed byte) *models.Commitment {
	blinding := make([]byte, models.BlindingSize)
	blinding[0] = seed
	c, err := models.NewCommitment([]byte{seed, 1, 2}, "issuer", blinding, s.now, s.now.Add(time.Hour))
	s.Require().NoError(err)
	return c
}

func (s *CommitmentStoreSuite) TestCreateAndFind() {
	c := s.newCommitment(1)
	s.Require().NoError(s.store.Create(s.ctx, c))

	s.Run("finds by id", func() {
		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(c.AttributeDigest, found.AttributeDigest)
		s.Equal(c.IssuerID, found.IssuerID)
	})

	s.Run("returned value is a copy", func() {
		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		found.AttributeDigest[0] = 0xff
		again, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.NotEqual(byte(0xff), again.AttributeDigest[0])
	})

	s.Run("duplicate id conflicts", func() {
		s.ErrorIs(s.store.Create(s.ctx, c), sentinel.ErrConflict)
	})

	s.Run("unknown id", func() {
		_, err := s.store.FindByID(s.ctx, domain.CommitmentID("00"))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *CommitmentStoreSuite) TestRevokeIsMonotonic() {
	c := s.newCommitment(2)
	s.Require().NoError(s.store.Create(s.ctx, c))

	revoked, err := s.store.Revoke(s.ctx, c.ID, s.now, "compromised")
	s.Require().NoError(err)
	s.True(revoked.IsRevoked())

	again, err := s.store.Revoke(s.ctx, c.ID, s.now.Add(time.Minute), "other")
	s.ErrorIs(err, sentinel.ErrInvalidState)
	s.Equal("compromised", again.RevocationReason)
	s.Equal(s.now, *again.RevokedAt)

	_, err = s.store.Revoke(s.ctx, domain.CommitmentID("missing"), s.now, "x")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
