package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zerotrust/internal/attestation/models"
	"zerotrust/internal/attestation/store"
	"zerotrust/internal/proofsystem"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/requestcontext"
)

type recordingNotifier struct {
	issued []*models.Commitment
	err    error
}

func (n *recordingNotifier) CommitmentIssued(_ context.Context, c *models.Commitment) error {
	if n.err != nil {
		return n.err
	}
	n.issued = append(n.issued, c)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	store    *store.InMemory
	notifier *recordingNotifier
	service  *Service
	ctx      context.Context
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.notifier = &recordingNotifier{}
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	var err error
	s.service, err = New(s.store, proofsystem.NewSaltedHash(),
		WithNotifier(s.notifier),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
}

func validRequest() IssueRequest {
	return IssueRequest{
		IssuerID: "kyc-provider-1",
		Attributes: []models.RawAttribute{
			{Name: models.AttrCountryOfResidence, Value: "NL"},
			{Name: models.AttrIsSanctioned, Value: false},
			{Name: models.AttrKYCTier, Value: 2},
		},
	}
}

func (s *ServiceSuite) TestNew() {
	_, err := New(nil, proofsystem.NewSaltedHash())
	s.ErrorContains(err, "commitment store is required")
	_, err = New(s.store, nil)
	s.ErrorContains(err, "committer is required")
}

func (s *ServiceSuite) TestIssue() {
	s.Run("persists commitment and emits event", func() {
		res, err := s.service.Issue(s.ctx, validRequest())
		s.Require().NoError(err)
		s.Len(res.Blinding, models.BlindingSize)
		s.Equal(s.now, res.Commitment.IssuedAt)
		s.Equal(s.now.Add(models.DefaultValidity), res.Commitment.ExpiresAt)
		s.Len(s.notifier.issued, 1)

		stored, err := s.store.FindByID(s.ctx, res.Commitment.ID)
		s.Require().NoError(err)
		s.Equal(res.Commitment.AttributeDigest, stored.AttributeDigest)
	})

	s.Run("same attributes yield different commitments", func() {
		a, err := s.service.Issue(s.ctx, validRequest())
		s.Require().NoError(err)
		b, err := s.service.Issue(s.ctx, validRequest())
		s.Require().NoError(err)
		s.NotEqual(a.Commitment.ID, b.Commitment.ID)
		s.NotEqual(a.Commitment.AttributeDigest, b.Commitment.AttributeDigest)
	})

	s.Run("explicit ttl", func() {
		req := validRequest()
		req.Validity = models.Validity{TTL: 24 * time.Hour}
		res, err := s.service.Issue(s.ctx, req)
		s.Require().NoError(err)
		s.Equal(s.now.Add(24*time.Hour), res.Commitment.ExpiresAt)
	})
}

func (s *ServiceSuite) TestIssueRejectsInvalidSets() {
	cases := map[string]func(*IssueRequest){
		"duplicate attribute": func(r *IssueRequest) {
			r.Attributes = append(r.Attributes, models.RawAttribute{Name: models.AttrKYCTier, Value: 1})
		},
		"undeclared attribute": func(r *IssueRequest) {
			r.Attributes = append(r.Attributes, models.RawAttribute{Name: "shoe_size", Value: 44})
		},
		"out of domain": func(r *IssueRequest) {
			r.Attributes[2].Value = 9
		},
		"empty set": func(r *IssueRequest) {
			r.Attributes = nil
		},
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			req := validRequest()
			mutate(&req)
			_, err := s.service.Issue(s.ctx, req)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidAttributeSet), "got %v", err)
		})
	}
	s.Empty(s.notifier.issued, "nothing is emitted for rejected input")

	s.Run("bad issuer", func() {
		req := validRequest()
		req.IssuerID = "bad issuer!"
		_, err := s.service.Issue(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestIssueNotifierFailure() {
	s.notifier.err = errors.New("outbox down")
	_, err := s.service.Issue(s.ctx, validRequest())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestLookupAndRevoke() {
	res, err := s.service.Issue(s.ctx, validRequest())
	s.Require().NoError(err)
	id := string(res.Commitment.ID)

	found, err := s.service.Lookup(s.ctx, id)
	s.Require().NoError(err)
	s.False(found.IsRevoked())

	s.Run("reason required", func() {
		_, err := s.service.Revoke(s.ctx, id, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.Revoke(s.ctx, id, strings.Repeat("x", maxReasonLength+1))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	revoked, err := s.service.Revoke(s.ctx, id, "issuer request")
	s.Require().NoError(err)
	s.True(revoked.IsRevoked())

	again, err := s.service.Revoke(s.ctx, id, "second")
	s.Require().NoError(err)
	s.Equal("issuer request", again.RevocationReason)

	s.Run("unknown commitment", func() {
		_, err := s.service.Lookup(s.ctx, strings.Repeat("a", 64))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.service.Revoke(s.ctx, strings.Repeat("a", 64), "x")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("malformed id", func() {
		_, err := s.service.Lookup(s.ctx, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
