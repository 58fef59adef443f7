package httptransport

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Engine

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	attestation "zerotrust/internal/attestation/models"
	attestationsvc "zerotrust/internal/attestation/service"
	"zerotrust/internal/audit"
	"zerotrust/internal/orchestrator"
	policy "zerotrust/internal/policy/models"
	"zerotrust/internal/transport/http/mocks"
	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/testutil"
)

const commitmentID = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

type HandlerSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	engine *mocks.MockEngine
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.engine = mocks.NewMockEngine(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	health := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	s.router = NewRouter(New(s.engine, logger), logger, nil, health)
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), method, path, body))
}

func (s *HandlerSuite) TestIssue() {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.engine.EXPECT().Issue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, req attestationsvc.IssueRequest) (*attestationsvc.IssueResult, error) {
			s.Equal("issuer:acme-kyc", req.IssuerID)
			s.Require().Len(req.Attributes, 2)
			s.Equal(json.Number("1990"), req.Attributes[1].Value)
			s.Equal(24*time.Hour, req.Validity.TTL)
			return &attestationsvc.IssueResult{
				Commitment: &attestation.Commitment{
					ID:              commitmentID,
					AttributeDigest: []byte{0xab},
					IssuerID:        "issuer:acme-kyc",
					IssuedAt:        now,
					ExpiresAt:       now.Add(24 * time.Hour),
				},
				Attributes: attestation.AttributeSet{
					{Name: "birth_year", Value: attestation.IntValue(1990)},
					{Name: "country", Value: attestation.StringValue("FR")},
				},
				Blinding: []byte{1, 2, 3},
			}, nil
		})

	rec := s.do(http.MethodPost, "/attest", map[string]any{
		"issuer_id": " issuer:acme-kyc ",
		"attributes": []map[string]any{
			{"name": "country", "value": "FR"},
			{"name": "birth_year", "value": 1990},
		},
		"ttl_seconds": 86400,
	})

	s.Equal(http.StatusCreated, rec.Code)
	resp := testutil.UnmarshalResponse[IssueResponse](s.T(), rec)
	s.Equal(commitmentID, resp.CommitmentID)
	s.Equal("ab", resp.AttributeDigest)
	s.Equal([]byte{1, 2, 3}, resp.Blinding)
	s.Len(resp.Attributes, 2)
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *HandlerSuite) TestIssueValidation() {
	cases := map[string]any{
		"missing issuer": map[string]any{"attributes": []any{}},
		"ttl and expiry": map[string]any{"issuer_id": "issuer:x", "ttl_seconds": 10, "expires_at": time.Now()},
		"negative ttl":   map[string]any{"issuer_id": "issuer:x", "ttl_seconds": -1},
		"ttl overflows":  map[string]any{"issuer_id": "issuer:x", "ttl_seconds": int64(18446744074)},
	}
	for name, body := range cases {
		s.Run(name, func() {
			rec := s.do(http.MethodPost, "/attest", body)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}

	rec := s.do(http.MethodPost, "/attest", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestVerify() {
	rid := domain.NewRecordID()
	s.engine.EXPECT().Verify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, req orchestrator.VerifyRequest) (*orchestrator.Verdict, error) {
			s.Equal(commitmentID, req.CommitmentID)
			s.Equal("eu/adult/v1", req.PolicyScopeID)
			s.Equal([]byte("proof"), req.Proof)
			return &orchestrator.Verdict{
				RecordID:      rid,
				Seq:           7,
				PolicyScopeID: "eu/adult/v1",
				Nullifier:     "aa",
				Outcome:       domain.OutcomePass,
				RecordHash:    []byte{0x01, 0x02},
				States:        []orchestrator.State{orchestrator.StateReceived, orchestrator.StateCompleted},
			}, nil
		})

	rec := s.do(http.MethodPost, "/verify", map[string]any{
		"commitment_id":   commitmentID,
		"policy_scope_id": "eu/adult/v1",
		"revealed":        []map[string]any{{"name": "birth_year", "value": 1990}},
		"proof":           []byte("proof"),
	})

	s.Equal(http.StatusOK, rec.Code)
	resp := testutil.UnmarshalResponse[VerdictResponse](s.T(), rec)
	s.Equal(rid.String(), resp.RecordID)
	s.Equal(uint64(7), resp.Seq)
	s.Equal("pass", resp.Outcome)
	s.Equal("0102", resp.RecordHash)
	s.Len(resp.States, 2)
}

func (s *HandlerSuite) TestVerifyErrorMapping() {
	cases := []struct {
		code   dErrors.Code
		status int
		detail bool
	}{
		{dErrors.CodeAlreadyConsumed, http.StatusConflict, true},
		{dErrors.CodeProofInvalid, http.StatusUnprocessableEntity, true},
		{dErrors.CodeUnknownPolicyScope, http.StatusNotFound, true},
		{dErrors.CodeAuditSuspended, http.StatusServiceUnavailable, false},
		{dErrors.CodeInternal, http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		s.Run(string(tc.code), func() {
			s.engine.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(tc.code, "detail"))
			rec := s.do(http.MethodPost, "/verify", map[string]any{
				"commitment_id":   commitmentID,
				"policy_scope_id": "eu/adult/v1",
			})
			testutil.AssertStatusAndError(s.T(), rec, tc.status, string(tc.code), tc.detail)
		})
	}
}

func (s *HandlerSuite) TestRevoke() {
	revoked := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s.engine.EXPECT().Revoke(gomock.Any(), commitmentID, "fraud").Return(&attestation.Commitment{
		ID:               commitmentID,
		IssuerID:         "issuer:acme-kyc",
		RevokedAt:        &revoked,
		RevocationReason: "fraud",
	}, nil)

	rec := s.do(http.MethodPost, "/commitments/"+commitmentID+"/revoke", map[string]string{"reason": "fraud"})
	s.Equal(http.StatusOK, rec.Code)
	resp := testutil.UnmarshalResponse[CommitmentResponse](s.T(), rec)
	s.Require().NotNil(resp.RevokedAt)
	s.Equal("fraud", resp.RevocationReason)

	rec = s.do(http.MethodPost, "/commitments/"+commitmentID+"/revoke", map[string]string{"reason": " "})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestLookupNotFound() {
	s.engine.EXPECT().Lookup(gomock.Any(), commitmentID).Return(nil, dErrors.New(dErrors.CodeNotFound, "commitment not found"))
	rec := s.do(http.MethodGet, "/commitments/"+commitmentID, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestPolicyScopeWithSlashes() {
	p, err := policy.NewPolicy(policy.Baseline()[0], attestation.DefaultSchema(), time.Unix(0, 0))
	s.Require().NoError(err)
	s.engine.EXPECT().Policy(gomock.Any(), p.ScopeID).Return(p, nil)

	rec := s.do(http.MethodGet, "/policies/"+string(p.ScopeID), nil)
	s.Equal(http.StatusOK, rec.Code)
	resp := testutil.UnmarshalResponse[PolicyResponse](s.T(), rec)
	s.Equal(string(p.ScopeID), resp.ScopeID)
	s.Len(resp.Hash, 64)
}

func (s *HandlerSuite) TestExportAudit() {
	s.engine.EXPECT().ExportAudit(gomock.Any(), uint64(0), uint64(1)).Return(&audit.Export{
		Algorithm: audit.AlgSHA256,
		From:      0,
		To:        1,
		Anchor:    []byte{0xff},
		Records: []*audit.Record{
			{Seq: 0, RecordID: domain.NewRecordID(), Outcome: domain.OutcomePass, PrevHash: []byte{0xff}, RecordHash: []byte{0x01}},
			{Seq: 1, RecordID: domain.NewRecordID(), Outcome: domain.OutcomeFail, PrevHash: []byte{0x01}, RecordHash: []byte{0x02}},
		},
	}, nil)

	rec := s.do(http.MethodGet, "/audit/0-1", nil)
	s.Equal(http.StatusOK, rec.Code)
	doc := testutil.UnmarshalResponse[audit.ExportDocument](s.T(), rec)
	s.Equal("ff", doc.Anchor)
	s.Len(doc.Records, 2)
	s.Equal("02", doc.Records[1].RecordHash)
	s.Empty(doc.Checkpoint)
}

func (s *HandlerSuite) TestExportAuditBadRange() {
	for _, r := range []string{"5", "a-b", "4-2", "-1-3"} {
		rec := s.do(http.MethodGet, "/audit/"+r, nil)
		s.Equal(http.StatusBadRequest, rec.Code, r)
	}
}

func (s *HandlerSuite) TestAuditHead() {
	s.engine.EXPECT().AuditHead(gomock.Any()).Return(uint64(3), []byte{0xbe, 0xef}, nil)
	rec := s.do(http.MethodGet, "/audit/head", nil)
	s.Equal(http.StatusOK, rec.Code)
	resp := testutil.UnmarshalResponse[HeadResponse](s.T(), rec)
	s.Equal(uint64(3), resp.Size)
	s.Equal("beef", resp.TailHash)
}

func (s *HandlerSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, rec.Code)
}
