package httptransport

import (
	"encoding/hex"
	"time"

	attestation "zerotrust/internal/attestation/models"
	attestationsvc "zerotrust/internal/attestation/service"
	"zerotrust/internal/orchestrator"
	policy "zerotrust/internal/policy/models"
)

// CommitmentResponse is commitment metadata; attribute values are never echoed.
type CommitmentResponse struct {
	CommitmentID     string     `json:"commitment_id"`
	AttributeDigest  string     `json:"attribute_digest"`
	IssuerID         string     `json:"issuer_id"`
	IssuedAt         time.Time  `json:"issued_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
}

func FromCommitment(c *attestation.Commitment) *CommitmentResponse {
	return &CommitmentResponse{
		CommitmentID:     string(c.ID),
		AttributeDigest:  hex.EncodeToString(c.AttributeDigest),
		IssuerID:         string(c.IssuerID),
		IssuedAt:         c.IssuedAt,
		ExpiresAt:        c.ExpiresAt,
		RevokedAt:        c.RevokedAt,
		RevocationReason: c.RevocationReason,
	}
}

// IssueResponse returns the opening material to the holder exactly once.
// Blinding is base64.
type IssueResponse struct {
	CommitmentResponse
	Attributes []AttributeRequest `json:"attributes"`
	Blinding   []byte             `json:"blinding"`
}

func FromIssueResult(res *attestationsvc.IssueResult) *IssueResponse {
	attrs := make([]AttributeRequest, len(res.Attributes))
	for i, a := range res.Attributes {
		attrs[i] = AttributeRequest{Name: a.Name, Value: a.Value.Any()}
	}
	return &IssueResponse{
		CommitmentResponse: *FromCommitment(res.Commitment),
		Attributes:         attrs,
		Blinding:           res.Blinding,
	}
}

type VerdictResponse struct {
	RecordID      string    `json:"record_id"`
	Seq           uint64    `json:"seq"`
	PolicyScopeID string    `json:"policy_scope_id"`
	Nullifier     string    `json:"nullifier"`
	Outcome       string    `json:"outcome"`
	RecordHash    string    `json:"record_hash"`
	Timestamp     time.Time `json:"timestamp"`
	States        []string  `json:"states"`
}

func FromVerdict(v *orchestrator.Verdict) *VerdictResponse {
	states := make([]string, len(v.States))
	for i, s := range v.States {
		states[i] = s.String()
	}
	return &VerdictResponse{
		RecordID:      v.RecordID.String(),
		Seq:           v.Seq,
		PolicyScopeID: string(v.PolicyScopeID),
		Nullifier:     string(v.Nullifier),
		Outcome:       string(v.Outcome),
		RecordHash:    hex.EncodeToString(v.RecordHash),
		Timestamp:     v.Timestamp,
		States:        states,
	}
}

type PolicyResponse struct {
	policy.Document
	Hash        string    `json:"hash"`
	PublishedAt time.Time `json:"published_at"`
}

func FromPolicy(p *policy.Policy) *PolicyResponse {
	return &PolicyResponse{
		Document:    p.Document(),
		Hash:        hex.EncodeToString(p.Hash),
		PublishedAt: p.PublishedAt,
	}
}

type HeadResponse struct {
	Size     uint64 `json:"size"`
	TailHash string `json:"tail_hash"`
}

func FromHead(size uint64, tail []byte) *HeadResponse {
	return &HeadResponse{Size: size, TailHash: hex.EncodeToString(tail)}
}
