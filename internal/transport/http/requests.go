package httptransport

import (
	"math"
	"strings"
	"time"

	attestation "zerotrust/internal/attestation/models"
	attestationsvc "zerotrust/internal/attestation/service"
	"zerotrust/internal/orchestrator"
	dErrors "zerotrust/pkg/domain-errors"
)

const (
	maxAttributes    = 64
	maxReasonLength  = 512
	maxIssuerIDBytes = 256
	// maxTTLSeconds keeps ttl_seconds within a time.Duration.
	maxTTLSeconds = math.MaxInt64 / int64(time.Second)
)

// AttributeRequest is one name/value pair. Values arrive as JSON strings,
// booleans or numbers and are coerced against the attribute schema.
type AttributeRequest struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func toRaw(in []AttributeRequest) []attestation.RawAttribute {
	out := make([]attestation.RawAttribute, len(in))
	for i, a := range in {
		out[i] = attestation.RawAttribute{Name: strings.TrimSpace(a.Name), Value: a.Value}
	}
	return out
}

// IssueRequest is the body of POST /attest. At most one of TTLSeconds and
// ExpiresAt may be set; with neither the configured validity applies.
type IssueRequest struct {
	IssuerID   string             `json:"issuer_id"`
	Attributes []AttributeRequest `json:"attributes"`
	TTLSeconds int64              `json:"ttl_seconds,omitempty"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
}

func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Attributes) > maxAttributes {
		return dErrors.New(dErrors.CodeValidation, "too many attributes")
	}
	r.IssuerID = strings.TrimSpace(r.IssuerID)
	if r.IssuerID == "" {
		return dErrors.New(dErrors.CodeValidation, "issuer_id is required")
	}
	if len(r.IssuerID) > maxIssuerIDBytes {
		return dErrors.New(dErrors.CodeValidation, "issuer_id is too long")
	}
	if r.TTLSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "ttl_seconds must be positive")
	}
	if r.TTLSeconds > maxTTLSeconds {
		return dErrors.New(dErrors.CodeValidation, "ttl_seconds is too large")
	}
	if r.TTLSeconds > 0 && r.ExpiresAt != nil {
		return dErrors.New(dErrors.CodeValidation, "ttl_seconds and expires_at are mutually exclusive")
	}
	return nil
}

func (r *IssueRequest) domain() attestationsvc.IssueRequest {
	req := attestationsvc.IssueRequest{
		IssuerID:   r.IssuerID,
		Attributes: toRaw(r.Attributes),
		Validity:   attestation.Validity{TTL: time.Duration(r.TTLSeconds) * time.Second},
	}
	if r.ExpiresAt != nil {
		req.Validity.ExpiresAt = r.ExpiresAt.UTC()
	}
	return req
}

// VerifyRequest is the body of POST /verify. Proof is base64.
type VerifyRequest struct {
	CommitmentID  string             `json:"commitment_id"`
	PolicyScopeID string             `json:"policy_scope_id"`
	Revealed      []AttributeRequest `json:"revealed"`
	Proof         []byte             `json:"proof"`
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Revealed) > maxAttributes {
		return dErrors.New(dErrors.CodeValidation, "too many revealed attributes")
	}
	r.CommitmentID = strings.TrimSpace(r.CommitmentID)
	r.PolicyScopeID = strings.TrimSpace(r.PolicyScopeID)
	if r.CommitmentID == "" {
		return dErrors.New(dErrors.CodeValidation, "commitment_id is required")
	}
	if r.PolicyScopeID == "" {
		return dErrors.New(dErrors.CodeValidation, "policy_scope_id is required")
	}
	return nil
}

func (r *VerifyRequest) domain() orchestrator.VerifyRequest {
	return orchestrator.VerifyRequest{
		CommitmentID:  r.CommitmentID,
		PolicyScopeID: r.PolicyScopeID,
		Revealed:      toRaw(r.Revealed),
		Proof:         r.Proof,
	}
}

// RevokeRequest is the body of POST /commitments/{id}/revoke.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}
