package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	attestation "zerotrust/internal/attestation/models"
	"zerotrust/pkg/domain"
)

// Policy is a published, immutable predicate bound to a scope.
type Policy struct {
	ScopeID      domain.PolicyScopeID
	Jurisdiction string
	Description  string
	Root         Node
	Hash         []byte
	PublishedAt  time.Time
}

// NewPolicy validates and compiles doc. Errors describe what is malformed.
func NewPolicy(doc Document, schema *attestation.Schema, publishedAt time.Time) (*Policy, error) {
	scope, err := domain.ParsePolicyScopeID(doc.ScopeID)
	if err != nil {
		return nil, err
	}
	if doc.Jurisdiction == "" {
		return nil, fmt.Errorf("jurisdiction is required")
	}
	root, err := Compile(doc.Rule, schema)
	if err != nil {
		return nil, err
	}
	p := &Policy{
		ScopeID:      scope,
		Jurisdiction: doc.Jurisdiction,
		Description:  doc.Description,
		Root:         root,
		PublishedAt:  publishedAt.UTC(),
	}
	canonical, err := json.Marshal(p.Document())
	if err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	sum := sha256.Sum256(canonical)
	p.Hash = sum[:]
	return p, nil
}

// Document returns the normalized authored form. Two documents that compile
// to the same tree produce the same Document and therefore the same Hash.
func (p *Policy) Document() Document {
	return Document{
		ScopeID:      string(p.ScopeID),
		Jurisdiction: p.Jurisdiction,
		Description:  p.Description,
		Rule:         Decompile(p.Root),
	}
}

// Evaluate applies the policy to the revealed attributes.
func (p *Policy) Evaluate(attrs attestation.AttributeSet) domain.Outcome {
	return Evaluate(p.Root, attrs).Outcome()
}
