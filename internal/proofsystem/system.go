// Package proofsystem defines the pluggable zero-knowledge backend used to
// commit to attribute sets and to check selective-disclosure proofs.
package proofsystem

import (
	"context"

	"zerotrust/internal/attestation/canonical"
)

// PublicInputs binds a proof to a stored commitment and the attributes it reveals.
// Revealed entries are in canonical order.
type PublicInputs struct {
	Digest   []byte
	Revealed []canonical.Entry
}

// System is a proof backend.
//
// VerifyProof returns (false, nil) for any proof that does not verify,
// including malformed ones. A non-nil error means the backend itself failed.
type System interface {
	Name() string
	Commit(ctx context.Context, entries []canonical.Entry, blinding []byte) ([]byte, error)
	VerifyProof(ctx context.Context, in PublicInputs, proof []byte) (bool, error)
}
