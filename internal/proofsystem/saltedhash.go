package proofsystem

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"zerotrust/internal/attestation/canonical"
)

const (
	SaltedHashName = "saltedhash-sha256/v1"

	saltTag    = "zerotrust/salt/v1"
	digestTag  = "zerotrust/digest/v1"
	leafPrefix = 0x00
	proofV1    = 1
	leafSize   = sha256.Size
	maxLeaves  = 256
)

// SaltedHash is a hash-based selective-disclosure system. Every attribute is
// committed as a leaf H(salt || encoding) with a salt derived from the
// blinding factor, and the digest hashes all leaves in canonical order.
// A proof reveals the salts of disclosed attributes and the leaves of the rest.
type SaltedHash struct{}

type saltedProof struct {
	_       struct{} `cbor:",toarray"`
	Version uint8
	Salts   map[string][]byte
	Leaves  [][]byte
}

var (
	proofEnc cbor.EncMode
	proofDec cbor.DecMode
)

func init() {
	var err error
	if proofEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(fmt.Sprintf("proofsystem: cbor encoder: %v", err))
	}
	proofDec, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: maxLeaves,
		MaxMapPairs:      maxLeaves,
		MaxNestedLevels:  4,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("proofsystem: cbor decoder: %v", err))
	}
}

func NewSaltedHash() *SaltedHash { return &SaltedHash{} }

func (*SaltedHash) Name() string { return SaltedHashName }

func (*SaltedHash) Commit(_ context.Context, entries []canonical.Entry, blinding []byte) ([]byte, error) {
	if len(blinding) == 0 {
		return nil, fmt.Errorf("saltedhash: blinding factor is required")
	}
	if len(entries) > maxLeaves {
		return nil, fmt.Errorf("saltedhash: too many attributes")
	}
	leaves := make([][]byte, len(entries))
	for i, e := range entries {
		leaves[i] = leaf(salt(blinding, e.Name), e.Bytes)
	}
	return digest(leaves), nil
}

func (*SaltedHash) VerifyProof(ctx context.Context, in PublicInputs, proof []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var p saltedProof
	if err := proofDec.Unmarshal(proof, &p); err != nil {
		return false, nil
	}
	if p.Version != proofV1 || len(p.Leaves) == 0 || len(p.Salts) != len(in.Revealed) {
		return false, nil
	}
	for _, l := range p.Leaves {
		if len(l) != leafSize {
			return false, nil
		}
	}
	used := make([]bool, len(p.Leaves))
	for _, e := range in.Revealed {
		s, ok := p.Salts[e.Name]
		if !ok || len(s) != sha256.Size {
			return false, nil
		}
		want := leaf(s, e.Bytes)
		found := false
		for i, l := range p.Leaves {
			if !used[i] && subtle.ConstantTimeCompare(l, want) == 1 {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return subtle.ConstantTimeCompare(digest(p.Leaves), in.Digest) == 1, nil
}

// Holder builds disclosure proofs on the subject side from the attribute
// set and blinding factor returned at issuance.
type Holder struct {
	entries  []canonical.Entry
	blinding []byte
}

func NewHolder(entries []canonical.Entry, blinding []byte) *Holder {
	return &Holder{entries: entries, blinding: append([]byte(nil), blinding...)}
}

// Prove discloses the named attributes and hides the rest.
func (h *Holder) Prove(reveal ...string) ([]byte, error) {
	want := make(map[string]bool, len(reveal))
	for _, n := range reveal {
		want[n] = true
	}
	p := saltedProof{Version: proofV1, Salts: make(map[string][]byte, len(reveal))}
	for _, e := range h.entries {
		s := salt(h.blinding, e.Name)
		p.Leaves = append(p.Leaves, leaf(s, e.Bytes))
		if want[e.Name] {
			p.Salts[e.Name] = s
			delete(want, e.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("saltedhash: attribute %s is not committed", n)
	}
	return proofEnc.Marshal(p)
}

func salt(blinding []byte, name string) []byte {
	m := hmac.New(sha256.New, blinding)
	m.Write([]byte(saltTag))
	m.Write([]byte(name))
	return m.Sum(nil)
}

func leaf(salt, encoded []byte) []byte {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write(salt)
	h.Write(encoded)
	return h.Sum(nil)
}

func digest(leaves [][]byte) []byte {
	h := sha256.New()
	h.Write([]byte(digestTag))
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(leaves)))
	h.Write(n[:])
	for _, l := range leaves {
		h.Write(l)
	}
	return h.Sum(nil)
}
