package audit

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"golang.org/x/crypto/blake2b"
)

// Supported chain hash algorithms.
const (
	AlgSHA256     = "sha256"
	AlgSHA512_256 = "sha512_256"
	AlgBLAKE2b256 = "blake2b_256"
	AlgMiMCBN254  = "mimc_bn254"
)

// Hasher is the collision-resistant function that links records.
type Hasher interface {
	Algorithm() string
	Sum(parts ...[]byte) []byte
}

// NewHasher returns the hasher for alg.
func NewHasher(alg string) (Hasher, error) {
	switch alg {
	case AlgSHA256:
		return stdHasher{alg: alg, fn: sha256.New}, nil
	case AlgSHA512_256:
		return stdHasher{alg: alg, fn: sha512.New512_256}, nil
	case AlgBLAKE2b256:
		return stdHasher{alg: alg, fn: func() hash.Hash {
			h, _ := blake2b.New256(nil)
			return h
		}}, nil
	case AlgMiMCBN254:
		return mimcHasher{}, nil
	}
	return nil, fmt.Errorf("unsupported chain hash algorithm %q", alg)
}

// Algorithms lists accepted algorithm names.
func Algorithms() []string {
	return []string{AlgSHA256, AlgSHA512_256, AlgBLAKE2b256, AlgMiMCBN254}
}

type stdHasher struct {
	alg string
	fn  func() hash.Hash
}

func (h stdHasher) Algorithm() string { return h.alg }

func (h stdHasher) Sum(parts ...[]byte) []byte {
	d := h.fn()
	for _, p := range parts {
		d.Write(p)
	}
	return d.Sum(nil)
}

// mimcHasher folds arbitrary bytes into BN254 scalar field elements so the
// chain can be re-verified inside a SNARK circuit. Input is length-prefixed
// and split into 31-byte chunks, each strictly below the field modulus.
type mimcHasher struct{}

const mimcChunk = fr.Bytes - 1

func (mimcHasher) Algorithm() string { return AlgMiMCBN254 }

func (mimcHasher) Sum(parts ...[]byte) []byte {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	buf := make([]byte, 8, 8+total)
	binary.BigEndian.PutUint64(buf, uint64(total))
	for _, p := range parts {
		buf = append(buf, p...)
	}

	d := mimc.NewMiMC()
	var e fr.Element
	for start := 0; start < len(buf); start += mimcChunk {
		end := min(start+mimcChunk, len(buf))
		e.SetBytes(buf[start:end])
		b := e.Bytes()
		// elements are canonical, so Write cannot fail
		_, _ = d.Write(b[:])
	}
	return d.Sum(nil)
}
