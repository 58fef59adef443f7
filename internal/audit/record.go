package audit

import (
	"bytes"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"zerotrust/pkg/domain"
)

const recordVersion = 1

// Entry is what the orchestrator asks to be recorded.
type Entry struct {
	ScopeID   domain.PolicyScopeID
	Nullifier domain.NullifierValue
	Outcome   domain.Outcome
	Timestamp time.Time
}

// Record is one link of the audit chain. It identifies a verification only by
// its nullifier; no attribute values or commitment identifiers are kept.
type Record struct {
	Seq        uint64
	RecordID   domain.RecordID
	ScopeID    domain.PolicyScopeID
	Nullifier  domain.NullifierValue
	Outcome    domain.Outcome
	Timestamp  time.Time
	PrevHash   []byte
	RecordHash []byte
}

type wireRecord struct {
	_         struct{} `cbor:",toarray"`
	Version   uint8
	Seq       uint64
	RecordID  []byte
	ScopeID   string
	Nullifier string
	Outcome   string
	Micros    int64
}

var recordEnc cbor.EncMode

func init() {
	var err error
	recordEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("audit: cbor encoder: %v", err))
	}
}

// Canonical returns the deterministic encoding of every field covered by the
// record hash except the previous hash itself.
func (r *Record) Canonical() ([]byte, error) {
	id := r.RecordID
	return recordEnc.Marshal(wireRecord{
		Version:   recordVersion,
		Seq:       r.Seq,
		RecordID:  id[:],
		ScopeID:   string(r.ScopeID),
		Nullifier: string(r.Nullifier),
		Outcome:   string(r.Outcome),
		Micros:    r.Timestamp.UnixMicro(),
	})
}

// ComputeHash returns H(prev_hash || canonical(record)).
func ComputeHash(h Hasher, r *Record) ([]byte, error) {
	body, err := r.Canonical()
	if err != nil {
		return nil, err
	}
	return h.Sum(r.PrevHash, body), nil
}

// Genesis is the fixed predecessor hash of record 0.
func Genesis(h Hasher) []byte {
	return h.Sum([]byte("zerotrust-audit-genesis:" + h.Algorithm()))
}

// ChainError locates the first broken link.
type ChainError struct {
	Seq    uint64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at record %d: %s", e.Seq, e.Reason)
}

// VerifyRecords checks that records form an unbroken chain starting after
// anchor, the record hash of the predecessor (or the genesis hash).
// Sequence numbers must be contiguous. This is pure and needs no store, so
// an exported range can be checked offline.
func VerifyRecords(h Hasher, anchor []byte, records []*Record) error {
	prev := anchor
	for i, r := range records {
		if i > 0 && r.Seq != records[i-1].Seq+1 {
			return &ChainError{Seq: r.Seq, Reason: "sequence gap"}
		}
		if !bytes.Equal(r.PrevHash, prev) {
			return &ChainError{Seq: r.Seq, Reason: "prev_hash does not match predecessor"}
		}
		want, err := ComputeHash(h, r)
		if err != nil {
			return &ChainError{Seq: r.Seq, Reason: err.Error()}
		}
		if !bytes.Equal(want, r.RecordHash) {
			return &ChainError{Seq: r.Seq, Reason: "record_hash does not match contents"}
		}
		prev = r.RecordHash
	}
	return nil
}
