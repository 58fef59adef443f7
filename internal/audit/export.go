package audit

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"zerotrust/pkg/domain"
)

// ExportDocument is the JSON form of an Export handed to auditors. Hashes are
// hex; the checkpoint envelope is base64.
type ExportDocument struct {
	Algorithm  string           `json:"algorithm"`
	From       uint64           `json:"from"`
	To         uint64           `json:"to"`
	Anchor     string           `json:"anchor"`
	Records    []RecordDocument `json:"records"`
	Checkpoint string           `json:"checkpoint,omitempty"`
}

type RecordDocument struct {
	Seq           uint64    `json:"seq"`
	RecordID      string    `json:"record_id"`
	PolicyScopeID string    `json:"policy_scope_id"`
	Nullifier     string    `json:"nullifier"`
	Outcome       string    `json:"outcome"`
	Timestamp     time.Time `json:"timestamp"`
	PrevHash      string    `json:"prev_hash"`
	RecordHash    string    `json:"record_hash"`
}

func (e *Export) Document() ExportDocument {
	doc := ExportDocument{
		Algorithm: e.Algorithm,
		From:      e.From,
		To:        e.To,
		Anchor:    hex.EncodeToString(e.Anchor),
		Records:   make([]RecordDocument, 0, len(e.Records)),
	}
	if len(e.Checkpoint) > 0 {
		doc.Checkpoint = base64.StdEncoding.EncodeToString(e.Checkpoint)
	}
	for _, r := range e.Records {
		doc.Records = append(doc.Records, RecordDocument{
			Seq:           r.Seq,
			RecordID:      r.RecordID.String(),
			PolicyScopeID: string(r.ScopeID),
			Nullifier:     string(r.Nullifier),
			Outcome:       string(r.Outcome),
			Timestamp:     r.Timestamp,
			PrevHash:      hex.EncodeToString(r.PrevHash),
			RecordHash:    hex.EncodeToString(r.RecordHash),
		})
	}
	return doc
}

// Export decodes the document back into records that VerifyRecords accepts.
func (d ExportDocument) Export() (*Export, error) {
	anchor, err := hex.DecodeString(d.Anchor)
	if err != nil {
		return nil, fmt.Errorf("anchor: %w", err)
	}
	exp := &Export{Algorithm: d.Algorithm, From: d.From, To: d.To, Anchor: anchor}
	if d.Checkpoint != "" {
		if exp.Checkpoint, err = base64.StdEncoding.DecodeString(d.Checkpoint); err != nil {
			return nil, fmt.Errorf("checkpoint: %w", err)
		}
	}
	for _, rd := range d.Records {
		id, err := domain.ParseRecordID(rd.RecordID)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", rd.Seq, err)
		}
		prev, err := hex.DecodeString(rd.PrevHash)
		if err != nil {
			return nil, fmt.Errorf("record %d prev_hash: %w", rd.Seq, err)
		}
		hash, err := hex.DecodeString(rd.RecordHash)
		if err != nil {
			return nil, fmt.Errorf("record %d record_hash: %w", rd.Seq, err)
		}
		exp.Records = append(exp.Records, &Record{
			Seq:        rd.Seq,
			RecordID:   id,
			ScopeID:    domain.PolicyScopeID(rd.PolicyScopeID),
			Nullifier:  domain.NullifierValue(rd.Nullifier),
			Outcome:    domain.Outcome(rd.Outcome),
			Timestamp:  rd.Timestamp.UTC(),
			PrevHash:   prev,
			RecordHash: hash,
		})
	}
	return exp, nil
}

// Verify checks an export offline: the record links and the anchor. When pub
// is set the checkpoint signature is checked too, and if the export reaches
// the checkpointed head its tail must match the signed tail hash.
func (e *Export) Verify(pub *ecdsa.PublicKey) (*Checkpoint, error) {
	h, err := NewHasher(e.Algorithm)
	if err != nil {
		return nil, err
	}
	if len(e.Records) == 0 {
		return nil, errors.New("export holds no records")
	}
	if e.To < e.From || uint64(len(e.Records))-1 != e.To-e.From || e.Records[0].Seq != e.From {
		return nil, fmt.Errorf("export declares records %d..%d but holds %d", e.From, e.To, len(e.Records))
	}
	if e.From == 0 && !bytes.Equal(Genesis(h), e.Anchor) {
		return nil, &ChainError{Seq: 0, Reason: "anchor is not the genesis hash"}
	}
	if err := VerifyRecords(h, e.Anchor, e.Records); err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, nil
	}
	if len(e.Checkpoint) == 0 {
		return nil, errors.New("export carries no checkpoint")
	}
	cp, err := VerifyCheckpoint(e.Checkpoint, pub)
	if err != nil {
		return nil, err
	}
	if cp.Algorithm != e.Algorithm {
		return nil, fmt.Errorf("checkpoint algorithm %q does not match export %q", cp.Algorithm, e.Algorithm)
	}
	if cp.Size < e.To+1 {
		return nil, fmt.Errorf("checkpoint size %d precedes exported record %d", cp.Size, e.To)
	}
	if cp.Size == e.To+1 && !bytes.Equal(cp.TailHash, e.Records[len(e.Records)-1].RecordHash) {
		return nil, &ChainError{Seq: e.To, Reason: "tail does not match signed checkpoint"}
	}
	return cp, nil
}
