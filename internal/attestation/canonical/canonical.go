// Package canonical produces the deterministic byte encoding of attributes
// that commitments and disclosure proofs are computed over.
//
// Each attribute encodes as the CBOR array [name, kind, value] under Core
// Deterministic Encoding, so equal attributes always yield identical bytes.
package canonical

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"zerotrust/internal/attestation/models"
)

// Entry is one encoded attribute, keyed by name.
type Entry struct {
	Name  string
	Bytes []byte
}

type wireAttribute struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Kind  uint8
	Value any
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("canonical: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IntDec:          cbor.IntDecConvertSignedOrFail,
		MaxNestedLevels: 4,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("canonical: cbor decoder: %v", err))
	}
}

// EncodeAttribute returns the canonical bytes of a single attribute.
func EncodeAttribute(a models.Attribute) ([]byte, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("canonical: attribute name is empty")
	}
	w := wireAttribute{Name: a.Name, Kind: uint8(a.Value.Kind)}
	switch a.Value.Kind {
	case models.KindBool:
		w.Value = a.Value.Bool
	case models.KindInt:
		w.Value = a.Value.Int
	case models.KindString, models.KindEnum:
		w.Value = a.Value.Str
	default:
		return nil, fmt.Errorf("canonical: attribute %s has no kind", a.Name)
	}
	return encMode.Marshal(w)
}

// EncodeSet encodes every attribute of set in canonical order.
func EncodeSet(set models.AttributeSet) ([]Entry, error) {
	out := make([]Entry, 0, len(set))
	for i, a := range set {
		if i > 0 && set[i-1].Name >= a.Name {
			return nil, fmt.Errorf("canonical: attribute set is not sorted and unique at %s", a.Name)
		}
		b, err := EncodeAttribute(a)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Name: a.Name, Bytes: b})
	}
	return out, nil
}

// DecodeAttribute reverses EncodeAttribute and rejects non-canonical input.
func DecodeAttribute(b []byte) (models.Attribute, error) {
	var w wireAttribute
	if err := decMode.Unmarshal(b, &w); err != nil {
		return models.Attribute{}, fmt.Errorf("canonical: decode: %w", err)
	}
	var v models.Value
	switch kind := models.Kind(w.Kind); kind {
	case models.KindBool:
		bv, ok := w.Value.(bool)
		if !ok {
			return models.Attribute{}, fmt.Errorf("canonical: %s: bool expected", w.Name)
		}
		v = models.BoolValue(bv)
	case models.KindInt:
		iv, ok := w.Value.(int64)
		if !ok {
			return models.Attribute{}, fmt.Errorf("canonical: %s: int expected", w.Name)
		}
		v = models.IntValue(iv)
	case models.KindString, models.KindEnum:
		sv, ok := w.Value.(string)
		if !ok {
			return models.Attribute{}, fmt.Errorf("canonical: %s: string expected", w.Name)
		}
		v = models.Value{Kind: kind, Str: sv}
	default:
		return models.Attribute{}, fmt.Errorf("canonical: %s: unknown kind %d", w.Name, w.Kind)
	}
	a := models.Attribute{Name: w.Name, Value: v}
	again, err := EncodeAttribute(a)
	if err != nil {
		return models.Attribute{}, err
	}
	if string(again) != string(b) {
		return models.Attribute{}, fmt.Errorf("canonical: %s: non-canonical encoding", w.Name)
	}
	return a, nil
}
