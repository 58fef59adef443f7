package models

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"

	dErrors "zerotrust/pkg/domain-errors"
)

// Declared attribute names.
const (
	AttrCountryOfResidence = "country_of_residence"
	AttrIsSanctioned       = "is_sanctioned"
	AttrSanctionsCleared   = "sanctions_cleared"
	AttrKYCTier            = "kyc_tier"
	AttrKYCStatus          = "kyc_status"
	AttrAMLRiskLevel       = "aml_risk_level"
	AttrAgeOver18          = "age_over_18"
	AttrComplianceLevel    = "compliance_level"
)

var countryCode = regexp.MustCompile(`^[A-Z]{2}$`)

// AttributeSpec declares the type domain of one attribute.
// For enums, Ordered marks the declaration order as a ranking usable by lt/le/gt/ge.
type AttributeSpec struct {
	Name    string
	Kind    Kind
	Min     int64
	Max     int64
	Values  []string
	Ordered bool
	Pattern *regexp.Regexp
}

// Rank returns the position of an enum value in its declaration.
func (s AttributeSpec) Rank(v string) (int, bool) {
	for i, e := range s.Values {
		if e == v {
			return i, true
		}
	}
	return 0, false
}

// Check reports whether v lies inside the declared domain.
func (s AttributeSpec) Check(v Value) error {
	if v.Kind != s.Kind {
		return fmt.Errorf("%s: expected %s, got %s", s.Name, s.Kind, v.Kind)
	}
	switch s.Kind {
	case KindInt:
		if v.Int < s.Min || v.Int > s.Max {
			return fmt.Errorf("%s: %d outside [%d, %d]", s.Name, v.Int, s.Min, s.Max)
		}
	case KindEnum:
		if _, ok := s.Rank(v.Str); !ok {
			return fmt.Errorf("%s: %q is not a declared value", s.Name, v.Str)
		}
	case KindString:
		if s.Pattern != nil && !s.Pattern.MatchString(v.Str) {
			return fmt.Errorf("%s: %q is malformed", s.Name, v.Str)
		}
	}
	return nil
}

// Coerce converts a decoded JSON/YAML scalar into a typed value for this attribute.
func (s AttributeSpec) Coerce(raw any) (Value, error) {
	var v Value
	switch s.Kind {
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("%s: expected bool", s.Name)
		}
		v = BoolValue(b)
	case KindInt:
		i, err := toInt(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", s.Name, err)
		}
		v = IntValue(i)
	case KindString, KindEnum:
		str, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("%s: expected string", s.Name)
		}
		v = Value{Kind: s.Kind, Str: str}
	default:
		return Value{}, fmt.Errorf("%s: undeclared kind", s.Name)
	}
	if err := s.Check(v); err != nil {
		return Value{}, err
	}
	return v, nil
}

func toInt(raw any) (int64, error) {
	switch n := raw.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		return n.Int64()
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("expected integer")
}

// Schema is the closed set of attributes commitments may carry.
type Schema struct {
	specs map[string]AttributeSpec
}

// NewSchema builds a schema from specs.
func NewSchema(specs ...AttributeSpec) *Schema {
	m := make(map[string]AttributeSpec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return &Schema{specs: m}
}

// DefaultSchema declares the compliance attributes understood by the engine.
func DefaultSchema() *Schema {
	return NewSchema(
		AttributeSpec{Name: AttrCountryOfResidence, Kind: KindString, Pattern: countryCode},
		AttributeSpec{Name: AttrIsSanctioned, Kind: KindBool},
		AttributeSpec{Name: AttrSanctionsCleared, Kind: KindBool},
		AttributeSpec{Name: AttrKYCTier, Kind: KindInt, Min: 0, Max: 3},
		AttributeSpec{Name: AttrKYCStatus, Kind: KindEnum, Values: []string{"pending", "verified", "rejected", "expired"}},
		AttributeSpec{Name: AttrAMLRiskLevel, Kind: KindEnum, Values: []string{"low", "medium", "high", "critical"}, Ordered: true},
		AttributeSpec{Name: AttrAgeOver18, Kind: KindBool},
		AttributeSpec{Name: AttrComplianceLevel, Kind: KindEnum, Values: []string{"basic", "standard", "enhanced", "institutional_grade"}, Ordered: true},
	)
}

// Spec looks up the declaration for name.
func (s *Schema) Spec(name string) (AttributeSpec, bool) {
	spec, ok := s.specs[name]
	return spec, ok
}

// Names lists declared attributes, sorted.
func (s *Schema) Names() []string {
	out := make([]string, 0, len(s.specs))
	for n := range s.specs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Validate checks every attribute in set against its declaration.
func (s *Schema) Validate(set AttributeSet) error {
	for _, a := range set {
		spec, ok := s.specs[a.Name]
		if !ok {
			return dErrors.New(dErrors.CodeInvalidAttributeSet, "undeclared attribute: "+a.Name)
		}
		if err := spec.Check(a.Value); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidAttributeSet, "attribute outside declared domain")
		}
	}
	return nil
}

// RawAttribute is an untyped name/value pair as received at the API boundary.
type RawAttribute struct {
	Name  string
	Value any
}

// Parse coerces raw pairs into a validated attribute set. Failures carry code.
func (s *Schema) Parse(raw []RawAttribute, code dErrors.Code) (AttributeSet, error) {
	attrs := make([]Attribute, 0, len(raw))
	for _, r := range raw {
		spec, ok := s.specs[r.Name]
		if !ok {
			return nil, dErrors.New(code, "undeclared attribute: "+r.Name)
		}
		v, err := spec.Coerce(r.Value)
		if err != nil {
			return nil, dErrors.Wrap(err, code, err.Error())
		}
		attrs = append(attrs, Attribute{Name: r.Name, Value: v})
	}
	set, err := NewAttributeSet(attrs)
	if err != nil {
		return nil, dErrors.Wrap(err, code, dErrors.MessageOf(err))
	}
	return set, nil
}
