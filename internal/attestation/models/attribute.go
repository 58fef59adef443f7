package models

import (
	"sort"

	dErrors "zerotrust/pkg/domain-errors"
)

// Kind is the declared type of an attribute value.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindBool
	KindInt
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindEnum:
		return "enum"
	}
	return "unknown"
}

// Value is a tagged attribute value. Only the field selected by Kind is meaningful.
type Value struct {
	Kind Kind
	Str  string
	Bool bool
	Int  int64
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func EnumValue(s string) Value   { return Value{Kind: KindEnum, Str: s} }

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	default:
		return v.Str == o.Str
	}
}

// Any returns the payload as a plain Go value.
func (v Value) Any() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	default:
		return v.Str
	}
}

// Attribute is a named compliance fact about a subject.
type Attribute struct {
	Name  string
	Value Value
}

// AttributeSet is a duplicate-free set of attributes kept sorted by name.
type AttributeSet []Attribute

// NewAttributeSet sorts attrs by name and rejects empty or duplicate names.
func NewAttributeSet(attrs []Attribute) (AttributeSet, error) {
	out := make(AttributeSet, len(attrs))
	copy(out, attrs)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	for i, a := range out {
		if a.Name == "" {
			return nil, dErrors.New(dErrors.CodeInvalidAttributeSet, "attribute name is required")
		}
		if i > 0 && out[i-1].Name == a.Name {
			return nil, dErrors.New(dErrors.CodeInvalidAttributeSet, "duplicate attribute: "+a.Name)
		}
	}
	return out, nil
}

// Get returns the value of the named attribute.
func (s AttributeSet) Get(name string) (Value, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Name >= name })
	if i < len(s) && s[i].Name == name {
		return s[i].Value, true
	}
	return Value{}, false
}

// Names lists attribute names in canonical order.
func (s AttributeSet) Names() []string {
	names := make([]string, len(s))
	for i, a := range s {
		names[i] = a.Name
	}
	return names
}

// Subset returns the attributes whose names appear in names.
func (s AttributeSet) Subset(names []string) AttributeSet {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	out := make(AttributeSet, 0, len(names))
	for _, a := range s {
		if _, ok := want[a.Name]; ok {
			out = append(out, a)
		}
	}
	return out
}
