package models

import (
	attestation "zerotrust/internal/attestation/models"
	"zerotrust/pkg/domain"
)

// Truth is a three-valued logic value. Unknown arises when a predicate
// refers to an attribute that was not disclosed.
type Truth int8

const (
	False Truth = iota
	True
	Unknown
)

func (t Truth) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unknown"
}

// Outcome maps truth to a verdict.
func (t Truth) Outcome() domain.Outcome {
	switch t {
	case True:
		return domain.OutcomePass
	case False:
		return domain.OutcomeFail
	}
	return domain.OutcomeIndeterminate
}

// Evaluate applies a compiled tree to the revealed attributes using Kleene
// logic. A missing attribute never evaluates to True or False.
// This is pure domain logic - no I/O, no side effects.
func Evaluate(n Node, attrs attestation.AttributeSet) Truth {
	switch n := n.(type) {
	case Compare:
		v, ok := attrs.Get(n.Attribute)
		if !ok || v.Kind != n.Value.Kind {
			return Unknown
		}
		return fromBool(compare(n, v))
	case Membership:
		v, ok := attrs.Get(n.Attribute)
		if !ok {
			return Unknown
		}
		found := false
		for _, c := range n.Values {
			if c.Equal(v) {
				found = true
				break
			}
		}
		return fromBool(found != n.Negated)
	case And:
		result := True
		for _, c := range n.Children {
			switch Evaluate(c, attrs) {
			case False:
				return False
			case Unknown:
				result = Unknown
			}
		}
		return result
	case Or:
		result := False
		for _, c := range n.Children {
			switch Evaluate(c, attrs) {
			case True:
				return True
			case Unknown:
				result = Unknown
			}
		}
		return result
	case Not:
		switch Evaluate(n.Child, attrs) {
		case True:
			return False
		case False:
			return True
		}
		return Unknown
	}
	return Unknown
}

func compare(n Compare, v attestation.Value) bool {
	switch n.Op {
	case OpEq:
		return v.Equal(n.Value)
	case OpNe:
		return !v.Equal(n.Value)
	}
	lhs, rhs, ok := ordinals(n, v)
	if !ok {
		return false
	}
	switch n.Op {
	case OpLt:
		return lhs < rhs
	case OpLe:
		return lhs <= rhs
	case OpGt:
		return lhs > rhs
	case OpGe:
		return lhs >= rhs
	}
	return false
}

func ordinals(n Compare, v attestation.Value) (int64, int64, bool) {
	if v.Kind == attestation.KindInt {
		return v.Int, n.Value.Int, true
	}
	l, lok := n.Spec.Rank(v.Str)
	r, rok := n.Spec.Rank(n.Value.Str)
	return int64(l), int64(r), lok && rok
}

func fromBool(b bool) Truth {
	if b {
		return True
	}
	return False
}
