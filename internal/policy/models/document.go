package models

// Document is the authored form of a policy, as read from YAML or JSON.
type Document struct {
	ScopeID      string `json:"scope_id" yaml:"scope_id"`
	Jurisdiction string `json:"jurisdiction" yaml:"jurisdiction"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	Rule         Expr   `json:"rule" yaml:"rule"`
}

// Expr is one node of an authored predicate tree. Exactly one form is set:
// all (conjunction), any (disjunction), not (negation) or a leaf that names
// an attribute, an operator and a value.
type Expr struct {
	All []Expr `json:"all,omitempty" yaml:"all,omitempty"`
	Any []Expr `json:"any,omitempty" yaml:"any,omitempty"`
	Not *Expr  `json:"not,omitempty" yaml:"not,omitempty"`

	Attribute string `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Op        Op     `json:"op,omitempty" yaml:"op,omitempty"`
	Value     any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Op is a leaf operator.
type Op string

const (
	OpEq    Op = "eq"
	OpNe    Op = "ne"
	OpLt    Op = "lt"
	OpLe    Op = "le"
	OpGt    Op = "gt"
	OpGe    Op = "ge"
	OpIn    Op = "in"
	OpNotIn Op = "not_in"
)

func (o Op) ordering() bool {
	switch o {
	case OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

func (o Op) membership() bool {
	return o == OpIn || o == OpNotIn
}

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn, OpNotIn:
		return true
	}
	return false
}
