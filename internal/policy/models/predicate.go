package models

import (
	"fmt"

	attestation "zerotrust/internal/attestation/models"
)

const (
	maxDepth = 32
	maxNodes = 512
)

// Node is a compiled predicate. The set of implementations is closed.
type Node interface {
	node()
}

// Compare tests one attribute against a typed constant.
type Compare struct {
	Attribute string
	Op        Op
	Value     attestation.Value
	Spec      attestation.AttributeSpec
}

// Membership tests whether an attribute is (or is not) one of several constants.
type Membership struct {
	Attribute string
	Negated   bool
	Values    []attestation.Value
}

type And struct{ Children []Node }
type Or struct{ Children []Node }
type Not struct{ Child Node }

func (Compare) node()    {}
func (Membership) node() {}
func (And) node()        {}
func (Or) node()         {}
func (Not) node()        {}

// Compile type-checks an authored tree against the attribute schema.
// Every constant must lie inside its attribute's declared domain, and
// ordering operators are only accepted on integers and ordered enums.
func Compile(e Expr, schema *attestation.Schema) (Node, error) {
	c := compiler{schema: schema}
	return c.compile(e, 0)
}

type compiler struct {
	schema *attestation.Schema
	nodes  int
}

func (c *compiler) compile(e Expr, depth int) (Node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("predicate nested deeper than %d", maxDepth)
	}
	c.nodes++
	if c.nodes > maxNodes {
		return nil, fmt.Errorf("predicate has more than %d nodes", maxNodes)
	}

	forms := 0
	if e.All != nil {
		forms++
	}
	if e.Any != nil {
		forms++
	}
	if e.Not != nil {
		forms++
	}
	if e.Attribute != "" || e.Op != "" || e.Value != nil {
		forms++
	}
	if forms != 1 {
		return nil, fmt.Errorf("predicate node must have exactly one of all, any, not or a comparison")
	}

	switch {
	case e.All != nil:
		children, err := c.compileList(e.All, depth, "all")
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil
	case e.Any != nil:
		children, err := c.compileList(e.Any, depth, "any")
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	case e.Not != nil:
		child, err := c.compile(*e.Not, depth+1)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	}
	return c.compileLeaf(e)
}

func (c *compiler) compileList(exprs []Expr, depth int, name string) ([]Node, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("%s needs at least one child", name)
	}
	out := make([]Node, 0, len(exprs))
	for _, child := range exprs {
		n, err := c.compile(child, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (c *compiler) compileLeaf(e Expr) (Node, error) {
	spec, ok := c.schema.Spec(e.Attribute)
	if !ok {
		return nil, fmt.Errorf("unknown attribute %q", e.Attribute)
	}
	if !e.Op.valid() {
		return nil, fmt.Errorf("unknown operator %q", e.Op)
	}

	if e.Op.membership() {
		raw, ok := e.Value.([]any)
		if !ok || len(raw) == 0 {
			return nil, fmt.Errorf("%s on %s needs a non-empty list", e.Op, e.Attribute)
		}
		values := make([]attestation.Value, 0, len(raw))
		for _, r := range raw {
			v, err := spec.Coerce(r)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return Membership{Attribute: e.Attribute, Negated: e.Op == OpNotIn, Values: values}, nil
	}

	if e.Op.ordering() {
		orderable := spec.Kind == attestation.KindInt || (spec.Kind == attestation.KindEnum && spec.Ordered)
		if !orderable {
			return nil, fmt.Errorf("%s is not ordered; %s is not allowed", e.Attribute, e.Op)
		}
	}
	if e.Value == nil {
		return nil, fmt.Errorf("%s on %s needs a value", e.Op, e.Attribute)
	}
	v, err := spec.Coerce(e.Value)
	if err != nil {
		return nil, err
	}
	return Compare{Attribute: e.Attribute, Op: e.Op, Value: v, Spec: spec}, nil
}

// Decompile turns a compiled tree back into its authored form with values
// normalized to bool, int64 or string.
func Decompile(n Node) Expr {
	switch n := n.(type) {
	case Compare:
		return Expr{Attribute: n.Attribute, Op: n.Op, Value: n.Value.Any()}
	case Membership:
		values := make([]any, len(n.Values))
		for i, v := range n.Values {
			values[i] = v.Any()
		}
		op := OpIn
		if n.Negated {
			op = OpNotIn
		}
		return Expr{Attribute: n.Attribute, Op: op, Value: values}
	case And:
		return Expr{All: decompileList(n.Children)}
	case Or:
		return Expr{Any: decompileList(n.Children)}
	case Not:
		child := Decompile(n.Child)
		return Expr{Not: &child}
	}
	return Expr{}
}

func decompileList(nodes []Node) []Expr {
	out := make([]Expr, len(nodes))
	for i, n := range nodes {
		out[i] = Decompile(n)
	}
	return out
}

// Attributes lists every attribute a tree refers to.
func Attributes(n Node) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case Compare:
			if !seen[n.Attribute] {
				seen[n.Attribute] = true
				out = append(out, n.Attribute)
			}
		case Membership:
			if !seen[n.Attribute] {
				seen[n.Attribute] = true
				out = append(out, n.Attribute)
			}
		case And:
			for _, c := range n.Children {
				walk(c)
			}
		case Or:
			for _, c := range n.Children {
				walk(c)
			}
		case Not:
			walk(n.Child)
		}
	}
	walk(n)
	return out
}
