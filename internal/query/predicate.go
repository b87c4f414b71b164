package query

import (
	"fmt"
	"strings"
)

// Predicate is a composable boolean condition over the records of a collection.
// It is one of *Comparison, *Group or *Negation.
type Predicate interface {
	// IsEmpty reports whether the predicate places no restriction at all.
	IsEmpty() bool
	String() string
}

// Comparison tests the value reached by Field (a relation path) with Lookup.
type Comparison struct {
	Field  string
	Lookup LookupType
	Value  interface{}
}

// Bounds is the value of a Range comparison. Both ends are inclusive.
type Bounds struct {
	Low  interface{}
	High interface{}
}

// GroupOp joins the children of a Group
type GroupOp string

const (
	OpAnd GroupOp = "AND"
	OpOr  GroupOp = "OR"
)

// Group combines children with AND or OR. A group without children matches everything.
type Group struct {
	Op       GroupOp
	Children []Predicate
}

// Negation inverts its child.
type Negation struct {
	Child Predicate
}

// Compare builds a single comparison. An empty lookup means Exact.
func Compare(field string, lookup LookupType, value interface{}) *Comparison {
	if lookup == "" {
		lookup = Exact
	}
	return &Comparison{Field: field, Lookup: lookup, Value: value}
}

// And joins predicates with AND, dropping nil and empty children.
func And(preds ...Predicate) *Group {
	return newGroup(OpAnd, preds)
}

// Or joins predicates with OR, dropping nil and empty children.
func Or(preds ...Predicate) *Group {
	return newGroup(OpOr, preds)
}

// Not negates p. Negating an empty predicate is still empty.
func Not(p Predicate) *Negation {
	return &Negation{Child: p}
}

func newGroup(op GroupOp, preds []Predicate) *Group {
	g := &Group{Op: op}
	for _, p := range preds {
		if IsNil(p) || p.IsEmpty() {
			continue
		}
		g.Children = append(g.Children, p)
	}
	return g
}

// IsNil reports whether p is nil, including typed nil pointers.
func IsNil(p Predicate) bool {
	switch v := p.(type) {
	case nil:
		return true
	case *Comparison:
		return v == nil
	case *Group:
		return v == nil
	case *Negation:
		return v == nil
	}
	return false
}

func (c *Comparison) IsEmpty() bool { return false }

func (c *Comparison) String() string {
	return fmt.Sprintf("%s__%s=%v", c.Field, c.Lookup, c.Value)
}

func (g *Group) IsEmpty() bool { return len(g.Children) == 0 }

func (g *Group) String() string {
	if g.IsEmpty() {
		return "()"
	}
	parts := make([]string, len(g.Children))
	for i, c := range g.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " "+string(g.Op)+" ") + ")"
}

func (n *Negation) IsEmpty() bool { return IsNil(n.Child) || n.Child.IsEmpty() }

func (n *Negation) String() string {
	if n.IsEmpty() {
		return "()"
	}
	return "NOT " + n.Child.String()
}

// Walk calls fn for every comparison in p, depth first.
func Walk(p Predicate, fn func(c *Comparison)) {
	switch v := p.(type) {
	case *Comparison:
		if v != nil {
			fn(v)
		}
	case *Group:
		if v == nil {
			return
		}
		for _, c := range v.Children {
			Walk(c, fn)
		}
	case *Negation:
		if v != nil {
			Walk(v.Child, fn)
		}
	}
}
