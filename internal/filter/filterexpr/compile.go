package filterexpr

import (
	"regexp"
	"strings"

	"breachline/internal/filter"
)

// Compile translates a parsed textual expression into the predicate
// tree filter.Evaluate consumes. A literal is interpreted as:
//
//   - "column=value"  -> eq
//   - "column!=value" -> neq
//   - "column~value"  -> contains
//   - bare value       -> contains, ORed across searchableColumns
//
// matching the same plain-text search-bar literal shape generalized
// to the columnar predicate model.
func Compile(node Node, searchableColumns []string) filter.Node {
	switch n := node.(type) {
	case *Literal:
		return compileLiteral(n.Value, searchableColumns)
	case *Not:
		return negate(Compile(n.Child, searchableColumns))
	case *And:
		return filter.And(Compile(n.Left, searchableColumns), Compile(n.Right, searchableColumns))
	case *Or:
		return filter.Or(Compile(n.Left, searchableColumns), Compile(n.Right, searchableColumns))
	default:
		return filter.And()
	}
}

func compileLiteral(value string, searchableColumns []string) filter.Node {
	if col, val, ok := splitOperator(value, "!="); ok {
		return filter.Leaf(filter.Predicate{Column: col, Operator: filter.OpNeq, Value: val})
	}
	if col, val, ok := splitOperator(value, "="); ok {
		return filter.Leaf(filter.Predicate{Column: col, Operator: filter.OpEq, Value: val})
	}
	if col, val, ok := splitOperator(value, "~"); ok {
		return filter.Leaf(filter.Predicate{Column: col, Operator: filter.OpContains, Value: val})
	}

	if len(searchableColumns) == 0 {
		return filter.And()
	}
	children := make([]filter.Node, 0, len(searchableColumns))
	for _, col := range searchableColumns {
		children = append(children, filter.Leaf(filter.Predicate{Column: col, Operator: filter.OpContains, Value: value}))
	}
	return filter.Or(children...)
}

func splitOperator(s, op string) (col, val string, ok bool) {
	idx := strings.Index(s, op)
	if idx <= 0 {
		return "", "", false
	}
	return s[:idx], s[idx+len(op):], true
}

// negate wraps a compiled node in logical NOT. filter.Node has no
// native Not variant (the predicate tree is and/or over leaves), so
// De Morgan's laws push the negation down to the leaves themselves.
func negate(n filter.Node) filter.Node {
	if n.Predicate != nil {
		return filter.Leaf(negatePredicate(*n.Predicate))
	}
	if n.Composite == nil {
		return n
	}
	children := make([]filter.Node, len(n.Composite.Children))
	for i, c := range n.Composite.Children {
		children[i] = negate(c)
	}
	if n.Composite.Op == filter.CompositeAnd {
		return filter.Or(children...)
	}
	return filter.And(children...)
}

func negatePredicate(p filter.Predicate) filter.Predicate {
	switch p.Operator {
	case filter.OpEq:
		p.Operator = filter.OpNeq
	case filter.OpNeq:
		p.Operator = filter.OpEq
	case filter.OpMatches:
		p.Operator = filter.OpNotMatches
	case filter.OpNotMatches:
		p.Operator = filter.OpMatches
	case filter.OpContains:
		// No notContains operator exists; notMatches on the quoted
		// literal (same case sensitivity) expresses the same inverse.
		p.Operator = filter.OpNotMatches
		p.Value = regexp.QuoteMeta(p.Value)
	default:
		// startsWith/gt/lt/etc. have no inverse operator and are left
		// unchanged; compileLiteral never produces them.
	}
	return p
}
