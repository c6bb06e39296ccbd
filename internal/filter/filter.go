// Package filter implements C5: predicate-tree evaluation over
// materialized rows, producing per-batch bitmasks, plus the reserved
// tag-column and fuzzy-salvage behaviors of §4.5.
package filter

import (
	"regexp"
	"strings"

	"github.com/samber/lo"

	"breachline/internal/column"
)

// TagColumnID is the reserved virtual column addressing per-row
// annotation label sets in predicates (§6 "Reserved identifiers").
const TagColumnID = "__tag__"

// NoLabelSentinel matches rows with an empty label set under the tag
// column (§6).
const NoLabelSentinel = "__no_label__"

// Operator enumerates the per-type predicate operators of §4.5.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpRegex      Operator = "regex"
	OpMatches    Operator = "matches"
	OpNotMatches Operator = "notMatches"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpRange      Operator = "range"
	OpBetween    Operator = "between"
)

// Predicate is a leaf condition against one column.
type Predicate struct {
	Column        string
	Operator      Operator
	Value         string
	Value2        string // upper bound for range/between
	CaseSensitive bool
	Fuzzy         bool
}

// CompositeOp is the boolean combinator for inner Node values.
type CompositeOp string

const (
	CompositeAnd CompositeOp = "and"
	CompositeOr  CompositeOp = "or"
)

// Node is the predicate tree sum type: either a leaf Predicate or a
// Composite of child nodes, per §9's "Node = Predicate(...) |
// Composite(Op,[Node])".
type Node struct {
	Predicate *Predicate
	Composite *Composite
}

// Composite is an inner and/or node. An empty Children list evaluates
// to all-true, per §4.5.
type Composite struct {
	Op       CompositeOp
	Children []Node
}

// Leaf builds a predicate leaf node.
func Leaf(p Predicate) Node { return Node{Predicate: &p} }

// And builds an AND composite node.
func And(children ...Node) Node {
	return Node{Composite: &Composite{Op: CompositeAnd, Children: children}}
}

// Or builds an OR composite node.
func Or(children ...Node) Node {
	return Node{Composite: &Composite{Op: CompositeOr, Children: children}}
}

// FuzzyLookup is the subset of the fuzzy index (C6) the filter engine
// needs to perform salvage: a bounded-edit-distance search scoped to
// one column.
type FuzzyLookup interface {
	Suggest(columnKey, query string, maxDistance, limit int) []FuzzySuggestion
}

// FuzzySuggestion is one candidate returned by a fuzzy salvage search.
type FuzzySuggestion struct {
	Token    string
	Distance int
}

// TagResolver exposes the per-row annotation label set the tag column
// predicates need, without the filter engine depending on the
// annotation package directly.
type TagResolver interface {
	LabelIDs(rowID uint32) []string
}

// FuzzyUsed describes a fuzzy-salvage outcome for "did you mean" UX.
type FuzzyUsed struct {
	Column      string
	Query       string
	Suggestions []string
}

// Context bundles the side inputs evaluation needs beyond the row
// data itself.
type Context struct {
	Tags  TagResolver
	Fuzzy FuzzyLookup
}

// EvalResult is one batch's evaluation output: a pass/fail bitmask
// plus optional fuzzy-salvage metadata gathered along the way.
type EvalResult struct {
	Mask      []byte // 1 = pass, len == batch row count
	FuzzyUsed []FuzzyUsed
}

// Evaluate runs node against every row of batch and returns the
// bitmask plus any fuzzy-salvage metadata triggered during
// evaluation. An empty tree (Composite with no children, reached via
// And()/Or() with zero args, or a nil root) evaluates to all-true.
//
// Per §4.5, fuzzy salvage triggers for a predicate only when its exact
// match yields zero hits across the *whole batch* — a row that fails
// exact match is not salvaged individually if some other row in the
// batch already matched exactly. salvageEligible is computed once per
// batch, before the per-row pass, via an exact-match pre-scan.
func Evaluate(node Node, batch *column.Batch, ctx Context) EvalResult {
	n := int(batch.RowCount)
	mask := make([]byte, n)

	salvageEligible := computeSalvageEligibility(node, batch)

	var fuzzy []FuzzyUsed
	for i := 0; i < n; i++ {
		rowID := batch.RowStart + uint32(i)
		ok, used := evalNode(node, batch, i, rowID, ctx, salvageEligible)
		if ok {
			mask[i] = 1
		}
		if used != nil {
			fuzzy = append(fuzzy, *used)
		}
	}
	return EvalResult{Mask: mask, FuzzyUsed: dedupFuzzy(fuzzy)}
}

func dedupFuzzy(in []FuzzyUsed) []FuzzyUsed {
	if len(in) == 0 {
		return nil
	}
	return lo.UniqBy(in, func(f FuzzyUsed) string { return f.Column + "\x00" + f.Query })
}

// computeSalvageEligibility walks node collecting every fuzzy-eligible
// string eq/neq predicate, keyed by its leaf pointer (stable for the
// lifetime of one Evaluate call), and records whether an exact match
// for that predicate's value exists anywhere in batch. A predicate is
// only present in the map — and thus only ever salvaged — when the
// batch-wide exact-match scan found zero hits.
func computeSalvageEligibility(node Node, batch *column.Batch) map[*Predicate]bool {
	eligible := make(map[*Predicate]bool)
	collectFuzzyPredicates(node, func(p *Predicate) {
		if !hasExactMatchInBatch(*p, batch) {
			eligible[p] = true
		}
	})
	return eligible
}

func collectFuzzyPredicates(node Node, visit func(*Predicate)) {
	if node.Composite != nil {
		for _, child := range node.Composite.Children {
			collectFuzzyPredicates(child, visit)
		}
		return
	}
	p := node.Predicate
	if p != nil && p.Fuzzy && p.Column != TagColumnID && (p.Operator == OpEq || p.Operator == OpNeq) {
		visit(p)
	}
}

// hasExactMatchInBatch scans every row of batch for p's column and
// reports whether any non-null value equals p.Value exactly (under
// p.CaseSensitive), independent of p.Operator — this is the "yields no
// exact matches on a batch" test of §4.5.
func hasExactMatchInBatch(p Predicate, batch *column.Batch) bool {
	colName, jpath, hasJPath := parseColumnJPath(p.Column)
	col, ok := batch.Columns[colName]
	if !ok || col.Type != column.TypeString {
		return false
	}
	eqPred := Predicate{Operator: OpEq, Value: p.Value, CaseSensitive: p.CaseSensitive}
	n := int(batch.RowCount)
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		raw := col.String.Value(i)
		if hasJPath {
			var jok bool
			raw, jok = evaluateColumnJPath(raw, jpath)
			if !jok {
				continue
			}
		}
		if evalStringPredicate(eqPred, raw) {
			return true
		}
	}
	return false
}

func evalNode(node Node, batch *column.Batch, rowOffset int, rowID uint32, ctx Context, salvageEligible map[*Predicate]bool) (bool, *FuzzyUsed) {
	if node.Composite != nil {
		return evalComposite(*node.Composite, batch, rowOffset, rowID, ctx, salvageEligible)
	}
	if node.Predicate != nil {
		return evalPredicate(node.Predicate, batch, rowOffset, rowID, ctx, salvageEligible)
	}
	return true, nil
}

func evalComposite(c Composite, batch *column.Batch, rowOffset int, rowID uint32, ctx Context, salvageEligible map[*Predicate]bool) (bool, *FuzzyUsed) {
	if len(c.Children) == 0 {
		return true, nil
	}
	var fuzzy *FuzzyUsed
	switch c.Op {
	case CompositeOr:
		result := false
		for _, child := range c.Children {
			ok, used := evalNode(child, batch, rowOffset, rowID, ctx, salvageEligible)
			if used != nil {
				fuzzy = used
			}
			if ok {
				result = true
			}
		}
		return result, fuzzy
	default: // CompositeAnd
		result := true
		for _, child := range c.Children {
			ok, used := evalNode(child, batch, rowOffset, rowID, ctx, salvageEligible)
			if used != nil {
				fuzzy = used
			}
			if !ok {
				result = false
			}
		}
		return result, fuzzy
	}
}

func evalPredicate(pp *Predicate, batch *column.Batch, rowOffset int, rowID uint32, ctx Context, salvageEligible map[*Predicate]bool) (bool, *FuzzyUsed) {
	p := *pp
	if p.Column == TagColumnID {
		return evalTagPredicate(p, rowID, ctx), nil
	}

	colName, jpath, hasJPath := parseColumnJPath(p.Column)
	col, ok := batch.Columns[colName]
	if !ok {
		return false, nil
	}

	if hasJPath {
		if col.Type != column.TypeString || col.IsNull(rowOffset) {
			return false, nil
		}
		raw, ok := evaluateColumnJPath(col.String.Value(rowOffset), jpath)
		if !ok {
			return false, nil
		}
		return evalStringPredicate(p, raw)
	}

	switch col.Type {
	case column.TypeString:
		if col.IsNull(rowOffset) {
			return false, nil
		}
		ok := evalStringPredicate(p, col.String.Value(rowOffset))
		if !ok && ctx.Fuzzy != nil && salvageEligible[pp] {
			return evalFuzzySalvage(p, colName, ctx)
		}
		return ok, nil
	case column.TypeNumber:
		if col.IsNull(rowOffset) {
			return false, nil
		}
		return evalNumberPredicate(p, col.Number.Values[rowOffset]), nil
	case column.TypeDatetime:
		if col.IsNull(rowOffset) {
			return false, nil
		}
		return evalNumberPredicateDatetime(p, col.Datetime.Millis[rowOffset]), nil
	case column.TypeBoolean:
		if col.IsNull(rowOffset) {
			return false, nil
		}
		return evalBooleanPredicate(p, col.Boolean.Value(rowOffset)), nil
	default:
		return false, nil
	}
}

func evalTagPredicate(p Predicate, rowID uint32, ctx Context) bool {
	var labels []string
	if ctx.Tags != nil {
		labels = ctx.Tags.LabelIDs(rowID)
	}
	if p.Value == NoLabelSentinel {
		empty := len(labels) == 0
		if p.Operator == OpNeq {
			return !empty
		}
		return empty
	}
	contains := lo.Contains(labels, p.Value)
	if p.Operator == OpNeq {
		return !contains
	}
	return contains
}

func evalStringPredicate(p Predicate, raw string) bool {
	a, b := raw, p.Value
	if !p.CaseSensitive {
		a, b = strings.ToLower(a), strings.ToLower(b)
	}

	switch p.Operator {
	case OpEq:
		return a == b
	case OpNeq:
		return a != b
	case OpContains:
		return strings.Contains(a, b)
	case OpStartsWith:
		return strings.HasPrefix(a, b)
	case OpRegex, OpMatches, OpNotMatches:
		re, err := compileRegex(p.Value, p.CaseSensitive)
		if err != nil {
			return false
		}
		matched := re.MatchString(raw)
		if p.Operator == OpNotMatches {
			return !matched
		}
		return matched
	default:
		return false
	}
}

// compileRegex builds a regex per §4.5's "flag set is u (+ i when
// case-insensitive)": Go's RE2 is always Unicode-aware, so only the
// case-insensitivity inline flag needs adding.
func compileRegex(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// evalFuzzySalvage is invoked only once the exact-match path has
// already failed for this row; it runs again for every such row and
// recomputes the suggestions each time (the fuzzy index keeps no
// cache of lookups). When any suggestion exists the row passes for eq
// and fails for neq; the row's own value is not compared against the
// suggested tokens.
func evalFuzzySalvage(p Predicate, colName string, ctx Context) (bool, *FuzzyUsed) {
	suggestions := ctx.Fuzzy.Suggest(colName, p.Value, 2, 5)
	if len(suggestions) == 0 {
		return false, nil
	}
	tokens := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		tokens = append(tokens, s.Token)
	}
	used := &FuzzyUsed{Column: colName, Query: p.Value, Suggestions: tokens}
	if p.Operator == OpNeq {
		return false, used
	}
	return true, used
}

func evalNumberPredicate(p Predicate, v float64) bool {
	switch p.Operator {
	case OpEq:
		f, ok := parseFloat(p.Value)
		return ok && v == f
	case OpNeq:
		f, ok := parseFloat(p.Value)
		return ok && v != f
	case OpGt:
		f, ok := parseFloat(p.Value)
		return ok && v > f
	case OpLt:
		f, ok := parseFloat(p.Value)
		return ok && v < f
	case OpRange, OpBetween:
		return inRange(v, p.Value, p.Value2, parseFloat)
	default:
		return false
	}
}

func evalNumberPredicateDatetime(p Predicate, ms float64) bool {
	parse := func(s string) (float64, bool) { return parseDatetimeMillis(s) }
	switch p.Operator {
	case OpEq:
		f, ok := parse(p.Value)
		return ok && ms == f
	case OpNeq:
		f, ok := parse(p.Value)
		return ok && ms != f
	case OpGt:
		f, ok := parse(p.Value)
		return ok && ms > f
	case OpLt:
		f, ok := parse(p.Value)
		return ok && ms < f
	case OpRange, OpBetween:
		return inRange(ms, p.Value, p.Value2, parse)
	default:
		return false
	}
}

// inRange implements §4.5/§8's "between with one-sided bounds behaves
// as half-open unbounded on the missing side".
func inRange(v float64, lowerStr, upperStr string, parse func(string) (float64, bool)) bool {
	if lowerStr != "" {
		lo, ok := parse(lowerStr)
		if !ok || v < lo {
			return false
		}
	}
	if upperStr != "" {
		hi, ok := parse(upperStr)
		if !ok || v > hi {
			return false
		}
	}
	return true
}

func evalBooleanPredicate(p Predicate, v bool) bool {
	target := p.Value == "true" || p.Value == "1" || p.Value == "t" || p.Value == "yes" || p.Value == "y"
	switch p.Operator {
	case OpEq:
		return v == target
	case OpNeq:
		return v != target
	default:
		return false
	}
}
