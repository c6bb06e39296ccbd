package filterexpr

import (
	"testing"

	"breachline/internal/filter"
)

func TestHasBooleanOperators(t *testing.T) {
	if HasBooleanOperators("just a plain query") {
		t.Fatal("expected no boolean operators in a bare phrase")
	}
	if !HasBooleanOperators("status=active AND region=us") {
		t.Fatal("expected AND to be detected")
	}
	if !HasBooleanOperators("NOT (status=active)") {
		t.Fatal("expected NOT and parens to be detected")
	}
}

func TestParseBareLiteral(t *testing.T) {
	node, ok := Parse("timeout")
	if !ok {
		t.Fatal("expected ok=true for a bare literal")
	}
	lit, isLit := node.(*Literal)
	if !isLit || lit.Value != "timeout" {
		t.Fatalf("got %+v", node)
	}
}

func TestParseEmptyQueryIsNotOk(t *testing.T) {
	if _, ok := Parse(""); ok {
		t.Fatal("expected ok=false for an empty query")
	}
}

func TestParseAndOrPrecedence(t *testing.T) {
	// AND binds tighter than OR: "a OR b AND c" == "a OR (b AND c)"
	node, ok := Parse("a OR b AND c")
	if !ok {
		t.Fatal("expected ok=true")
	}
	or, isOr := node.(*Or)
	if !isOr {
		t.Fatalf("got %T, want *Or at the top", node)
	}
	if _, isLit := or.Left.(*Literal); !isLit {
		t.Fatalf("left of OR = %T, want *Literal", or.Left)
	}
	if _, isAnd := or.Right.(*And); !isAnd {
		t.Fatalf("right of OR = %T, want *And", or.Right)
	}
}

func TestParseParenthesesOverridePrecedence(t *testing.T) {
	node, ok := Parse("(a OR b) AND c")
	if !ok {
		t.Fatal("expected ok=true")
	}
	and, isAnd := node.(*And)
	if !isAnd {
		t.Fatalf("got %T, want *And at the top", node)
	}
	if _, isOr := and.Left.(*Or); !isOr {
		t.Fatalf("left of AND = %T, want *Or", and.Left)
	}
}

func TestCompileOperatorLiterals(t *testing.T) {
	node, _ := Parse("status=active")
	compiled := Compile(node, nil)
	if compiled.Predicate == nil || compiled.Predicate.Operator != filter.OpEq {
		t.Fatalf("got %+v, want a single eq predicate", compiled)
	}
	if compiled.Predicate.Column != "status" || compiled.Predicate.Value != "active" {
		t.Fatalf("got %+v", compiled.Predicate)
	}
}

func TestCompileBareLiteralOrsAcrossSearchableColumns(t *testing.T) {
	node, _ := Parse("timeout")
	compiled := Compile(node, []string{"message", "summary"})
	if compiled.Composite == nil || compiled.Composite.Op != filter.CompositeOr {
		t.Fatalf("got %+v, want an OR composite", compiled)
	}
	if len(compiled.Composite.Children) != 2 {
		t.Fatalf("got %d children, want 2", len(compiled.Composite.Children))
	}
}

func TestCompileNotNegatesEqToNeq(t *testing.T) {
	node, _ := Parse("NOT status=active")
	compiled := Compile(node, nil)
	if compiled.Predicate == nil || compiled.Predicate.Operator != filter.OpNeq {
		t.Fatalf("got %+v, want eq negated to neq", compiled)
	}
}

func TestCompileNotPushesDeMorganThroughComposite(t *testing.T) {
	node, _ := Parse("NOT (a=1 AND b=2)")
	compiled := Compile(node, nil)
	if compiled.Composite == nil || compiled.Composite.Op != filter.CompositeOr {
		t.Fatalf("got %+v, want NOT(AND) to become OR via De Morgan", compiled)
	}
}
