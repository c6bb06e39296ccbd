package sortengine

import (
	"math"
	"testing"

	"breachline/internal/column"
)

type fakeSource struct {
	values map[uint32]map[string]any
}

func (f fakeSource) Value(rowID uint32, col string) (any, bool) {
	row, ok := f.values[rowID]
	if !ok {
		return nil, false
	}
	v, ok := row[col]
	return v, ok
}

func TestSortRowIDsStableOnTies(t *testing.T) {
	types := map[string]column.Type{"group": column.TypeString}
	src := fakeSource{values: map[uint32]map[string]any{
		0: {"group": "a"},
		1: {"group": "a"},
		2: {"group": "b"},
	}}
	out := SortRowIDs([]uint32{2, 0, 1}, types, []Key{{Column: "group", Direction: Asc}}, src)
	if out[0] != 0 || out[1] != 1 || out[2] != 2 {
		t.Fatalf("got %v, want stable [0 1 2] within group order", out)
	}
}

func TestSortRowIDsMultiKeyTieBreak(t *testing.T) {
	types := map[string]column.Type{"a": column.TypeNumber, "b": column.TypeNumber}
	src := fakeSource{values: map[uint32]map[string]any{
		0: {"a": float64(1), "b": float64(2)},
		1: {"a": float64(1), "b": float64(1)},
	}}
	out := SortRowIDs([]uint32{0, 1}, types, []Key{{Column: "a", Direction: Asc}, {Column: "b", Direction: Asc}}, src)
	if out[0] != 1 || out[1] != 0 {
		t.Fatalf("got %v, want [1 0] (tie on a, broken by b)", out)
	}
}

func TestCompareStringsNumericAware(t *testing.T) {
	types := map[string]column.Type{"name": column.TypeString}
	src := fakeSource{values: map[uint32]map[string]any{
		0: {"name": "item10"},
		1: {"name": "item2"},
	}}
	out := SortRowIDs([]uint32{0, 1}, types, []Key{{Column: "name", Direction: Asc}}, src)
	if out[0] != 1 || out[1] != 0 {
		t.Fatalf("got %v, want [1 0] (item2 before item10, numeric-aware)", out)
	}
}

func TestCompareStringsAccentAndCaseInsensitive(t *testing.T) {
	if compareStrings("café", "cafe") != 0 {
		t.Fatal("expected accent-insensitive equality between café and cafe")
	}
	if compareStrings("Alice", "alice") != 0 {
		t.Fatal("expected case-insensitive equality between Alice and alice")
	}
}

func TestCompareNumberNaNAfter(t *testing.T) {
	if compareNumberNaNAfter(1, math.NaN()) >= 0 {
		t.Fatal("expected finite value to sort before NaN")
	}
	if compareNumberNaNAfter(math.NaN(), 1) <= 0 {
		t.Fatal("expected NaN to sort after finite value")
	}
}

func TestBooleanFalseBeforeTrue(t *testing.T) {
	types := map[string]column.Type{"flag": column.TypeBoolean}
	src := fakeSource{values: map[uint32]map[string]any{
		0: {"flag": true},
		1: {"flag": false},
	}}
	out := SortRowIDs([]uint32{0, 1}, types, []Key{{Column: "flag", Direction: Asc}}, src)
	if out[0] != 1 || out[1] != 0 {
		t.Fatalf("got %v, want [1 0] (false before true)", out)
	}
}

func TestSortRowIDsProgressiveSmallSetCompletesImmediately(t *testing.T) {
	types := map[string]column.Type{"n": column.TypeNumber}
	src := fakeSource{values: map[uint32]map[string]any{
		0: {"n": float64(3)},
		1: {"n": float64(1)},
		2: {"n": float64(2)},
	}}
	res, pending := SortRowIDsProgressive([]uint32{0, 1, 2}, types, []Key{{Column: "n", Direction: Asc}}, src, 10)
	if !res.SortComplete || pending != nil {
		t.Fatalf("expected immediate completion for small set, got complete=%v pending=%v", res.SortComplete, pending)
	}
	if res.RowIDs[0] != 1 || res.RowIDs[1] != 2 || res.RowIDs[2] != 0 {
		t.Fatalf("got %v, want [1 2 0]", res.RowIDs)
	}
}

func TestSortRowIDsProgressiveDefersTail(t *testing.T) {
	types := map[string]column.Type{"n": column.TypeNumber}
	values := make(map[uint32]map[string]any)
	base := make([]uint32, 10)
	for i := 0; i < 10; i++ {
		base[i] = uint32(i)
		values[uint32(i)] = map[string]any{"n": float64(10 - i)}
	}
	src := fakeSource{values: values}

	res, pending := SortRowIDsProgressive(base, types, []Key{{Column: "n", Direction: Asc}}, src, 2)
	if res.SortComplete {
		t.Fatal("expected SortComplete=false when baseIDs > 2*visibleRowCount")
	}
	if res.SortedRowCount != 2 {
		t.Fatalf("got SortedRowCount=%d, want 2", res.SortedRowCount)
	}
	if pending == nil {
		t.Fatal("expected a non-nil Pending handle")
	}
	// tail beyond the visible window stays in original order.
	for i := 2; i < len(base); i++ {
		if res.RowIDs[i] != base[i] {
			t.Fatalf("tail row %d = %d, want unchanged %d", i, res.RowIDs[i], base[i])
		}
	}

	full := pending.Complete()
	if full[0] != 9 {
		t.Fatalf("full sort first element = %d, want 9 (n=1)", full[0])
	}
}
