// Package sortengine implements C7: stable multi-key sort of a row-id
// list, including the progressive (visible-window-first) mode of
// §4.7. Comparator semantics (locale-aware string compare, NaN-after,
// false<true, unparseable-datetime-after) follow §4.7's per-type
// rules; no example repo implements a comparable multi-key stable sort
// over columnar batches.
package sortengine

import (
	"math"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"breachline/internal/column"
)

// stringCollator implements §4.7's "locale-compare, numeric-aware,
// base sensitivity (case- and accent-insensitive)" string ordering:
// collate.Numeric treats embedded digit runs as numbers ("item2" <
// "item10"), and collate.Loose drops case/diacritic/width distinctions
// ("café" == "cafe"). A Collator's Compare/CompareString methods are
// not safe for concurrent use, so access is serialized.
var (
	stringCollator   = collate.New(language.Und, collate.Numeric, collate.Loose)
	stringCollatorMu sync.Mutex
)

func compareStrings(a, b string) int {
	stringCollatorMu.Lock()
	defer stringCollatorMu.Unlock()
	return stringCollator.CompareString(a, b)
}

// Direction is a sort key's direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Key is one column/direction sort key.
type Key struct {
	Column    string
	Direction Direction
}

// RowSource resolves a row id to its value for one column, abstracting
// over however the caller materializes rows (batch store, in-memory
// test fixture, etc).
type RowSource interface {
	Value(rowID uint32, column string) (any, bool) // ok=false means null
}

// SortRowIDs stably permutes baseIDs per keys and the column types
// table, per §4.7's contract: ties broken by subsequent keys, then by
// ascending row-id for stability.
func SortRowIDs(baseIDs []uint32, columnTypes map[string]column.Type, keys []Key, source RowSource) []uint32 {
	out := make([]uint32, len(baseIDs))
	copy(out, baseIDs)

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j], columnTypes, keys, source)
	})
	return out
}

func less(a, b uint32, columnTypes map[string]column.Type, keys []Key, source RowSource) bool {
	for _, k := range keys {
		cmp := compareKey(a, b, k.Column, columnTypes[k.Column], source)
		if cmp == 0 {
			continue
		}
		if k.Direction == Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return a < b
}

// compareKey returns <0, 0, >0 comparing row a's and row b's values
// for column, per-type.
func compareKey(a, b uint32, col string, t column.Type, source RowSource) int {
	va, okA := source.Value(a, col)
	vb, okB := source.Value(b, col)

	switch t {
	case column.TypeString:
		sa, sb := "", ""
		if okA {
			sa, _ = va.(string)
		}
		if okB {
			sb, _ = vb.(string)
		}
		return compareStrings(sa, sb)
	case column.TypeNumber:
		fa, fb := numberOrNaN(va, okA), numberOrNaN(vb, okB)
		return compareNumberNaNAfter(fa, fb)
	case column.TypeDatetime:
		fa, fb := numberOrNaN(va, okA), numberOrNaN(vb, okB)
		return compareNumberNaNAfter(fa, fb)
	case column.TypeBoolean:
		ba, bb := false, false
		if okA {
			ba, _ = va.(bool)
		}
		if okB {
			bb, _ = vb.(bool)
		}
		switch {
		case ba == bb:
			return 0
		case !ba && bb:
			return -1
		default:
			return 1
		}
	default:
		return 0
	}
}

func numberOrNaN(v any, ok bool) float64 {
	if !ok {
		return math.NaN()
	}
	f, isFloat := v.(float64)
	if !isFloat {
		return math.NaN()
	}
	return f
}

// compareNumberNaNAfter sorts NaN/non-finite after finite values, per
// §4.7's "NaN/non-finite sorts after finite" and "unparseable sorts
// after parseable" (datetime reuses this since both store as float64
// with NaN marking the unparseable/null case).
func compareNumberNaNAfter(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a) || math.IsInf(a, 0), math.IsNaN(b) || math.IsInf(b, 0)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Result is the outcome of a (possibly progressive) sort request.
type Result struct {
	RowIDs         []uint32
	SortComplete   bool
	SortedRowCount int
}

// Pending is a deferred full-sort handle returned when progressive
// mode only sorted the visible window.
type Pending struct {
	baseIDs     []uint32
	columnTypes map[string]column.Type
	keys        []Key
	source      RowSource
}

// Complete runs (and returns) the full sort the progressive call
// deferred.
func (p *Pending) Complete() []uint32 {
	return SortRowIDs(p.baseIDs, p.columnTypes, p.keys, p.source)
}

// SortRowIDsProgressive implements §4.7's progressive variant: when
// baseIDs is more than twice visibleRowCount, only the first
// visibleRowCount ids are sorted; the rest are appended in original
// order, and a Pending handle can complete the full sort later. When
// baseIDs is small enough, the full sort runs immediately and
// SortComplete is true (§8's boundary behavior).
func SortRowIDsProgressive(baseIDs []uint32, columnTypes map[string]column.Type, keys []Key, source RowSource, visibleRowCount int) (Result, *Pending) {
	if visibleRowCount <= 0 || len(baseIDs) <= 2*visibleRowCount {
		full := SortRowIDs(baseIDs, columnTypes, keys, source)
		return Result{RowIDs: full, SortComplete: true, SortedRowCount: len(full)}, nil
	}

	visible := append([]uint32(nil), baseIDs[:visibleRowCount]...)
	sortedVisible := SortRowIDs(visible, columnTypes, keys, source)

	out := make([]uint32, len(baseIDs))
	copy(out, sortedVisible)
	copy(out[visibleRowCount:], baseIDs[visibleRowCount:])

	pending := &Pending{
		baseIDs:     append([]uint32(nil), baseIDs...),
		columnTypes: columnTypes,
		keys:        keys,
		source:      source,
	}
	return Result{RowIDs: out, SortComplete: false, SortedRowCount: visibleRowCount}, pending
}
