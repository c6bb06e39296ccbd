// Package group implements C9: multi-column group-by with the fixed
// aggregate set count/sum/min/max/avg, per §4.9. Key-encoding and
// aggregate bookkeeping are this engine's own; no example repo's
// histogram/bucket code (app/histogram/histogram.go) groups by
// arbitrary multi-column keys, only single-axis time buckets, so only
// the general shape (accumulate-then-paginate) carries over.
package group

import (
	"fmt"
	"math"
	"strings"

	"breachline/internal/column"
)

// AggOperator is one of the fixed aggregate operators.
type AggOperator string

const (
	AggCount AggOperator = "count"
	AggSum   AggOperator = "sum"
	AggAvg   AggOperator = "avg"
	AggMin   AggOperator = "min"
	AggMax   AggOperator = "max"
)

// Aggregation is one requested aggregate column.
type Aggregation struct {
	Operator AggOperator
	Column   string // empty for count without column
	Alias    string
}

// DefaultAlias implements §4.9's "count without column -> 'count';
// otherwise '<operator>(<column|*>)'".
func (a Aggregation) DefaultAlias() string {
	if a.Alias != "" {
		return a.Alias
	}
	if a.Operator == AggCount && a.Column == "" {
		return "count"
	}
	col := a.Column
	if col == "" {
		col = "*"
	}
	return fmt.Sprintf("%s(%s)", a.Operator, col)
}

// Request configures one groupBy call.
type Request struct {
	GroupBy      []string
	Aggregations []Aggregation
	Offset       int
	Limit        int // 0 means unlimited
}

// Row is one output group: key (len == len(GroupBy)), row count, and
// the computed aggregates keyed by alias.
type Row struct {
	Key        []any
	RowCount   int
	Aggregates map[string]any
}

// Result is the full groupBy outcome.
type Result struct {
	Rows        []Row
	TotalGroups int
	TotalRows   int
}

// minMaxState tracks the extreme value seen so far for one alias,
// comparing on a type-appropriate numeric projection of the value
// (rawValue already yields string/float64/bool by column type, with
// datetimes as float64 epoch milliseconds).
type minMaxState struct {
	set   bool
	value any
	num   float64
	str   string
}

// groupAccumulator tracks running aggregate state for one group.
type groupAccumulator struct {
	key      []any
	rowCount int

	counts  map[string]int // non-null count per counted column/alias
	sums    map[string]float64
	sumCnts map[string]int
	mins    map[string]*minMaxState
	maxs    map[string]*minMaxState
}

func newAccumulator(key []any) *groupAccumulator {
	return &groupAccumulator{
		key:     key,
		counts:  make(map[string]int),
		sums:    make(map[string]float64),
		sumCnts: make(map[string]int),
		mins:    make(map[string]*minMaxState),
		maxs:    make(map[string]*minMaxState),
	}
}

// GroupBy groups the rows produced by iterating batches via iterate,
// per §4.9.
func GroupBy(req Request, iterate func(func(batch *column.Batch) bool)) Result {
	order := make([]string, 0, 64)
	groups := make(map[string]*groupAccumulator)
	totalRows := 0

	iterate(func(batch *column.Batch) bool {
		n := int(batch.RowCount)
		for i := 0; i < n; i++ {
			totalRows++
			key := extractKey(batch, i, req.GroupBy)
			encoded := encodeKey(batch, i, req.GroupBy)

			acc, ok := groups[encoded]
			if !ok {
				acc = newAccumulator(key)
				groups[encoded] = acc
				order = append(order, encoded)
			}
			acc.rowCount++

			for _, agg := range req.Aggregations {
				applyAggregate(acc, agg, batch, i)
			}
		}
		return true
	})

	rows := make([]Row, 0, len(order))
	for _, encoded := range order {
		acc := groups[encoded]
		rows = append(rows, Row{
			Key:        acc.key,
			RowCount:   acc.rowCount,
			Aggregates: finalizeAggregates(acc, req.Aggregations),
		})
	}

	totalGroups := len(rows)
	rows = paginate(rows, req.Offset, req.Limit)

	return Result{Rows: rows, TotalGroups: totalGroups, TotalRows: totalRows}
}

func paginate(rows []Row, offset, limit int) []Row {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}

func extractKey(batch *column.Batch, rowOffset int, groupBy []string) []any {
	key := make([]any, len(groupBy))
	for i, col := range groupBy {
		key[i] = rawValue(batch, rowOffset, col)
	}
	return key
}

// encodeKey builds the canonical "type:value" (segmented by '|')
// string so that 1 (number) and "1" (string) never collide, per
// §4.9.
func encodeKey(batch *column.Batch, rowOffset int, groupBy []string) string {
	var b strings.Builder
	for i, colName := range groupBy {
		if i > 0 {
			b.WriteByte('|')
		}
		col, ok := batch.Columns[colName]
		if !ok || col.IsNull(rowOffset) {
			b.WriteString("null:")
			continue
		}
		fmt.Fprintf(&b, "%s:%v", col.Type.String(), rawValue(batch, rowOffset, colName))
	}
	return b.String()
}

func rawValue(batch *column.Batch, rowOffset int, colName string) any {
	col, ok := batch.Columns[colName]
	if !ok || col.IsNull(rowOffset) {
		return nil
	}
	switch col.Type {
	case column.TypeString:
		return col.String.Value(rowOffset)
	case column.TypeNumber:
		return col.Number.Values[rowOffset]
	case column.TypeBoolean:
		return col.Boolean.Value(rowOffset)
	case column.TypeDatetime:
		return col.Datetime.Millis[rowOffset]
	default:
		return nil
	}
}

func applyAggregate(acc *groupAccumulator, agg Aggregation, batch *column.Batch, rowOffset int) {
	alias := agg.DefaultAlias()

	switch agg.Operator {
	case AggCount:
		if agg.Column == "" {
			acc.counts[alias]++
			return
		}
		col, ok := batch.Columns[agg.Column]
		if ok && !col.IsNull(rowOffset) {
			acc.counts[alias]++
		}
	case AggSum, AggAvg:
		col, ok := batch.Columns[agg.Column]
		if !ok || col.Type != column.TypeNumber || col.IsNull(rowOffset) {
			return
		}
		v := col.Number.Values[rowOffset]
		if isFiniteFloat(v) {
			acc.sums[alias] += v
			acc.sumCnts[alias]++
		}
	case AggMin:
		applyMinMax(acc.mins, alias, agg.Column, batch, rowOffset, true)
	case AggMax:
		applyMinMax(acc.maxs, alias, agg.Column, batch, rowOffset, false)
	}
}

// applyMinMax updates the tracked extreme for alias using a
// type-appropriate ordering: numbers/datetimes compare numerically,
// strings compare lexically, booleans treat false < true. The
// original-typed value is preserved so min/max output keeps the
// source type per §4.9.
func applyMinMax(states map[string]*minMaxState, alias, colName string, batch *column.Batch, rowOffset int, isMin bool) {
	col, ok := batch.Columns[colName]
	if !ok || col.IsNull(rowOffset) {
		return
	}

	var num float64
	var str string
	useStr := false

	switch col.Type {
	case column.TypeNumber:
		num = col.Number.Values[rowOffset]
		if !isFiniteFloat(num) {
			return
		}
	case column.TypeDatetime:
		num = col.Datetime.Millis[rowOffset]
		if !isFiniteFloat(num) {
			return
		}
	case column.TypeString:
		str = col.String.Value(rowOffset)
		useStr = true
	case column.TypeBoolean:
		if col.Boolean.Value(rowOffset) {
			num = 1
		} else {
			num = 0
		}
	default:
		return
	}

	value := rawValue(batch, rowOffset, colName)

	st, exists := states[alias]
	if !exists {
		states[alias] = &minMaxState{set: true, value: value, num: num, str: str}
		return
	}

	better := false
	if useStr {
		cmp := strings.Compare(str, st.str)
		better = (isMin && cmp < 0) || (!isMin && cmp > 0)
	} else {
		better = (isMin && num < st.num) || (!isMin && num > st.num)
	}
	if better {
		st.value, st.num, st.str = value, num, str
	}
}

func isFiniteFloat(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finalizeAggregates(acc *groupAccumulator, aggs []Aggregation) map[string]any {
	out := make(map[string]any, len(aggs))
	for _, agg := range aggs {
		alias := agg.DefaultAlias()
		switch agg.Operator {
		case AggCount:
			out[alias] = acc.counts[alias]
		case AggSum:
			out[alias] = acc.sums[alias]
		case AggAvg:
			cnt := acc.sumCnts[alias]
			if cnt == 0 {
				out[alias] = nil
			} else {
				out[alias] = acc.sums[alias] / float64(cnt)
			}
		case AggMin:
			if st := acc.mins[alias]; st != nil && st.set {
				out[alias] = st.value
			} else {
				out[alias] = nil
			}
		case AggMax:
			if st := acc.maxs[alias]; st != nil && st.set {
				out[alias] = st.value
			} else {
				out[alias] = nil
			}
		}
	}
	return out
}
