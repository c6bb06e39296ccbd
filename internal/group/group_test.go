package group

import (
	"testing"

	"breachline/internal/column"
)

func makeBatch(names []string, amounts []float64) *column.Batch {
	b := column.NewStringBuilder(len(names))
	for _, n := range names {
		b.Append(n)
	}
	return &column.Batch{
		RowCount:    uint32(len(names)),
		ColumnOrder: []string{"category", "amount"},
		Columns: map[string]column.Column{
			"category": {Type: column.TypeString, String: b.Build()},
			"amount":   {Type: column.TypeNumber, Number: &column.NumberColumn{Values: amounts}},
		},
		ColumnTypes: map[string]column.Type{"category": column.TypeString, "amount": column.TypeNumber},
	}
}

func TestGroupByCountSumAvg(t *testing.T) {
	batch := makeBatch([]string{"a", "b", "a"}, []float64{10, 20, 30})
	req := Request{
		GroupBy: []string{"category"},
		Aggregations: []Aggregation{
			{Operator: AggCount},
			{Operator: AggSum, Column: "amount"},
			{Operator: AggAvg, Column: "amount"},
		},
	}
	res := GroupBy(req, func(fn func(*column.Batch) bool) { fn(batch) })

	if res.TotalGroups != 2 || res.TotalRows != 3 {
		t.Fatalf("got %+v", res)
	}

	byKey := map[any]Row{}
	for _, r := range res.Rows {
		byKey[r.Key[0]] = r
	}
	a := byKey["a"]
	if a.RowCount != 2 {
		t.Fatalf("group a row count = %d, want 2", a.RowCount)
	}
	if a.Aggregates["count"] != 2 {
		t.Fatalf("group a count = %v, want 2", a.Aggregates["count"])
	}
	if a.Aggregates["sum(amount)"] != float64(40) {
		t.Fatalf("group a sum = %v, want 40", a.Aggregates["sum(amount)"])
	}
	if a.Aggregates["avg(amount)"] != float64(20) {
		t.Fatalf("group a avg = %v, want 20", a.Aggregates["avg(amount)"])
	}
}

func TestGroupByMinMaxPreservesType(t *testing.T) {
	batch := makeBatch([]string{"a", "a"}, []float64{10, 30})
	req := Request{
		GroupBy: []string{"category"},
		Aggregations: []Aggregation{
			{Operator: AggMin, Column: "amount"},
			{Operator: AggMax, Column: "amount"},
		},
	}
	res := GroupBy(req, func(fn func(*column.Batch) bool) { fn(batch) })
	if len(res.Rows) != 1 {
		t.Fatalf("got %d groups, want 1", len(res.Rows))
	}
	agg := res.Rows[0].Aggregates
	if agg["min(amount)"] != float64(10) || agg["max(amount)"] != float64(30) {
		t.Fatalf("min/max = %+v", agg)
	}
}

func TestGroupByPagination(t *testing.T) {
	batch := makeBatch([]string{"a", "b", "c", "d"}, []float64{1, 2, 3, 4})
	req := Request{GroupBy: []string{"category"}, Offset: 1, Limit: 2}
	res := GroupBy(req, func(fn func(*column.Batch) bool) { fn(batch) })
	if res.TotalGroups != 4 || len(res.Rows) != 2 {
		t.Fatalf("got total=%d rows=%d, want total=4 rows=2", res.TotalGroups, len(res.Rows))
	}
}

func TestDefaultAliasNamingConventions(t *testing.T) {
	if (Aggregation{Operator: AggCount}).DefaultAlias() != "count" {
		t.Fatal("bare count alias should be 'count'")
	}
	if (Aggregation{Operator: AggSum, Column: "amount"}).DefaultAlias() != "sum(amount)" {
		t.Fatal("sum alias should be 'sum(amount)'")
	}
	if (Aggregation{Operator: AggCount, Alias: "custom"}).DefaultAlias() != "custom" {
		t.Fatal("explicit alias should win")
	}
}
