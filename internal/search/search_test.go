package search

import (
	"context"
	"testing"

	"breachline/internal/column"
	"breachline/internal/filter"
)

func makeBatch(rowStart uint32, names []string) *column.Batch {
	b := column.NewStringBuilder(len(names))
	for _, n := range names {
		b.Append(n)
	}
	return &column.Batch{
		RowStart:    rowStart,
		RowCount:    uint32(len(names)),
		ColumnOrder: []string{"name"},
		Columns:     map[string]column.Column{"name": {Type: column.TypeString, String: b.Build()}},
		ColumnTypes: map[string]column.Type{"name": column.TypeString},
	}
}

func TestSearchSubstringMatch(t *testing.T) {
	batch := makeBatch(0, []string{"Alice", "Bob", "Alicia"})
	res := Search(context.Background(), Request{Query: "ali", Columns: []string{"name"}}, func(fn func(*column.Batch) bool) {
		fn(batch)
	}, filter.Context{})

	if res.MatchedRows != 2 || res.TotalRows != 3 {
		t.Fatalf("got %+v", res)
	}
	if res.RowIDs[0] != 0 || res.RowIDs[1] != 2 {
		t.Fatalf("row ids = %v", res.RowIDs)
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	batch := makeBatch(0, []string{"ant", "ant", "ant"})
	res := Search(context.Background(), Request{Query: "ant", Columns: []string{"name"}, Limit: 2}, func(fn func(*column.Batch) bool) {
		fn(batch)
	}, filter.Context{})
	if len(res.RowIDs) != 2 {
		t.Fatalf("got %d matches, want 2 (limit)", len(res.RowIDs))
	}
}

func TestSearchCancelsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch := makeBatch(0, []string{"alice"})
	res := Search(ctx, Request{Query: "ali", Columns: []string{"name"}}, func(fn func(*column.Batch) bool) {
		fn(batch)
	}, filter.Context{})
	if res.MatchedRows != 0 {
		t.Fatalf("expected no matches once context is cancelled, got %+v", res)
	}
}

func TestSearchShortQueryFuzzyFallback(t *testing.T) {
	batch := makeBatch(0, []string{"Springfield"})
	res := Search(context.Background(), Request{Query: "Springfeld", Columns: []string{"name"}}, func(fn func(*column.Batch) bool) {
		fn(batch)
	}, filter.Context{})
	if res.MatchedRows != 1 {
		t.Fatalf("expected fuzzy fallback to match a near-miss spelling, got %+v", res)
	}
}
