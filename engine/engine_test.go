package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"breachline/internal/annotation"
	"breachline/internal/filter"
	"breachline/internal/group"
	"breachline/internal/sortengine"
	"breachline/internal/store"
)

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(store.NewMemoryCapability(), filepath.Join(t.TempDir(), "prefs.yaml"))
	if err := e.Init(Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e
}

func loadFixture(t *testing.T, e *Engine, contents string) {
	t.Helper()
	path := writeCSV(t, contents)
	var loadErr error
	err := e.LoadFile(LoadFileRequest{Path: path}, LoadFileCallbacks{
		OnError: func(info ErrorInfo) { loadErr = &engineTestError{info} },
	})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loadErr != nil {
		t.Fatalf("LoadFile reported OnError: %v", loadErr)
	}
}

type engineTestError struct{ info ErrorInfo }

func (e *engineTestError) Error() string { return e.info.Message }

const fixtureCSV = "name,age,active\n" +
	"Alice,30,true\n" +
	"Bob,25,false\n" +
	"Carol,40,true\n"

func TestLoadFileThenFetchRows(t *testing.T) {
	e := newTestEngine(t)
	loadFixture(t, e, fixtureCSV)

	res, err := e.FetchRows(FetchRowsRequest{Offset: 0, Limit: 10})
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	if res.TotalRows != 3 || len(res.Rows) != 3 {
		t.Fatalf("got %+v", res)
	}
	if res.Rows[0]["name"] != "Alice" {
		t.Fatalf("row 0 = %+v", res.Rows[0])
	}
}

func TestFetchRowsBeforeLoadIsNotReady(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.FetchRows(FetchRowsRequest{Limit: 10}); err == nil {
		t.Fatal("expected an error fetching rows before any file is loaded")
	}
}

func TestApplyFilterNarrowsAndClears(t *testing.T) {
	e := newTestEngine(t)
	loadFixture(t, e, fixtureCSV)

	expr := filter.Leaf(filter.Predicate{Column: "active", Operator: filter.OpEq, Value: "true"})
	res, err := e.ApplyFilter(ApplyFilterRequest{Expression: &expr, Limit: 10})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	if res.MatchedRows != 2 || res.TotalRows != 3 {
		t.Fatalf("got %+v", res)
	}

	cleared, err := e.ApplyFilter(ApplyFilterRequest{Expression: nil, Limit: 10})
	if err != nil {
		t.Fatalf("ApplyFilter clear: %v", err)
	}
	if cleared.MatchedRows != 3 {
		t.Fatalf("expected clearing the filter to restore all 3 rows, got %+v", cleared)
	}
}

func TestApplyFilterFuzzySalvageReportsUsage(t *testing.T) {
	e := newTestEngine(t)
	loadFixture(t, e, fixtureCSV)

	expr := filter.Leaf(filter.Predicate{Column: "name", Operator: filter.OpEq, Value: "alicc", Fuzzy: true})
	res, err := e.ApplyFilter(ApplyFilterRequest{Expression: &expr, Limit: 10})
	if err != nil {
		t.Fatalf("ApplyFilter: %v", err)
	}
	if len(res.FuzzyUsed) == 0 {
		t.Fatal("expected fuzzy salvage metadata for a near-miss query against an ingested column")
	}
}

func TestApplySortsStable(t *testing.T) {
	e := newTestEngine(t)
	loadFixture(t, e, fixtureCSV)

	res, err := e.ApplySorts(ApplySortsRequest{
		Sorts: []sortengine.Key{{Column: "age", Direction: sortengine.Asc}},
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("ApplySorts: %v", err)
	}
	if !res.SortComplete || len(res.Rows) != 3 {
		t.Fatalf("got %+v", res)
	}
	if res.Rows[0]["name"] != "Bob" || res.Rows[2]["name"] != "Carol" {
		t.Fatalf("sort order wrong: %+v", res.Rows)
	}
}

func TestGroupBySingleColumnCollapsesKey(t *testing.T) {
	e := newTestEngine(t)
	loadFixture(t, e, fixtureCSV)

	res, err := e.GroupBy(GroupByRequest{
		GroupBy:      []string{"active"},
		Aggregations: []group.Aggregation{{Operator: group.AggCount}},
	})
	if err != nil {
		t.Fatalf("GroupBy: %v", err)
	}
	if res.TotalGroups != 2 {
		t.Fatalf("got %d groups, want 2", res.TotalGroups)
	}
	for _, r := range res.Rows {
		if _, isList := r.Key.([]any); isList {
			t.Fatalf("expected a scalar key for a single group-by column, got %+v", r.Key)
		}
	}
}

func TestGlobalSearchAcrossColumns(t *testing.T) {
	e := newTestEngine(t)
	loadFixture(t, e, fixtureCSV)

	res, err := e.GlobalSearch(context.Background(), GlobalSearchRequest{Query: "ali", Columns: []string{"name"}})
	if err != nil {
		t.Fatalf("GlobalSearch: %v", err)
	}
	if res.MatchedRows != 1 {
		t.Fatalf("got %+v", res)
	}
}

func TestTagRowsAndExportImportRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	loadFixture(t, e, fixtureCSV)

	label, err := e.UpsertLabel(annotation.Label{Name: "reviewed"})
	if err != nil {
		t.Fatalf("UpsertLabel: %v", err)
	}
	if err := e.TagRows(TagRowsRequest{RowIDs: []uint32{0}, LabelIDs: []string{label.ID}, Mode: TagModeAppend}); err != nil {
		t.Fatalf("TagRows: %v", err)
	}

	labels, rows, err := e.ExportTags()
	if err != nil {
		t.Fatalf("ExportTags: %v", err)
	}
	if len(labels) != 1 || len(rows) != 1 {
		t.Fatalf("got labels=%d rows=%d", len(labels), len(rows))
	}

	if err := e.ImportTags(ImportTagsRequest{Labels: labels, Rows: rows, MergeStrategy: "replace"}); err != nil {
		t.Fatalf("ImportTags: %v", err)
	}
	got, err := e.Labels()
	if err != nil || len(got) != 1 {
		t.Fatalf("Labels after import: %v, err=%v", got, err)
	}
}

func TestSeekRowsFindsNearestCheckpoint(t *testing.T) {
	e := newTestEngine(t)
	lines := "n\n"
	for i := 0; i < 50; i++ {
		lines += "x\n"
	}
	path := writeCSV(t, lines)

	var loadErr error
	err := e.LoadFile(LoadFileRequest{Path: path, CheckpointInterval: 5}, LoadFileCallbacks{
		OnError: func(info ErrorInfo) { loadErr = &engineTestError{info} },
	})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loadErr != nil {
		t.Fatalf("LoadFile reported OnError: %v", loadErr)
	}

	res, err := e.SeekRows(SeekRowsRequest{StartRow: 10, RowCount: 5})
	if err != nil {
		t.Fatalf("SeekRows: %v", err)
	}
	if !res.OK {
		t.Fatal("expected a checkpoint to be found")
	}
}
