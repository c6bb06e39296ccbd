package csvstream

import (
	"strings"
	"testing"

	"breachline/internal/column"
)

func parseAll(t *testing.T, input string, opts Options) ([]string, []*column.Batch, Stats) {
	t.Helper()
	var header []string
	var batches []*column.Batch
	var stats Stats

	p := New(Callbacks{
		OnHeader: func(cols []string) { header = cols },
		OnBatch:  func(b *column.Batch) { batches = append(batches, b) },
		OnComplete: func(s Stats) { stats = s },
	}, opts)

	if err := p.Parse(strings.NewReader(input)); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return header, batches, stats
}

func TestBasicLoad(t *testing.T) {
	header, batches, stats := parseAll(t, "name,age\nAlice,30\nBob,25\n", Options{})
	if got, want := header, []string{"name", "age"}; !equalStrings(got, want) {
		t.Fatalf("header = %v, want %v", got, want)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	b := batches[0]
	if b.ColumnTypes["name"] != column.TypeString || b.ColumnTypes["age"] != column.TypeNumber {
		t.Fatalf("column types = %v", b.ColumnTypes)
	}
	if b.Columns["name"].String.Value(0) != "Alice" || b.Columns["name"].String.Value(1) != "Bob" {
		t.Fatalf("name values wrong")
	}
	if stats.RowsParsed != 2 || !stats.EOF {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDelimiterAutodetectTSV(t *testing.T) {
	header, batches, _ := parseAll(t, "a\tb\tc\n10\t20\t30\n", Options{})
	if len(header) != 3 {
		t.Fatalf("header = %v", header)
	}
	if batches[0].Columns["a"].Number.Values[0] != 10 {
		t.Fatalf("expected numeric column a")
	}
}

func TestBOMIsStripped(t *testing.T) {
	input := "\xEF\xBB\xBFname,age\nAlice,30\n"
	header, _, _ := parseAll(t, input, Options{})
	if header[0] != "name" {
		t.Fatalf("header[0] = %q, want %q (BOM leaked into first column name)", header[0], "name")
	}
}

func TestQuotedFieldsWithEmbeddedDelimiterAndNewline(t *testing.T) {
	input := "name,bio\n\"Doe, Jane\",\"Line1\nLine2\"\n"
	_, batches, _ := parseAll(t, input, Options{})
	row0Name := batches[0].Columns["name"].String.Value(0)
	row0Bio := batches[0].Columns["bio"].String.Value(0)
	if row0Name != "Doe, Jane" {
		t.Fatalf("name = %q", row0Name)
	}
	if row0Bio != "Line1\nLine2" {
		t.Fatalf("bio = %q", row0Bio)
	}
}

func TestRowWidthNormalization(t *testing.T) {
	input := "a,b,c\n1,2\n1,2,3,4\n"
	_, batches, _ := parseAll(t, input, Options{})
	b := batches[0]
	if b.RowCount != 2 {
		t.Fatalf("got %d rows, want 2 (no row dropped for width mismatch)", b.RowCount)
	}
}

func TestCheckpointCallback(t *testing.T) {
	var checkpoints []Checkpoint
	var sb strings.Builder
	sb.WriteString("n\n")
	for i := 0; i < 10; i++ {
		sb.WriteString("x\n")
	}
	p := New(Callbacks{
		OnCheckpoint: func(cp Checkpoint) { checkpoints = append(checkpoints, cp) },
	}, Options{CheckpointInterval: 3})
	if err := p.Parse(strings.NewReader(sb.String())); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(checkpoints) != 3 {
		t.Fatalf("got %d checkpoints, want 3 (every 3rd row of 10)", len(checkpoints))
	}
	if checkpoints[0].RowIndex != 3 {
		t.Fatalf("first checkpoint row = %d, want 3", checkpoints[0].RowIndex)
	}
}

func TestBatchingSplitsAcrossBatchSize(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("n\n")
	for i := 0; i < 5; i++ {
		sb.WriteString("x\n")
	}
	_, batches, _ := parseAll(t, sb.String(), Options{BatchSize: 2})
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3 (2,2,1)", len(batches))
	}
	if batches[0].RowCount != 2 || batches[1].RowCount != 2 || batches[2].RowCount != 1 {
		t.Fatalf("batch sizes = %d,%d,%d", batches[0].RowCount, batches[1].RowCount, batches[2].RowCount)
	}
}

func TestHeaderOnlyFileEmitsEmptyEOFBatch(t *testing.T) {
	_, batches, stats := parseAll(t, "a,b,c\n", Options{})
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1 empty EOF batch", len(batches))
	}
	if !batches[0].EOF || batches[0].RowCount != 0 {
		t.Fatalf("batch = %+v", batches[0])
	}
	if stats.RowsParsed != 0 {
		t.Fatalf("rows parsed = %d, want 0", stats.RowsParsed)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
