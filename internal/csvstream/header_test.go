package csvstream

import "testing"

func TestNormalizeHeaderFillsBlanks(t *testing.T) {
	got := NormalizeHeader([]string{"name", "", "  ", "age"})
	want := []string{"name", "column_2", "column_3", "age"}
	if !equalStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNormalizeHeaderDedupes(t *testing.T) {
	got := NormalizeHeader([]string{"id", "id", "id"})
	want := []string{"id", "id_2", "id_3"}
	if !equalStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNormalizeHeaderTrimsWhitespace(t *testing.T) {
	got := NormalizeHeader([]string{"  name  ", " age"})
	want := []string{"name", "age"}
	if !equalStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
