package fuzzy

import (
	"testing"

	"breachline/internal/store"
)

func TestColumnBuilderSearchFindsCloseMatch(t *testing.T) {
	b := NewColumnBuilder(0, 0)
	for _, v := range []string{"apple pie", "applesauce", "banana bread"} {
		b.Observe(v)
	}
	idx := b.Finalize()

	results := idx.Search("aple", 2, 5)
	if len(results) == 0 {
		t.Fatal("expected at least one fuzzy match for 'aple'")
	}
	found := false
	for _, r := range results {
		if r.Token == "apple" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'apple' among results, got %+v", results)
	}
}

func TestColumnBuilderDropsShortTokens(t *testing.T) {
	b := NewColumnBuilder(0, 0)
	b.Observe("a an in of apple")
	idx := b.Finalize()
	kept := map[string]bool{}
	for _, tok := range idx.Tokens {
		if tok.Token == "a" {
			t.Fatalf("expected tokens shorter than 2 runes to be dropped, found %q", tok.Token)
		}
		kept[tok.Token] = true
	}
	if !kept["an"] || !kept["in"] || !kept["of"] || !kept["apple"] {
		t.Fatalf("expected tokens of 2 or more runes to be kept, got %+v", idx.Tokens)
	}
}

func TestColumnBuilderPrunesOverBudget(t *testing.T) {
	b := NewColumnBuilder(2, 0)
	b.Observe("zebra")
	b.Observe("zebra")
	b.Observe("yak")
	b.Observe("xray")
	idx := b.Finalize()
	if len(idx.Tokens) > 2 {
		t.Fatalf("got %d tokens, want at most 2 after pruning", len(idx.Tokens))
	}
	if !idx.Truncated {
		t.Fatal("expected Truncated=true after pruning over budget")
	}
}

func TestIndexObserveAndSuggestColumn(t *testing.T) {
	idx := NewIndex(0, 0)
	idx.Observe("city", "Springfield")
	idx.Observe("city", "Shelbyville")
	idx.Finalize()

	got := idx.SuggestColumn("city", "Springfeld", 2, 3)
	if len(got) == 0 {
		t.Fatal("expected a suggestion for a near-miss spelling")
	}

	if got2 := idx.SuggestColumn("missing-column", "x", 2, 3); got2 != nil {
		t.Fatalf("expected nil for an unobserved column, got %+v", got2)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	idx := NewIndex(0, 0)
	idx.Observe("city", "Springfield")
	idx.Finalize()

	fp := Fingerprint{FileName: "data.csv", FileSize: 100, LastModified: 1000}
	snap := idx.Snapshot(1, 100, fp)

	restored := FromSnapshot(snap)
	got := restored.SuggestColumn("city", "Springfeld", 2, 3)
	if len(got) == 0 {
		t.Fatal("expected suggestion from restored snapshot")
	}

	if !snap.MatchesFingerprint(fp, 100) {
		t.Fatal("expected snapshot to match its own fingerprint/size")
	}
	if snap.MatchesFingerprint(fp, 999) {
		t.Fatal("expected mismatch for a different file size")
	}
}

func TestPersistLoadClearSnapshot(t *testing.T) {
	capability := store.NewMemoryCapability()
	ds, err := capability.GetDirectory("test")
	if err != nil {
		t.Fatalf("GetDirectory: %v", err)
	}

	idx := NewIndex(0, 0)
	idx.Observe("city", "Springfield")
	idx.Finalize()
	fp := Fingerprint{FileName: "data.csv", FileSize: 100, LastModified: 1000}
	snap := idx.Snapshot(1, 100, fp)

	if err := PersistSnapshot(ds, snap); err != nil {
		t.Fatalf("PersistSnapshot: %v", err)
	}

	loaded, ok, err := LoadSnapshot(ds)
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot: ok=%v err=%v", ok, err)
	}
	if loaded.Fingerprint != fp {
		t.Fatalf("loaded fingerprint = %+v, want %+v", loaded.Fingerprint, fp)
	}

	if err := ClearSnapshot(ds); err != nil {
		t.Fatalf("ClearSnapshot: %v", err)
	}
	if _, ok, err := LoadSnapshot(ds); ok || err != nil {
		t.Fatalf("expected ok=false after ClearSnapshot, got ok=%v err=%v", ok, err)
	}
}
