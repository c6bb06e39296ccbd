package annotation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"breachline/internal/store"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	return New(nil, "", 0, 0, zerolog.Nop())
}

func TestUpsertAndTagRows(t *testing.T) {
	s := newMemStore(t)
	label := s.UpsertLabel(Label{Name: "important", Color: "#f00"})
	if label.ID == "" {
		t.Fatal("expected a minted uuid for a new label")
	}

	if err := s.TagRows([]uint32{1, 2}, label.ID); err != nil {
		t.Fatalf("TagRows: %v", err)
	}
	if ids := s.LabelIDs(1); len(ids) != 1 || ids[0] != label.ID {
		t.Fatalf("LabelIDs(1) = %v", ids)
	}

	if err := s.TagRows([]uint32{1}, "missing-label"); err == nil {
		t.Fatal("expected error tagging with an unknown label id")
	}
}

func TestClearTagDropsEmptyAnnotation(t *testing.T) {
	s := newMemStore(t)
	label := s.UpsertLabel(Label{Name: "x"})
	s.TagRows([]uint32{5}, label.ID)
	s.ClearTag([]uint32{5}, label.ID)

	if _, ok := s.RowAnnotationFor(5); ok {
		t.Fatal("expected row annotation to be dropped once it becomes empty")
	}
}

func TestDeleteLabelCascades(t *testing.T) {
	s := newMemStore(t)
	label := s.UpsertLabel(Label{Name: "x"})
	s.TagRows([]uint32{1}, label.ID)
	s.DeleteLabel(label.ID)

	if len(s.Labels()) != 0 {
		t.Fatal("expected label set to be empty after delete")
	}
	if ids := s.LabelIDs(1); len(ids) != 0 {
		t.Fatalf("expected cascade to clear row 1's labels, got %v", ids)
	}
}

func TestSetNoteClearsOnEmpty(t *testing.T) {
	s := newMemStore(t)
	s.SetNote(1, "hello")
	if ann, ok := s.RowAnnotationFor(1); !ok || ann.Note != "hello" {
		t.Fatalf("got %+v, ok=%v", ann, ok)
	}
	s.SetNote(1, "")
	if _, ok := s.RowAnnotationFor(1); ok {
		t.Fatal("expected row annotation removed once note is cleared and no labels remain")
	}
}

func TestExportImportRoundTripIsDeepCopy(t *testing.T) {
	s := newMemStore(t)
	label := s.UpsertLabel(Label{Name: "x"})
	s.TagRows([]uint32{1}, label.ID)

	labels, rows, err := s.ExportTags()
	if err != nil {
		t.Fatalf("ExportTags: %v", err)
	}
	labels[0].Name = "mutated"
	rows[0].LabelIDs[0] = "mutated"

	if got := s.Labels()[0].Name; got != "x" {
		t.Fatalf("mutating exported slice affected live store: name=%q", got)
	}
	if got := s.LabelIDs(1)[0]; got != label.ID {
		t.Fatalf("mutating exported slice affected live store: labelID=%q", got)
	}
}

func TestImportTagsDropsEmptyRows(t *testing.T) {
	s := newMemStore(t)
	s.ImportTags([]Label{{ID: "l1", Name: "x"}}, []RowAnnotation{
		{RowID: 1, Note: "keep"},
		{RowID: 2},
	})
	if _, ok := s.RowAnnotationFor(2); ok {
		t.Fatal("expected empty imported row annotation to be dropped")
	}
	if _, ok := s.RowAnnotationFor(1); !ok {
		t.Fatal("expected non-empty imported row annotation to be kept")
	}
}

func TestPersistAndLoadTags(t *testing.T) {
	capability := store.NewMemoryCapability()
	ds, err := capability.GetDirectory("test")
	if err != nil {
		t.Fatalf("GetDirectory: %v", err)
	}

	s := New(ds, "tags.json", 0, time.Hour, zerolog.Nop())
	label := s.UpsertLabel(Label{Name: "x"})
	s.TagRows([]uint32{3}, label.ID)
	if err := s.PersistTags(); err != nil {
		t.Fatalf("PersistTags: %v", err)
	}

	loaded := New(ds, "tags.json", 0, time.Hour, zerolog.Nop())
	if err := loaded.LoadTags(); err != nil {
		t.Fatalf("LoadTags: %v", err)
	}
	if ids := loaded.LabelIDs(3); len(ids) != 1 || ids[0] != label.ID {
		t.Fatalf("LabelIDs(3) after reload = %v", ids)
	}
}
