package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.yaml"))
	prefs, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if prefs != Default() {
		t.Fatalf("got %+v, want defaults %+v", prefs, Default())
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	s := NewStore(path)

	custom := Default()
	custom.BatchCacheSize = 8
	custom.FuzzyMaxApproxBytes = 64 * 1024 * 1024

	if err := s.Save(custom); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != custom {
		t.Fatalf("got %+v, want %+v", loaded, custom)
	}
}

func TestLoadOverlaysOnlyPresentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	s := NewStore(path)

	if err := s.Save(Preferences{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Save writes every field (including zeros); simulate a partial
	// on-disk file by writing just one key directly.
	partial := []byte("batch_cache_size: 99\n")
	if err := os.WriteFile(path, partial, 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.BatchCacheSize != 99 {
		t.Fatalf("BatchCacheSize = %d, want 99", loaded.BatchCacheSize)
	}
	if loaded.SearchDefaultLimit != Default().SearchDefaultLimit {
		t.Fatalf("SearchDefaultLimit = %d, want default %d (absent key should not overlay)", loaded.SearchDefaultLimit, Default().SearchDefaultLimit)
	}
}
