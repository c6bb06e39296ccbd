// Package config holds the ambient engine-wide preferences a caller
// can persist across sessions: cache sizing, default timezone, and
// the fuzzy/search budgets, per SPEC_FULL's ambient-configuration
// section. Structure and YAML-with-explicit-defaults-overlay style
// follow app/settings/{types,service}.go's persistence shape.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Preferences holds the subset of engine behavior a user can override.
type Preferences struct {
	BatchCacheSize               int    `yaml:"batch_cache_size" json:"batch_cache_size"`
	RowIndexCheckpointInterval   int    `yaml:"row_index_checkpoint_interval" json:"row_index_checkpoint_interval"`
	DefaultIngestTimezone        string `yaml:"default_ingest_timezone" json:"default_ingest_timezone"`
	FuzzyMaxTokensPerColumn      int    `yaml:"fuzzy_max_tokens_per_column" json:"fuzzy_max_tokens_per_column"`
	FuzzyMaxApproxBytes          int64  `yaml:"fuzzy_max_approx_bytes" json:"fuzzy_max_approx_bytes"`
	SearchDefaultLimit           int    `yaml:"search_default_limit" json:"search_default_limit"`
	AnnotationAutosaveDebounceMS int    `yaml:"annotation_autosave_debounce_ms" json:"annotation_autosave_debounce_ms"`
	AnnotationAutosaveCeilingMS  int    `yaml:"annotation_autosave_ceiling_ms" json:"annotation_autosave_ceiling_ms"`
}

// defaultPreferences defines the built-in values, mirroring the
// constants each owning package already falls back to.
var defaultPreferences = Preferences{
	BatchCacheSize:               4,
	RowIndexCheckpointInterval:   50_000,
	DefaultIngestTimezone:        "UTC",
	FuzzyMaxTokensPerColumn:      50_000,
	FuzzyMaxApproxBytes:          32 * 1024 * 1024,
	SearchDefaultLimit:           500,
	AnnotationAutosaveDebounceMS: 30_000,
	AnnotationAutosaveCeilingMS:  60_000,
}

// Default returns a copy of the built-in defaults.
func Default() Preferences {
	return defaultPreferences
}

// Store reads/writes Preferences at a fixed path, overlaying only the
// keys present on disk atop the defaults (so upgrading the binary adds
// new default fields without a migration step).
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the effective preferences: defaults overlaid with any
// on-disk overrides. A missing file is not an error.
func (s *Store) Load() (Preferences, error) {
	prefs := defaultPreferences

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs, nil
		}
		return prefs, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return prefs, err
	}

	var onDisk Preferences
	if err := yaml.Unmarshal(b, &onDisk); err != nil {
		return prefs, err
	}

	overlayPresentFields(&prefs, onDisk, raw)
	return prefs, nil
}

// overlayPresentFields copies only the fields actually present in the
// decoded YAML document (detected via the raw key map) so a zero
// value on disk ("0") is distinguished from an absent key.
func overlayPresentFields(prefs *Preferences, onDisk Preferences, raw map[string]any) {
	if _, ok := raw["batch_cache_size"]; ok {
		prefs.BatchCacheSize = onDisk.BatchCacheSize
	}
	if _, ok := raw["row_index_checkpoint_interval"]; ok {
		prefs.RowIndexCheckpointInterval = onDisk.RowIndexCheckpointInterval
	}
	if _, ok := raw["default_ingest_timezone"]; ok {
		prefs.DefaultIngestTimezone = onDisk.DefaultIngestTimezone
	}
	if _, ok := raw["fuzzy_max_tokens_per_column"]; ok {
		prefs.FuzzyMaxTokensPerColumn = onDisk.FuzzyMaxTokensPerColumn
	}
	if _, ok := raw["fuzzy_max_approx_bytes"]; ok {
		prefs.FuzzyMaxApproxBytes = onDisk.FuzzyMaxApproxBytes
	}
	if _, ok := raw["search_default_limit"]; ok {
		prefs.SearchDefaultLimit = onDisk.SearchDefaultLimit
	}
	if _, ok := raw["annotation_autosave_debounce_ms"]; ok {
		prefs.AnnotationAutosaveDebounceMS = onDisk.AnnotationAutosaveDebounceMS
	}
	if _, ok := raw["annotation_autosave_ceiling_ms"]; ok {
		prefs.AnnotationAutosaveCeilingMS = onDisk.AnnotationAutosaveCeilingMS
	}
}

// Save persists prefs, creating parent directories as needed.
func (s *Store) Save(prefs Preferences) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(&prefs)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
