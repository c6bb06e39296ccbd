// Package annotation implements C10: user-defined labels and
// per-row tags/notes layered on top of a dataset, independent of any
// filter/sort/group state. Structure (row-indexed annotation map,
// atomic snapshot persistence, autosave) follows app/workspace/local.go's
// annotationsMap/saveWorkspaceFileUnlocked shape and app/interfaces/types.go's
// RowAnnotation; label ids use github.com/google/uuid the way
// app/workspace/workspace.go mints annotation ids, and exported
// snapshots are deep-copied with github.com/tiendc/go-deepcopy so a
// caller mutating an export can't alias live store state.
package annotation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tiendc/go-deepcopy"

	"breachline/internal/store"
)

// Label is a user-defined tag definition (name + display color).
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// RowAnnotation is one row's note and set of applied label ids.
type RowAnnotation struct {
	RowID    uint32   `json:"rowId"`
	Note     string   `json:"note,omitempty"`
	LabelIDs []string `json:"labelIds,omitempty"`
}

// IsEmpty reports whether this annotation carries no information
// worth persisting (no note, no labels), per the store's "drop empty
// annotations" bookkeeping rule.
func (r RowAnnotation) IsEmpty() bool {
	return r.Note == "" && len(r.LabelIDs) == 0
}

// snapshot is the on-disk/exported shape.
type snapshot struct {
	Version int             `json:"version"`
	Labels  []Label         `json:"labels"`
	Rows    []RowAnnotation `json:"rows"`
}

const snapshotVersion = 1

// Store holds one dataset's labels and row annotations in memory,
// with debounced atomic persistence.
type Store struct {
	mu     sync.Mutex
	labels map[string]*Label
	rows   map[uint32]*RowAnnotation

	dataset  store.Dataset
	fileName string
	log      zerolog.Logger

	debounced  func(func())
	ceiling    time.Duration
	lastForced time.Time
	dirty      bool
}

// New constructs a Store. dataset/fileName may be zero-valued to run
// purely in memory (no persistence). debounceInterval/ceiling follow
// §annotation autosave semantics: debounceInterval is the quiet-period
// before a save fires, ceiling is the maximum time dirty state may go
// unsaved even under continuous activity.
func New(dataset store.Dataset, fileName string, debounceInterval, ceiling time.Duration, log zerolog.Logger) *Store {
	s := &Store{
		labels:   make(map[string]*Label),
		rows:     make(map[uint32]*RowAnnotation),
		dataset:  dataset,
		fileName: fileName,
		ceiling:  ceiling,
		log:      log.With().Str("component", "annotation").Logger(),
	}
	if debounceInterval > 0 {
		s.debounced = debounce.New(debounceInterval)
	}
	return s
}

// UpsertLabel creates or updates a label. A zero ID mints a new uuid.
func (s *Store) UpsertLabel(label Label) Label {
	s.mu.Lock()
	defer s.mu.Unlock()

	if label.ID == "" {
		label.ID = uuid.New().String()
	}
	l := label
	s.labels[l.ID] = &l
	s.markDirtyLocked()
	return l
}

// DeleteLabel removes a label and cascades removal of that label id
// from every row's LabelIDs, dropping any row annotation that becomes
// empty as a result.
func (s *Store) DeleteLabel(labelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.labels[labelID]; !ok {
		return
	}
	delete(s.labels, labelID)

	for rowID, ann := range s.rows {
		ann.LabelIDs = removeString(ann.LabelIDs, labelID)
		if ann.IsEmpty() {
			delete(s.rows, rowID)
		}
	}
	s.markDirtyLocked()
}

// Labels returns a snapshot slice of all labels.
func (s *Store) Labels() []Label {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Label, 0, len(s.labels))
	for _, l := range s.labels {
		out = append(out, *l)
	}
	return out
}

// TagRows applies labelID to every row in rowIDs, creating row
// annotations as needed.
func (s *Store) TagRows(rowIDs []uint32, labelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.labels[labelID]; !ok {
		return fmt.Errorf("annotation: unknown label %q", labelID)
	}
	for _, rowID := range rowIDs {
		ann, ok := s.rows[rowID]
		if !ok {
			ann = &RowAnnotation{RowID: rowID}
			s.rows[rowID] = ann
		}
		if !containsString(ann.LabelIDs, labelID) {
			ann.LabelIDs = append(ann.LabelIDs, labelID)
		}
	}
	s.markDirtyLocked()
	return nil
}

// ClearTag removes labelID from every row in rowIDs, dropping row
// annotations that become empty.
func (s *Store) ClearTag(rowIDs []uint32, labelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rowID := range rowIDs {
		ann, ok := s.rows[rowID]
		if !ok {
			continue
		}
		ann.LabelIDs = removeString(ann.LabelIDs, labelID)
		if ann.IsEmpty() {
			delete(s.rows, rowID)
		}
	}
	s.markDirtyLocked()
}

// SetNote sets (or, with an empty value, clears) a row's free-text note.
func (s *Store) SetNote(rowID uint32, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ann, ok := s.rows[rowID]
	if !ok {
		if note == "" {
			return
		}
		ann = &RowAnnotation{RowID: rowID}
		s.rows[rowID] = ann
	}
	ann.Note = note
	if ann.IsEmpty() {
		delete(s.rows, rowID)
	}
	s.markDirtyLocked()
}

// LabelIDs implements filter.TagResolver.
func (s *Store) LabelIDs(rowID uint32) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ann, ok := s.rows[rowID]
	if !ok {
		return nil
	}
	return append([]string(nil), ann.LabelIDs...)
}

// RowAnnotationFor returns the annotation for rowID, if any.
func (s *Store) RowAnnotationFor(rowID uint32) (RowAnnotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ann, ok := s.rows[rowID]
	if !ok {
		return RowAnnotation{}, false
	}
	return *ann, true
}

// ExportTags returns a deep copy of the current labels and row
// annotations so the caller can freely mutate or serialize it without
// risking aliasing live store state.
func (s *Store) ExportTags() ([]Label, []RowAnnotation, error) {
	s.mu.Lock()
	labels := make([]Label, 0, len(s.labels))
	for _, l := range s.labels {
		labels = append(labels, *l)
	}
	rows := make([]RowAnnotation, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, *r)
	}
	s.mu.Unlock()

	var labelsCopy []Label
	var rowsCopy []RowAnnotation
	if err := deepcopy.Copy(&labelsCopy, &labels); err != nil {
		return nil, nil, fmt.Errorf("annotation: export labels: %w", err)
	}
	if err := deepcopy.Copy(&rowsCopy, &rows); err != nil {
		return nil, nil, fmt.Errorf("annotation: export rows: %w", err)
	}
	return labelsCopy, rowsCopy, nil
}

// ImportTags replaces the current label set and row annotations with
// the given ones (used for restoring a previously exported snapshot).
func (s *Store) ImportTags(labels []Label, rows []RowAnnotation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.labels = make(map[string]*Label, len(labels))
	for _, l := range labels {
		label := l
		s.labels[label.ID] = &label
	}
	s.rows = make(map[uint32]*RowAnnotation, len(rows))
	for _, r := range rows {
		if r.IsEmpty() {
			continue
		}
		row := r
		s.rows[row.RowID] = &row
	}
	s.markDirtyLocked()
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func containsString(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

// markDirtyLocked schedules a debounced save (or forces one if the
// ceiling has elapsed since the first dirty mark after the last
// completed save), per §annotation
// autosave's "debounce ~30s, hard ceiling ~60s" rule. Must be called
// with s.mu held.
func (s *Store) markDirtyLocked() {
	s.dirty = true
	if s.dataset == nil {
		return
	}

	if s.ceiling > 0 && !s.lastForced.IsZero() && time.Since(s.lastForced) >= s.ceiling {
		go s.PersistTags()
		return
	}
	if s.lastForced.IsZero() {
		s.lastForced = time.Now()
	}

	if s.debounced != nil {
		s.debounced(func() { s.PersistTags() })
	} else {
		go s.PersistTags()
	}
}

// PersistTags writes the current labels and row annotations to the
// configured dataset via an atomic snapshot write, per §5's
// write-temp-then-rename rule (delegated to store.Dataset.WriteAtomic).
func (s *Store) PersistTags() error {
	s.mu.Lock()
	if s.dataset == nil || !s.dirty {
		s.mu.Unlock()
		return nil
	}
	labels := make([]Label, 0, len(s.labels))
	for _, l := range s.labels {
		labels = append(labels, *l)
	}
	rows := make([]RowAnnotation, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, *r)
	}
	s.dirty = false
	s.lastForced = time.Time{}
	s.mu.Unlock()

	snap := snapshot{Version: snapshotVersion, Labels: labels, Rows: rows}
	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("annotation: marshal snapshot: %w", err)
	}

	if err := s.dataset.WriteAtomic(s.fileName, bytes.NewReader(data)); err != nil {
		s.log.Error().Err(err).Msg("persist tags failed")
		return err
	}
	return nil
}

// LoadTags reads a previously persisted snapshot from the dataset, if
// present. A missing file is not an error; the store simply starts empty.
func (s *Store) LoadTags() error {
	if s.dataset == nil {
		return nil
	}
	r, err := s.dataset.Get(s.fileName)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("annotation: load snapshot: %w", err)
	}
	defer r.Close()

	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("annotation: decode snapshot: %w", err)
	}

	s.ImportTags(snap.Labels, snap.Rows)
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}
