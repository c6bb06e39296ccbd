package fuzzy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"breachline/internal/store"
)

// Fingerprint identifies a source file for fuzzy/annotation cache
// reuse decisions, per §3/§6's (fileName, fileSize, lastModified)
// triple.
type Fingerprint struct {
	FileName     string `json:"fileName"`
	FileSize     int64  `json:"fileSize"`
	LastModified int64  `json:"lastModified"` // unix millis
}

// Index is the multi-column fuzzy index: one ColumnBuilder per column
// while a dataset is being ingested, finalized into queryable
// ColumnIndex values once parsing completes, per §4.6.
type Index struct {
	mu        sync.Mutex
	maxTokens int
	maxBytes  int

	order     []string
	builders  map[string]*ColumnBuilder
	finalized map[string]*ColumnIndex
}

// NewIndex creates an empty multi-column index with the given
// per-column budgets (defaults applied for non-positive values).
func NewIndex(maxTokens, maxBytes int) *Index {
	return &Index{
		maxTokens: maxTokens,
		maxBytes:  maxBytes,
		builders:  make(map[string]*ColumnBuilder),
		finalized: make(map[string]*ColumnIndex),
	}
}

// Observe folds one cell value into columnKey's inventory, lazily
// creating the column's builder.
func (idx *Index) Observe(columnKey, cell string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	b, ok := idx.builders[columnKey]
	if !ok {
		b = NewColumnBuilder(idx.maxTokens, idx.maxBytes)
		idx.builders[columnKey] = b
		idx.order = append(idx.order, columnKey)
	}
	b.Observe(cell)
}

// Finalize assigns dense token ids and builds trigram postings for
// every observed column, per §4.6 "Finalize". Safe to call more than
// once (e.g. after a fresh batch of Observe calls at EOF).
func (idx *Index) Finalize() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, key := range idx.order {
		idx.finalized[key] = idx.builders[key].Finalize()
	}
}

// SuggestColumn returns the top-K within maxDistance candidates for
// query against columnKey's finalized index, or nil if the column has
// no fuzzy index (not yet observed, or observed but not finalized).
func (idx *Index) SuggestColumn(columnKey, query string, maxDistance, limit int) []Suggestion {
	idx.mu.Lock()
	ci := idx.finalized[columnKey]
	idx.mu.Unlock()
	if ci == nil {
		return nil
	}
	return ci.Search(query, maxDistance, limit)
}

// Columns returns the observed column keys in first-observed order.
func (idx *Index) Columns() []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return append([]string(nil), idx.order...)
}

// snapshotVersion is the fuzzy-snapshot on-disk/exported format
// version, per §6 "Fuzzy snapshot".
const snapshotVersion = 1

// TokenSnapshot is one token entry in a persisted column index.
type TokenSnapshot struct {
	ID        uint32 `json:"id"`
	Token     string `json:"token"`
	Frequency int    `json:"frequency"`
}

// ColumnSnapshot is one column's persisted fuzzy index.
type ColumnSnapshot struct {
	Key          string              `json:"key"`
	Truncated    bool                `json:"truncated"`
	Tokens       []TokenSnapshot     `json:"tokens"`
	TrigramIndex map[string][]uint32 `json:"trigramIndex"`
}

// Snapshot is the persisted/exported shape of a fuzzy index, per §6's
// "Fuzzy snapshot" on-disk format.
type Snapshot struct {
	Version     int            `json:"version"`
	CreatedAt   int64          `json:"createdAt"`
	RowCount    int            `json:"rowCount"`
	BytesParsed int64          `json:"bytesParsed"`
	TokenLimit  int            `json:"tokenLimit"`
	TrigramSize int            `json:"trigramSize"`
	Fingerprint Fingerprint    `json:"fingerprint"`
	Columns     []ColumnSnapshot `json:"columns"`
}

// Snapshot builds the persisted representation of the finalized
// index state (Finalize must have been called first for any column
// to appear).
func (idx *Index) Snapshot(rowCount int, bytesParsed int64, fp Fingerprint) Snapshot {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	snap := Snapshot{
		Version:     snapshotVersion,
		CreatedAt:   time.Now().UnixMilli(),
		RowCount:    rowCount,
		BytesParsed: bytesParsed,
		TokenLimit:  idx.maxTokens,
		TrigramSize: 3,
		Fingerprint: fp,
		Columns:     make([]ColumnSnapshot, 0, len(idx.order)),
	}
	for _, key := range idx.order {
		ci := idx.finalized[key]
		if ci == nil {
			continue
		}
		cs := ColumnSnapshot{
			Key:          key,
			Truncated:    ci.Truncated,
			Tokens:       make([]TokenSnapshot, len(ci.Tokens)),
			TrigramIndex: ci.postings,
		}
		for i, t := range ci.Tokens {
			cs.Tokens[i] = TokenSnapshot{ID: t.ID, Token: t.Token, Frequency: t.Frequency}
		}
		snap.Columns = append(snap.Columns, cs)
	}
	return snap
}

// FromSnapshot reconstructs a queryable Index directly from a
// persisted snapshot, skipping the builder stage entirely (the
// snapshot already carries finalized dense ids and postings).
func FromSnapshot(snap Snapshot) *Index {
	idx := &Index{
		maxTokens: snap.TokenLimit,
		builders:  make(map[string]*ColumnBuilder),
		finalized: make(map[string]*ColumnIndex),
	}
	for _, cs := range snap.Columns {
		tokens := make([]Token, len(cs.Tokens))
		for i, t := range cs.Tokens {
			tokens[i] = Token{ID: t.ID, Token: t.Token, Frequency: t.Frequency}
		}
		idx.order = append(idx.order, cs.Key)
		idx.finalized[cs.Key] = &ColumnIndex{
			Truncated: cs.Truncated,
			Tokens:    tokens,
			postings:  cs.TrigramIndex,
		}
	}
	return idx
}

// MatchesFingerprint reports whether a cached snapshot is still valid
// per §8's "Fuzzy index cache hit iff snapshot.fingerprint ==
// fingerprint(file) AND snapshot.bytesParsed == file.size".
func (s Snapshot) MatchesFingerprint(fp Fingerprint, fileSize int64) bool {
	return s.Fingerprint == fp && s.BytesParsed == fileSize
}

func snapshotFileName() string { return "fuzzy-index.json" }

// PersistSnapshot atomically writes snap to dataset, per §6's fuzzy
// snapshot envelope and §5's write-temp-then-rename rule (delegated
// to store.Dataset.WriteAtomic).
func PersistSnapshot(dataset store.Dataset, snap Snapshot) error {
	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("fuzzy: marshal snapshot: %w", err)
	}
	return dataset.WriteAtomic(snapshotFileName(), bytes.NewReader(data))
}

// LoadSnapshot reads a previously persisted snapshot from dataset. A
// missing file reports ok=false, not an error.
func LoadSnapshot(dataset store.Dataset) (Snapshot, bool, error) {
	r, err := dataset.Get(snapshotFileName())
	if err != nil {
		if err == store.ErrNotExist {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	defer r.Close()

	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("fuzzy: decode snapshot: %w", err)
	}
	return snap, true, nil
}

// ClearSnapshot removes a persisted snapshot, if any.
func ClearSnapshot(dataset store.Dataset) error {
	return dataset.Remove(snapshotFileName())
}

// sortedColumnKeys is a small helper for deterministic iteration in
// tests and diagnostics.
func (idx *Index) sortedColumnKeys() []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := append([]string(nil), idx.order...)
	sort.Strings(out)
	return out
}
