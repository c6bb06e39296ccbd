// Package batchstore implements C3: the columnar batch store. Stored
// batches are cached in-memory under a bounded LRU (following
// app/cache/cache.go's eviction-list shape) and spill to the
// persistence capability (internal/store) once evicted, using the
// on-disk row-batch format from §6.
package batchstore

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"breachline/internal/column"
	"breachline/internal/store"
)

// DefaultCacheSize is the default number of batches kept resident,
// per §4.3 "default 4 entries".
const DefaultCacheSize = 4

// meta locates one stored batch without requiring it to be resident.
type meta struct {
	rowStart uint32
	rowCount uint32
}

// Store is the C3 batch store: a memory-first, disk-backed LRU of
// column batches addressed by row-id.
type Store struct {
	mu sync.Mutex

	dataset   store.Dataset
	cacheSize int

	metas  []meta // append-only, sorted by rowStart
	lru    *lruList
	cached map[uint32]*column.Batch // batch index -> resident batch

	log zerolog.Logger
}

// New creates a batch store backed by dataset, a scoped persistence
// capability (see internal/store), with cacheSize resident batches
// (DefaultCacheSize if <= 0).
func New(dataset store.Dataset, cacheSize int, log zerolog.Logger) *Store {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Store{
		dataset:   dataset,
		cacheSize: cacheSize,
		lru:       newLRUList(),
		cached:    make(map[uint32]*column.Batch),
		log:       log.With().Str("component", "batchstore").Logger(),
	}
}

// StoreBatch appends batch (must be the next contiguous row-id range)
// to the store, keeping it resident and evicting the oldest resident
// batch if the cache is now over capacity.
func (s *Store) StoreBatch(batch *column.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := uint32(len(s.metas))
	if idx > 0 {
		last := s.metas[idx-1]
		if batch.RowStart != last.rowStart+last.rowCount {
			return fmt.Errorf("batchstore: non-contiguous batch: got rowStart=%d, want %d", batch.RowStart, last.rowStart+last.rowCount)
		}
	} else if batch.RowStart != 0 {
		return fmt.Errorf("batchstore: first batch must start at row 0, got %d", batch.RowStart)
	}

	s.metas = append(s.metas, meta{rowStart: batch.RowStart, rowCount: batch.RowCount})
	s.cached[idx] = batch
	s.lru.AddToFront(idx)

	return s.evictOverflowLocked()
}

func (s *Store) evictOverflowLocked() error {
	for s.lru.Size() > s.cacheSize {
		idx, ok := s.lru.RemoveOldest()
		if !ok {
			break
		}
		batch := s.cached[idx]
		delete(s.cached, idx)
		if s.dataset == nil {
			// Memory-only fallback with no spill target: losing the batch
			// here means a later read for these rows fails per §4.3's
			// documented memory-only eviction failure.
			continue
		}
		if err := s.spill(idx, batch); err != nil {
			s.log.Warn().Err(err).Uint32("batch", idx).Msg("spill failed")
			return err
		}
	}
	return nil
}

func (s *Store) spill(idx uint32, batch *column.Batch) error {
	encoded, err := encodeBatch(batch)
	if err != nil {
		return err
	}
	return s.dataset.WriteAtomic(batchFileName(idx), bytes.NewReader(encoded))
}

func batchFileName(idx uint32) string {
	return fmt.Sprintf("batch-%08d.bin", idx)
}

// TotalRows is lastMeta.rowStart + lastMeta.rowCount, or 0 if empty.
func (s *Store) TotalRows() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.metas) == 0 {
		return 0
	}
	last := s.metas[len(s.metas)-1]
	return last.rowStart + last.rowCount
}

// Clear drops all in-memory and spilled state, for a fresh load.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas = nil
	s.cached = make(map[uint32]*column.Batch)
	s.lru = newLRUList()
	if s.dataset == nil {
		return nil
	}
	names, err := s.dataset.Iterate("batch-*.bin")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.dataset.Remove(name); err != nil {
			return err
		}
	}
	return nil
}

// batchIndexForRow finds the batch index whose [rowStart,
// rowStart+rowCount) range contains row, via binary search over metas
// (sorted by rowStart since batches are appended in order), per §9.
func (s *Store) batchIndexForRow(row uint32) (uint32, bool) {
	i := sort.Search(len(s.metas), func(i int) bool {
		return s.metas[i].rowStart+s.metas[i].rowCount > row
	})
	if i >= len(s.metas) || row < s.metas[i].rowStart {
		return 0, false
	}
	return uint32(i), true
}

// getBatch returns the resident batch at idx, loading it from disk
// (promoting it to most-recently-used and evicting if needed) if it
// isn't cached.
func (s *Store) getBatch(idx uint32) (*column.Batch, error) {
	if b, ok := s.cached[idx]; ok {
		s.lru.MoveToFront(idx)
		return b, nil
	}
	if s.dataset == nil {
		return nil, fmt.Errorf("batchstore: batch %d not resident and no spill backend configured", idx)
	}

	r, err := s.dataset.Get(batchFileName(idx))
	if err != nil {
		return nil, fmt.Errorf("batchstore: batch %d evicted and not found on disk: %w", idx, err)
	}
	defer r.Close()

	batch, err := decodeBatch(r)
	if err != nil {
		return nil, err
	}
	batch.RowStart = s.metas[idx].rowStart
	batch.RowCount = s.metas[idx].rowCount

	s.cached[idx] = batch
	s.lru.AddToFront(idx)
	return batch, s.evictOverflowLocked()
}

// MaterializeRows decodes and returns rows for ids, in the caller's
// order, per §4.3's read path and §8's order-preserving invariant.
func (s *Store) MaterializeRows(ids []uint32) ([]column.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]column.Row, len(ids))
	batchCache := make(map[uint32]*column.Batch)

	for i, id := range ids {
		idx, ok := s.batchIndexForRow(id)
		if !ok {
			return nil, fmt.Errorf("batchstore: row id %d out of range", id)
		}
		batch, ok := batchCache[idx]
		if !ok {
			var err error
			batch, err = s.getBatch(idx)
			if err != nil {
				return nil, err
			}
			batchCache[idx] = batch
		}
		offset := int(id - batch.RowStart)
		rows[i] = materializeRow(batch, offset, id)
	}
	return rows, nil
}

// MaterializeRange materializes the contiguous row-id window
// [offset, offset+limit) clipped to totalRows.
func (s *Store) MaterializeRange(offset, limit uint32) ([]column.Row, error) {
	total := s.TotalRows()
	if offset >= total {
		return nil, nil
	}
	end := offset + limit
	if end > total || limit == 0 {
		end = total
	}
	ids := make([]uint32, 0, end-offset)
	for id := offset; id < end; id++ {
		ids = append(ids, id)
	}
	return s.MaterializeRows(ids)
}

// IterateMaterializedBatches calls fn with every stored batch in
// row-id order, loading from disk as needed. Iteration stops (without
// error) if fn returns false.
func (s *Store) IterateMaterializedBatches(fn func(batch *column.Batch) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx := uint32(0); idx < uint32(len(s.metas)); idx++ {
		batch, err := s.getBatch(idx)
		if err != nil {
			return err
		}
		if !fn(batch) {
			return nil
		}
	}
	return nil
}

func materializeRow(batch *column.Batch, offset int, id uint32) column.Row {
	values := make(map[string]any, len(batch.ColumnOrder))
	for _, name := range batch.ColumnOrder {
		col := batch.Columns[name]
		if col.IsNull(offset) {
			values[name] = nil
			continue
		}
		switch col.Type {
		case column.TypeString:
			values[name] = col.String.Value(offset)
		case column.TypeNumber:
			values[name] = col.Number.Values[offset]
		case column.TypeBoolean:
			values[name] = col.Boolean.Value(offset)
		case column.TypeDatetime:
			values[name] = col.Datetime.Millis[offset]
		}
	}
	return column.Row{RowID: id, Values: values}
}
