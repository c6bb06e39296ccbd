// Package rowindex implements C4: the periodic row-offset checkpoint
// index persisted alongside a source file, per §4.4/§6. The on-disk
// layout is a flat little-endian uint32 array with no JSON envelope,
// unlike the batch/annotation/fuzzy formats — grounded in the spec's
// own §6 "Row-index file" layout since no example repo in the pack
// persists a comparable fixed-width checkpoint table.
package rowindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"breachline/internal/store"
)

const indexVersion = 1

// Entry is one (rowIndex, byteOffset) checkpoint.
type Entry struct {
	RowIndex   uint32
	ByteOffset uint32
}

// Summary is the ingestion-side tally finalize persists alongside the
// checkpoint entries.
type Summary struct {
	CheckpointInterval uint32
	RowCount           uint32
	BytesParsed        uint32
}

// Index accumulates checkpoints during ingestion and persists them to
// the dataset's row-index file.
type Index struct {
	dataset  store.Dataset
	fileName string
	entries  []Entry
	log      zerolog.Logger
}

// New creates a row-offset index writer scoped to dataset, writing to
// fileName (the engine facade uses "row-index.bin" inside the
// dataset's own directory).
func New(dataset store.Dataset, fileName string, log zerolog.Logger) *Index {
	return &Index{
		dataset:  dataset,
		fileName: fileName,
		log:      log.With().Str("component", "rowindex").Logger(),
	}
}

// Record buffers one checkpoint in memory. Entries must be supplied in
// strictly increasing (rowIndex, byteOffset) order; out-of-order
// checkpoints are rejected since the on-disk format and the binary
// search lookups both require monotonicity.
func (idx *Index) Record(rowIndex, byteOffset uint32) error {
	if n := len(idx.entries); n > 0 {
		last := idx.entries[n-1]
		if rowIndex <= last.RowIndex || byteOffset <= last.ByteOffset {
			return fmt.Errorf("rowindex: checkpoint (%d,%d) not strictly after (%d,%d)", rowIndex, byteOffset, last.RowIndex, last.ByteOffset)
		}
	}
	idx.entries = append(idx.entries, Entry{RowIndex: rowIndex, ByteOffset: byteOffset})
	return nil
}

// Finalize atomically overwrites the row-index file with every
// buffered entry and the supplied summary.
func (idx *Index) Finalize(summary Summary) error {
	if idx.dataset == nil {
		return nil
	}
	encoded := encode(summary, idx.entries)
	return idx.dataset.WriteAtomic(idx.fileName, bytes.NewReader(encoded))
}

// Abort discards buffered entries without touching any prior
// on-disk contents ("truncate then close" per §4.4 — here, simply
// never calling WriteAtomic).
func (idx *Index) Abort() {
	idx.entries = nil
}

// Entries returns the buffered (not yet necessarily persisted)
// checkpoints, for tests and for seek before finalize.
func (idx *Index) Entries() []Entry {
	return idx.entries
}

func encode(summary Summary, entries []Entry) []byte {
	buf := make([]byte, 4*5+8*len(entries))
	binary.LittleEndian.PutUint32(buf[0:], indexVersion)
	binary.LittleEndian.PutUint32(buf[4:], summary.CheckpointInterval)
	binary.LittleEndian.PutUint32(buf[8:], summary.RowCount)
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(entries)))
	binary.LittleEndian.PutUint32(buf[16:], summary.BytesParsed)
	off := 20
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:], e.RowIndex)
		binary.LittleEndian.PutUint32(buf[off+4:], e.ByteOffset)
		off += 8
	}
	return buf
}

// Decode parses a persisted row-index file.
func Decode(r io.Reader) (Summary, []Entry, error) {
	header := make([]byte, 20)
	if _, err := io.ReadFull(r, header); err != nil {
		return Summary{}, nil, err
	}
	version := binary.LittleEndian.Uint32(header[0:])
	if version != indexVersion {
		return Summary{}, nil, fmt.Errorf("rowindex: unsupported version %d", version)
	}
	summary := Summary{
		CheckpointInterval: binary.LittleEndian.Uint32(header[4:]),
		RowCount:           binary.LittleEndian.Uint32(header[8:]),
		BytesParsed:        binary.LittleEndian.Uint32(header[16:]),
	}
	entryCount := binary.LittleEndian.Uint32(header[12:])

	body := make([]byte, 8*entryCount)
	if _, err := io.ReadFull(r, body); err != nil {
		return Summary{}, nil, err
	}
	entries := make([]Entry, entryCount)
	for i := range entries {
		entries[i] = Entry{
			RowIndex:   binary.LittleEndian.Uint32(body[i*8:]),
			ByteOffset: binary.LittleEndian.Uint32(body[i*8+4:]),
		}
	}
	return summary, entries, nil
}

// FindNearestCheckpoint returns the greatest entry with
// rowIndex <= targetRow, via binary search, or false if entries is
// empty or every entry is after targetRow.
func FindNearestCheckpoint(entries []Entry, targetRow uint32) (Entry, bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].RowIndex > targetRow
	})
	if i == 0 {
		return Entry{}, false
	}
	return entries[i-1], true
}

// Seek returns the checkpoint at or before startRow, plus every
// checkpoint strictly inside [startRow, startRow+rowCount), per §4.4.
func Seek(entries []Entry, startRow, rowCount uint32) (nearest Entry, interior []Entry, ok bool) {
	nearest, ok = FindNearestCheckpoint(entries, startRow)
	if !ok {
		return Entry{}, nil, false
	}
	end := startRow + rowCount
	lo := sort.Search(len(entries), func(i int) bool { return entries[i].RowIndex > startRow })
	for i := lo; i < len(entries) && entries[i].RowIndex < end; i++ {
		interior = append(interior, entries[i])
	}
	return nearest, interior, true
}
