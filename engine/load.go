package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/minio/highwayhash"

	"breachline/engine/enginerr"
	"breachline/internal/annotation"
	"breachline/internal/batchstore"
	"breachline/internal/column"
	"breachline/internal/csvstream"
	"breachline/internal/fuzzy"
	"breachline/internal/rowindex"
	"breachline/internal/typeinfer"
)

// fingerprintHashKey is a fixed 32-byte highwayhash key — fine here
// since the hash is used only as a content fingerprint, not for
// anything security-sensitive.
var fingerprintHashKey = [32]byte{
	0x0f, 0x1e, 0x2d, 0x3c, 0x4b, 0x5a, 0x69, 0x78,
	0x87, 0x96, 0xa5, 0xb4, 0xc3, 0xd2, 0xe1, 0xf0,
	0x10, 0x21, 0x32, 0x43, 0x54, 0x65, 0x76, 0x87,
	0x98, 0xa9, 0xba, 0xcb, 0xdc, 0xed, 0xfe, 0x0f,
}

// fingerprintPrefixBytes bounds how much of the file highwayhash reads
// before falling back to (name, size, mtime) alone: hashing the whole
// file would defeat streaming semantics for very large inputs, so only
// a bounded leading prefix feeds the content hash.
const fingerprintPrefixBytes = 4 << 20

// contentFingerprint hashes up to fingerprintPrefixBytes of f using
// highwayhash via io.Copy.
func contentFingerprint(f *os.File) (string, error) {
	hash, err := highwayhash.New(fingerprintHashKey[:])
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hash, io.LimitReader(f, fingerprintPrefixBytes)); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// datasetKey derives the private-filesystem directory name a
// fingerprint's spill state lives under.
func datasetKey(fp Fingerprint, contentHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%s", fp.FileName, fp.FileSize, fp.LastModified, contentHash)))
	return hex.EncodeToString(sum[:16])
}

// LoadFile opens req.Path, clears all existing dataset state, and
// streams the file through the parser wired to the batch store,
// row-offset index, and fuzzy index, per §4.11. Ingestion runs
// synchronously on the calling goroutine; callers that want it
// backgrounded run LoadFile in their own goroutine, per §5's
// suspension-point model (this facade has no internal worker pool to
// preserve the single-active-dataset invariant cleanly).
func (e *Engine) LoadFile(req LoadFileRequest, cb LoadFileCallbacks) error {
	gen := atomic.AddUint64(&e.loadGen, 1)

	e.mu.Lock()
	if e.ds != nil && e.ds.annots != nil {
		e.ds.annots.PersistTags()
	}
	e.ds = nil
	e.mu.Unlock()

	f, err := os.Open(req.Path)
	if err != nil {
		cb.fireError(enginerr.IOErrorf(err, "opening %q", req.Path))
		return enginerr.IOErrorf(err, "opening %q", req.Path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		cb.fireError(enginerr.IOErrorf(err, "statting %q", req.Path))
		return enginerr.IOErrorf(err, "statting %q", req.Path)
	}

	contentHash, err := contentFingerprint(f)
	if err != nil {
		cb.fireError(enginerr.IOErrorf(err, "fingerprinting %q", req.Path))
		return enginerr.IOErrorf(err, "fingerprinting %q", req.Path)
	}

	fp := Fingerprint{FileName: info.Name(), FileSize: info.Size(), LastModified: info.ModTime().UnixMilli()}
	key := datasetKey(fp, contentHash)

	datasetDir, err := e.capability.GetDirectory(key)
	if err != nil {
		cb.fireError(enginerr.IOErrorf(err, "opening dataset directory"))
		return enginerr.IOErrorf(err, "opening dataset directory")
	}

	reader, err := wrapDecompressingReader(f, req.Path)
	if err != nil {
		cb.fireError(err)
		return err
	}

	e.mu.RLock()
	maxTokens := e.prefs.FuzzyMaxTokensPerColumn
	maxBytes := int(e.prefs.FuzzyMaxApproxBytes)
	cacheSize := e.prefs.BatchCacheSize
	checkpointInterval := req.CheckpointInterval
	if checkpointInterval <= 0 {
		checkpointInterval = e.prefs.RowIndexCheckpointInterval
	}
	debounceMs := e.prefs.AnnotationAutosaveDebounceMS
	ceilingMs := e.prefs.AnnotationAutosaveCeilingMS
	e.mu.RUnlock()

	fuzzyIdx := fuzzy.NewIndex(maxTokens, maxBytes)

	var reusedSnapshot *fuzzy.Snapshot
	if snap, ok, err := fuzzy.LoadSnapshot(datasetDir); err == nil && ok && snap.MatchesFingerprint(fp, info.Size()) {
		fuzzyIdx = fuzzy.FromSnapshot(snap)
		reusedSnapshot = &snap
	}

	batchStore := batchstore.New(datasetDir, cacheSize, e.log)
	rowIdx := rowindex.New(datasetDir, "row-index.bin", e.log)
	annots := annotation.New(datasetDir, "tags.json", time.Duration(debounceMs)*time.Millisecond, time.Duration(ceilingMs)*time.Millisecond, e.log)
	if err := annots.LoadTags(); err != nil {
		e.log.Warn().Err(err).Msg("loading tags failed")
	}

	ds := &dataset{
		key:         key,
		fingerprint: fp,
		fileSize:    info.Size(),
		batchStore:  batchStore,
		rowIndex:    rowIdx,
		fuzzyIdx:    fuzzyIdx,
		fuzzySnap:   reusedSnapshot,
		annots:      annots,
		columnTypes: make(map[string]column.Type),
		columnInfer: make(map[string]typeinfer.Resolution),
	}

	observeFuzzy := reusedSnapshot == nil
	var batchesStored int

	parser := csvstream.New(csvstream.Callbacks{
		OnHeader: func(columns []string) {
			ds.header = columns
			if cb.OnStart != nil {
				cb.OnStart(columns)
			}
		},
		OnBatch: func(batch *column.Batch) {
			if atomic.LoadUint64(&e.loadGen) != gen {
				return
			}
			for name, t := range batch.ColumnTypes {
				ds.columnTypes[name] = t
			}
			if err := batchStore.StoreBatch(batch); err != nil {
				e.log.Error().Err(err).Msg("storing batch failed")
				cb.fireError(enginerr.IOErrorf(err, "storing batch"))
				return
			}
			if observeFuzzy {
				observeBatchForFuzzy(fuzzyIdx, batch)
			}
			batchesStored++
			ds.mu.Lock()
			ds.totalRows = batchStore.TotalRows()
			ds.bytesParsed = batch.BytesParsed
			ds.eof = batch.EOF
			ds.mu.Unlock()
			if cb.OnBatch != nil {
				cb.OnBatch(batch)
			}
			if cb.OnProgress != nil {
				cb.OnProgress(ProgressUpdate{
					RowsParsed:    batch.RowsParsed,
					BytesParsed:   batch.BytesParsed,
					BatchesStored: batchesStored,
				})
			}
		},
		OnCheckpoint: func(cp csvstream.Checkpoint) {
			if err := rowIdx.Record(cp.RowIndex, uint32(cp.ByteOffset)); err != nil {
				e.log.Warn().Err(err).Msg("recording checkpoint failed")
			}
		},
		OnComplete: func(stats csvstream.Stats) {
			if atomic.LoadUint64(&e.loadGen) != gen {
				return
			}
			if observeFuzzy {
				fuzzyIdx.Finalize()
			}
			if err := rowIdx.Finalize(rowindex.Summary{
				CheckpointInterval: uint32(checkpointInterval),
				RowCount:           uint32(stats.RowsParsed),
				BytesParsed:        uint32(stats.BytesParsed),
			}); err != nil {
				e.log.Warn().Err(err).Msg("finalizing row index failed")
			}
			if observeFuzzy {
				snap := fuzzyIdx.Snapshot(int(stats.RowsParsed), stats.BytesParsed, fp)
				if err := fuzzy.PersistSnapshot(datasetDir, snap); err != nil {
					e.log.Warn().Err(err).Msg("persisting fuzzy snapshot failed")
				}
			}
			if cb.OnComplete != nil {
				cb.OnComplete(Summary{
					RowsParsed:  stats.RowsParsed,
					BytesParsed: stats.BytesParsed,
					TotalRows:   batchStore.TotalRows(),
				})
			}
		},
	}, csvstream.Options{
		Delimiter:          req.Delimiter,
		BatchSize:          req.BatchSize,
		CheckpointInterval: checkpointInterval,
		Loc:                req.Timezone,
	}).WithLogger(e.log)

	if err := parser.Parse(reader); err != nil {
		rowIdx.Abort()
		parseErr := enginerr.ParseErrorf(err, "parsing %q", req.Path)
		cb.fireError(parseErr)
		return parseErr
	}

	e.mu.Lock()
	if atomic.LoadUint64(&e.loadGen) == gen {
		e.ds = ds
	}
	e.mu.Unlock()

	return nil
}

// observeBatchForFuzzy folds every string-column cell in batch into
// the fuzzy index, per §4.6's per-column token inventory.
func observeBatchForFuzzy(idx *fuzzy.Index, batch *column.Batch) {
	for _, name := range batch.ColumnOrder {
		col := batch.Columns[name]
		if col.Type != column.TypeString {
			continue
		}
		n := col.String.Len()
		for i := 0; i < n; i++ {
			idx.Observe(name, col.String.Value(i))
		}
	}
}

func (cb LoadFileCallbacks) fireError(err error) {
	if cb.OnError == nil {
		return
	}
	name := "Error"
	if ee, ok := err.(*enginerr.Error); ok {
		name = string(ee.Kind)
	}
	cb.OnError(ErrorInfo{Message: err.Error(), Name: name})
}
