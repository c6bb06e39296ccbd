package engine

import (
	"os"

	"breachline/engine/enginerr"
	"breachline/internal/rowindex"
)

// LoadRowIndex decodes a standalone row-index file from disk, per
// §4.4/§6 (used to inspect a checkpoint file independent of an active
// load, e.g. for diagnostics).
func LoadRowIndex(path string) (rowindex.Summary, []rowindex.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return rowindex.Summary{}, nil, enginerr.IOErrorf(err, "opening row index %q", path)
	}
	defer f.Close()

	summary, entries, err := rowindex.Decode(f)
	if err != nil {
		return rowindex.Summary{}, nil, enginerr.ParseErrorf(err, "decoding row index %q", path)
	}
	return summary, entries, nil
}

// SeekRows finds the checkpoint nearest req.StartRow, plus every
// checkpoint strictly inside the requested window, for the active
// dataset's row index, per §4.4/§6.
func (e *Engine) SeekRows(req SeekRowsRequest) (SeekRowsResult, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return SeekRowsResult{}, err
	}
	nearest, interior, ok := rowindex.Seek(ds.rowIndex.Entries(), req.StartRow, req.RowCount)
	return SeekRowsResult{Nearest: nearest, Interior: interior, OK: ok}, nil
}
