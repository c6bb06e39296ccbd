package engine

import (
	"breachline/engine/enginerr"
	"breachline/internal/filter"
	"breachline/internal/fuzzy"
)

// fuzzyLookupAdapter satisfies filter.FuzzyLookup over a *fuzzy.Index,
// translating the fuzzy package's own Suggestion shape into the
// filter package's, without the fuzzy package importing filter.
type fuzzyLookupAdapter struct {
	idx *fuzzy.Index
}

func (a *fuzzyLookupAdapter) Suggest(columnKey, query string, maxDistance, limit int) []filter.FuzzySuggestion {
	suggestions := a.idx.SuggestColumn(columnKey, query, maxDistance, limit)
	out := make([]filter.FuzzySuggestion, len(suggestions))
	for i, s := range suggestions {
		out[i] = filter.FuzzySuggestion{Token: s.Token, Distance: s.Distance}
	}
	return out
}

// GetFuzzyIndexSnapshot exports the active dataset's fuzzy index as a
// persistable/exportable snapshot, per §4.6/§6.
func (e *Engine) GetFuzzyIndexSnapshot() (fuzzy.Snapshot, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return fuzzy.Snapshot{}, err
	}
	ds.mu.Lock()
	rowCount := int(ds.totalRows)
	bytesParsed := ds.bytesParsed
	ds.mu.Unlock()
	return ds.fuzzyIdx.Snapshot(rowCount, bytesParsed, ds.fingerprint), nil
}

// PersistFuzzyIndexSnapshot writes the active dataset's fuzzy index
// snapshot to its spill directory, per §6.
func (e *Engine) PersistFuzzyIndexSnapshot() error {
	ds, err := e.requireDataset()
	if err != nil {
		return err
	}
	snap, err := e.GetFuzzyIndexSnapshot()
	if err != nil {
		return err
	}
	dataset, err := e.capability.GetDirectory(ds.key)
	if err != nil {
		return enginerr.IOErrorf(err, "opening dataset directory")
	}
	if err := fuzzy.PersistSnapshot(dataset, snap); err != nil {
		return enginerr.IOErrorf(err, "persisting fuzzy snapshot")
	}
	return nil
}

// ClearFuzzyIndexSnapshot removes a persisted fuzzy snapshot for the
// active dataset, if any, per §6.
func (e *Engine) ClearFuzzyIndexSnapshot() error {
	ds, err := e.requireDataset()
	if err != nil {
		return err
	}
	dataset, err := e.capability.GetDirectory(ds.key)
	if err != nil {
		return enginerr.IOErrorf(err, "opening dataset directory")
	}
	if err := fuzzy.ClearSnapshot(dataset); err != nil {
		return enginerr.IOErrorf(err, "clearing fuzzy snapshot")
	}
	return nil
}
