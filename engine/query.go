package engine

import (
	"context"

	"breachline/engine/enginerr"
	"breachline/internal/column"
	"breachline/internal/filter"
	"breachline/internal/group"
	"breachline/internal/search"
	"breachline/internal/sortengine"
)

// filterState is the active filter's compiled form plus the row-id
// set and fuzzy-salvage metadata it last produced, per §4.5/§6.
type filterState struct {
	node      filter.Node
	hasFilter bool
	rowIDs    []uint32
	fuzzyUsed []filter.FuzzyUsed
}

// activeRowIDs returns the row-id set the current filter (if any)
// restricts queries to; nil means "the unfiltered dataset".
func (ds *dataset) activeRowIDs() []uint32 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.filterState == nil || !ds.filterState.hasFilter {
		return nil
	}
	return ds.filterState.rowIDs
}

// filterContext builds the filter.Context the predicate tree needs
// for tag-column and fuzzy-salvage evaluation.
func (ds *dataset) filterContext() filter.Context {
	ctx := filter.Context{}
	if ds.annots != nil {
		ctx.Tags = ds.annots
	}
	if ds.fuzzyIdx != nil {
		ctx.Fuzzy = &fuzzyLookupAdapter{idx: ds.fuzzyIdx}
	}
	return ctx
}

// FetchRows returns a materialized window of the unfiltered dataset,
// per §6.
func (e *Engine) FetchRows(req FetchRowsRequest) (RowsResult, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return RowsResult{}, err
	}

	rows, err := ds.batchStore.MaterializeRange(req.Offset, req.Limit)
	if err != nil {
		return RowsResult{}, enginerr.IOErrorf(err, "fetching rows")
	}
	total := int(ds.batchStore.TotalRows())
	return RowsResult{
		Rows:        rowsToAPI(rows, ds.columnTypes),
		TotalRows:   total,
		MatchedRows: total,
	}, nil
}

// FetchRowsByIds materializes exactly the rows named in ids, in the
// given order, per §6.
func (e *Engine) FetchRowsByIds(ids []uint32) (RowsResult, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return RowsResult{}, err
	}
	rows, err := ds.batchStore.MaterializeRows(ids)
	if err != nil {
		return RowsResult{}, enginerr.IOErrorf(err, "fetching rows by id")
	}
	total := int(ds.batchStore.TotalRows())
	return RowsResult{
		Rows:        rowsToAPI(rows, ds.columnTypes),
		TotalRows:   total,
		MatchedRows: len(rows),
	}, nil
}

// ApplyFilter evaluates req.Expression against every stored batch,
// caches the resulting row-id set on the dataset, and returns the
// first page, per §4.5/§6. A nil Expression clears the active filter.
func (e *Engine) ApplyFilter(req ApplyFilterRequest) (ApplyFilterResult, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return ApplyFilterResult{}, err
	}

	if req.Expression == nil {
		ds.mu.Lock()
		ds.filterState = nil
		ds.mu.Unlock()
		return e.fetchFilteredPage(ds, nil, req.Offset, req.Limit)
	}

	node := *req.Expression
	ctx := ds.filterContext()
	counts := make(map[string]int)

	var matched []uint32
	var fuzzyUsed []filter.FuzzyUsed
	err = ds.batchStore.IterateMaterializedBatches(func(batch *column.Batch) bool {
		result := filter.Evaluate(node, batch, ctx)
		fuzzyUsed = append(fuzzyUsed, result.FuzzyUsed...)
		n := int(batch.RowCount)
		for i := 0; i < n; i++ {
			if result.Mask[i] == 0 {
				continue
			}
			matched = append(matched, batch.RowStart+uint32(i))
		}
		accumulatePredicateMatchCounts(counts, node, batch, ctx)
		return true
	})
	if err != nil {
		return ApplyFilterResult{}, enginerr.IOErrorf(err, "applying filter")
	}

	ds.mu.Lock()
	ds.filterState = &filterState{node: node, hasFilter: true, rowIDs: matched, fuzzyUsed: fuzzyUsed}
	ds.mu.Unlock()

	page, err := e.fetchFilteredPage(ds, matched, req.Offset, req.Limit)
	if err != nil {
		return ApplyFilterResult{}, err
	}
	return ApplyFilterResult{
		Rows:                 page.Rows,
		TotalRows:            page.TotalRows,
		MatchedRows:          page.MatchedRows,
		Expression:           req.Expression,
		FuzzyUsed:            dedupFuzzyUsed(fuzzyUsed),
		PredicateMatchCounts: counts,
	}, nil
}

func (e *Engine) fetchFilteredPage(ds *dataset, rowIDs []uint32, offset, limit uint32) (ApplyFilterResult, error) {
	if rowIDs == nil {
		res, err := e.FetchRows(FetchRowsRequest{Offset: offset, Limit: limit})
		if err != nil {
			return ApplyFilterResult{}, err
		}
		return ApplyFilterResult{Rows: res.Rows, TotalRows: res.TotalRows, MatchedRows: res.MatchedRows}, nil
	}
	page := paginateIDs(rowIDs, offset, limit)
	rows, err := ds.batchStore.MaterializeRows(page)
	if err != nil {
		return ApplyFilterResult{}, enginerr.IOErrorf(err, "materializing filtered rows")
	}
	total := int(ds.batchStore.TotalRows())
	return ApplyFilterResult{
		Rows:        rowsToAPI(rows, ds.columnTypes),
		TotalRows:   total,
		MatchedRows: len(rowIDs),
	}, nil
}

func paginateIDs(ids []uint32, offset, limit uint32) []uint32 {
	if offset >= uint32(len(ids)) {
		return nil
	}
	end := offset + limit
	if limit == 0 || end > uint32(len(ids)) {
		end = uint32(len(ids))
	}
	return ids[offset:end]
}

// accumulatePredicateMatchCounts walks node's leaves and tallies, per
// leaf, how many rows of batch it alone would pass — the "did this
// clause actually narrow anything" diagnostic of §4.5.
func accumulatePredicateMatchCounts(counts map[string]int, node filter.Node, batch *column.Batch, ctx filter.Context) {
	if node.Predicate != nil {
		leaf := filter.Leaf(*node.Predicate)
		result := filter.Evaluate(leaf, batch, ctx)
		key := predicateKey(*node.Predicate)
		for _, v := range result.Mask {
			if v != 0 {
				counts[key]++
			}
		}
		return
	}
	if node.Composite != nil {
		for _, child := range node.Composite.Children {
			accumulatePredicateMatchCounts(counts, child, batch, ctx)
		}
	}
}

func predicateKey(p filter.Predicate) string {
	return string(p.Operator) + ":" + p.Column + ":" + p.Value
}

func dedupFuzzyUsed(in []filter.FuzzyUsed) []filter.FuzzyUsed {
	seen := make(map[string]bool, len(in))
	out := make([]filter.FuzzyUsed, 0, len(in))
	for _, f := range in {
		key := f.Column + "\x00" + f.Query
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// rowMapSource adapts a pre-materialized row map to sortengine.RowSource.
type rowMapSource struct {
	rows map[uint32]column.Row
}

func (s rowMapSource) Value(rowID uint32, col string) (any, bool) {
	row, ok := s.rows[rowID]
	if !ok {
		return nil, false
	}
	v, ok := row.Values[col]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ApplySorts stably sorts the active row-id set (filtered or full
// dataset) per req.Sorts, optionally in progressive (visible-window-
// first) mode, per §4.7/§6.
func (e *Engine) ApplySorts(req ApplySortsRequest) (ApplySortsResult, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return ApplySortsResult{}, err
	}

	base := ds.activeRowIDs()
	if base == nil {
		total := ds.batchStore.TotalRows()
		base = make([]uint32, total)
		for i := range base {
			base[i] = uint32(i)
		}
	}

	materialized, err := ds.batchStore.MaterializeRows(base)
	if err != nil {
		return ApplySortsResult{}, enginerr.IOErrorf(err, "materializing rows for sort")
	}
	rowMap := make(map[uint32]column.Row, len(materialized))
	for _, r := range materialized {
		rowMap[r.RowID] = r
	}
	source := rowMapSource{rows: rowMap}

	var result sortengine.Result
	var pending *sortengine.Pending
	if req.Progressive {
		result, pending = sortengine.SortRowIDsProgressive(base, ds.columnTypes, req.Sorts, source, req.VisibleRows)
	} else {
		sorted := sortengine.SortRowIDs(base, ds.columnTypes, req.Sorts, source)
		result = sortengine.Result{RowIDs: sorted, SortComplete: true, SortedRowCount: len(sorted)}
	}

	ds.mu.Lock()
	ds.sorts = req.Sorts
	ds.sortedRowIDs = result.RowIDs
	ds.pendingSort = pending
	ds.mu.Unlock()

	page := paginateIDs(result.RowIDs, req.Offset, req.Limit)
	rows, err := ds.batchStore.MaterializeRows(page)
	if err != nil {
		return ApplySortsResult{}, enginerr.IOErrorf(err, "materializing sorted page")
	}

	return ApplySortsResult{
		Rows:           rowsToAPI(rows, ds.columnTypes),
		TotalRows:      int(ds.batchStore.TotalRows()),
		MatchedRows:    len(result.RowIDs),
		Sorts:          req.Sorts,
		SortComplete:   result.SortComplete,
		SortedRowCount: result.SortedRowCount,
	}, nil
}

// CompletePendingSort finishes a deferred progressive sort, if any,
// and caches the fully sorted row-id set, per §4.7's "background
// completion" note.
func (e *Engine) CompletePendingSort() ([]uint32, bool) {
	ds, err := e.requireDataset()
	if err != nil {
		return nil, false
	}
	ds.mu.Lock()
	pending := ds.pendingSort
	ds.mu.Unlock()
	if pending == nil {
		return nil, false
	}
	full := pending.Complete()
	ds.mu.Lock()
	ds.sortedRowIDs = full
	ds.pendingSort = nil
	ds.mu.Unlock()
	return full, true
}

// GroupBy groups the unfiltered dataset (filters are not yet composed
// with group-by per §4.9's Non-goals) by req.GroupBy, per §6.
func (e *Engine) GroupBy(req GroupByRequest) (GroupByResult, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return GroupByResult{}, err
	}

	result := group.GroupBy(req, func(fn func(*column.Batch) bool) {
		ds.batchStore.IterateMaterializedBatches(fn)
	})

	rows := make([]GroupByRow, len(result.Rows))
	for i, r := range result.Rows {
		rows[i] = GroupByRow{
			Key:        collapseGroupKey(r.Key),
			RowCount:   r.RowCount,
			Aggregates: r.Aggregates,
		}
	}
	return GroupByResult{Rows: rows, TotalGroups: result.TotalGroups, TotalRows: result.TotalRows}, nil
}

// collapseGroupKey implements §4.9's "single group-by column yields a
// scalar key, multiple columns yield a list" collapse.
func collapseGroupKey(key []any) any {
	if len(key) == 1 {
		return key[0]
	}
	return key
}

// GlobalSearch runs a substring/fuzzy search across req.Columns,
// honoring req.Filter when req.HasFilter is set, per §4.8/§6.
func (e *Engine) GlobalSearch(ctx context.Context, req GlobalSearchRequest) (GlobalSearchResult, error) {
	ds, err := e.requireDataset()
	if err != nil {
		return GlobalSearchResult{}, err
	}
	result := search.Search(ctx, req, func(fn func(*column.Batch) bool) {
		ds.batchStore.IterateMaterializedBatches(fn)
	}, ds.filterContext())
	return result, nil
}
