// Package search implements C8: substring (and short-query fuzzy)
// search across visible columns honoring an optional filter, per
// §4.8. Cancellation via context.Context follows the same cancelable
// search-state shape as app/app_search.go's searchState/ctx.
package search

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"breachline/internal/column"
	"breachline/internal/filter"
	"breachline/internal/fuzzy"
)

// DefaultLimit is §4.8's "Stop once matched.length == limit (default 500)".
const DefaultLimit = 500

// maxFuzzyQueryLength is §4.8's "len(needle) <= 10" short-query fuzzy gate.
const maxFuzzyQueryLength = 10

// Request configures one global search call.
type Request struct {
	Query         string
	Columns       []string
	Filter        filter.Node
	HasFilter     bool
	Limit         int
	CaseSensitive bool
}

// Result is the search outcome.
type Result struct {
	RowIDs      []uint32
	TotalRows   int
	MatchedRows int
}

// Search iterates batches in row-id order via source, applying filter
// (if present) to pre-restrict, then substring- and, for short
// queries, bounded-edit-distance-matching req.Columns, per §4.8.
func Search(ctx context.Context, req Request, batches func(func(*column.Batch) bool), filterCtx filter.Context) Result {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	needle := normalizeQuery(req.Query, req.CaseSensitive)
	var matched []uint32
	total := 0

	tryFuzzy := utf8.RuneCountInString(needle) <= maxFuzzyQueryLength && utf8.RuneCountInString(needle) > 0

	batches(func(batch *column.Batch) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		var mask []byte
		if req.HasFilter {
			mask = filter.Evaluate(req.Filter, batch, filterCtx).Mask
		}

		n := int(batch.RowCount)
		for i := 0; i < n; i++ {
			if mask != nil && mask[i] == 0 {
				continue
			}
			total++
			rowID := batch.RowStart + uint32(i)

			if rowMatches(batch, i, req.Columns, needle, req.CaseSensitive, tryFuzzy) {
				matched = append(matched, rowID)
				if len(matched) >= limit {
					return false
				}
			}
		}
		return true
	})

	return Result{RowIDs: matched, TotalRows: total, MatchedRows: len(matched)}
}

func normalizeQuery(q string, caseSensitive bool) string {
	q = strings.TrimSpace(norm.NFC.String(q))
	if !caseSensitive {
		q = strings.ToLower(q)
	}
	return q
}

func rowMatches(batch *column.Batch, rowOffset int, columns []string, needle string, caseSensitive, tryFuzzy bool) bool {
	if needle == "" {
		return false
	}

	var fuzzyCandidates []string
	for _, colName := range columns {
		col, ok := batch.Columns[colName]
		if !ok || col.Type != column.TypeString || col.IsNull(rowOffset) {
			continue
		}
		value := col.String.Value(rowOffset)
		normalized := normalizeQuery(value, caseSensitive)
		if strings.Contains(normalized, needle) {
			return true
		}
		if tryFuzzy {
			fuzzyCandidates = append(fuzzyCandidates, normalized)
		}
	}

	for _, candidate := range fuzzyCandidates {
		if _, ok := fuzzy.BoundedDistance(candidate, needle, fuzzy.DefaultMaxDistance); ok {
			return true
		}
	}
	return false
}
