// Package engine implements C11: the facade that holds the single
// active dataset's state and exposes the transport-agnostic request
// surface of spec.md §6, wiring the streaming parser, batch store,
// row-offset index, fuzzy index, and annotation store together and
// orchestrating ingestion.
package engine

import (
	"time"

	"breachline/internal/annotation"
	"breachline/internal/column"
	"breachline/internal/filter"
	"breachline/internal/fuzzy"
	"breachline/internal/group"
	"breachline/internal/rowindex"
	"breachline/internal/search"
	"breachline/internal/sortengine"
)

// Options configures the engine, per §6's init(options).
type Options struct {
	ChunkSize             int
	EnableFastGroupEngine bool
	DebugLogging          bool
	SlowBatchThresholdMs  int
}

// Fingerprint identifies a source file for cache-reuse decisions
// (fuzzy index, annotations), per §3/§6.
type Fingerprint = fuzzy.Fingerprint

// LoadFileRequest configures one loadFile call, per §6.
type LoadFileRequest struct {
	Path               string
	Delimiter          byte // 0 means autodetect
	BatchSize          int
	CheckpointInterval int
	Timezone           *time.Location
}

// LoadFileCallbacks is the ordered ingestion callback set of §6/§5.
type LoadFileCallbacks struct {
	OnStart    func(columns []string)
	OnBatch    func(batch *column.Batch)
	OnProgress func(ProgressUpdate)
	OnComplete func(Summary)
	OnError    func(ErrorInfo)
}

// ProgressUpdate is delivered to OnProgress as ingestion advances.
type ProgressUpdate struct {
	RowsParsed    int64
	BytesParsed   int64
	BatchesStored int
}

// Summary is delivered once to OnComplete when ingestion finishes.
type Summary struct {
	RowsParsed  int64
	BytesParsed int64
	TotalRows   uint32
}

// ErrorInfo is delivered to OnError when loadFile fails.
type ErrorInfo struct {
	Message string
	Name    string
}

// FetchRowsRequest requests a materialized window of the unfiltered
// dataset, per §6.
type FetchRowsRequest struct {
	Offset uint32
	Limit  uint32
}

// RowsResult is the common shape returned by fetchRows/applyFilter/
// applySorts/fetchRowsByIds: a materialized row window plus the
// dataset- and query-level row counts.
type RowsResult struct {
	Rows        []map[string]any
	TotalRows   int
	MatchedRows int
}

// ApplyFilterRequest requests filtered + paginated rows, per §4.5/§6.
// A nil Expression clears any active filter.
type ApplyFilterRequest struct {
	Expression *filter.Node
	Offset     uint32
	Limit      uint32
}

// ApplyFilterResult is applyFilter's response, per §4.5/§6.
type ApplyFilterResult struct {
	Rows                 []map[string]any
	TotalRows            int
	MatchedRows          int
	Expression           *filter.Node
	FuzzyUsed            []filter.FuzzyUsed
	PredicateMatchCounts map[string]int
}

// ApplySortsRequest requests a (possibly progressive) multi-key sort
// of the active row set, per §4.7/§6.
type ApplySortsRequest struct {
	Sorts       []sortengine.Key
	Offset      uint32
	Limit       uint32
	Progressive bool
	VisibleRows int
}

// ApplySortsResult is applySorts' response, per §4.7/§6.
type ApplySortsResult struct {
	Rows           []map[string]any
	TotalRows      int
	MatchedRows    int
	Sorts          []sortengine.Key
	SortComplete   bool
	SortedRowCount int
}

// GroupByRequest is a passthrough of the C9 request shape.
type GroupByRequest = group.Request

// GroupByRow is one output group with the §4.9 "singleton or list"
// key collapse applied.
type GroupByRow struct {
	Key        any
	RowCount   int
	Aggregates map[string]any
}

// GroupByResult is groupBy's response, per §4.9/§6.
type GroupByResult struct {
	Rows        []GroupByRow
	TotalGroups int
	TotalRows   int
}

// GlobalSearchRequest is a passthrough of the C8 request shape.
type GlobalSearchRequest = search.Request

// GlobalSearchResult is a passthrough of the C8 result shape.
type GlobalSearchResult = search.Result

// TagRowsRequest is one tagRows call, per §4.10/§6. Mode governs how
// LabelIDs combines with each row's existing label set; Note, if
// non-nil, replaces the row's note regardless of Mode.
type TagRowsRequest struct {
	RowIDs   []uint32
	LabelIDs []string
	Note     *string
	Mode     TagMode
}

// TagMode is one of replace/append/remove, per §4.10.
type TagMode string

const (
	TagModeReplace TagMode = "replace"
	TagModeAppend  TagMode = "append"
	TagModeRemove  TagMode = "remove"
)

// ImportTagsRequest is one importTags call, per §4.10/§6.
type ImportTagsRequest struct {
	Labels        []annotation.Label
	Rows          []annotation.RowAnnotation
	MergeStrategy string // "merge" or "replace"
}

// SeekRowsRequest is one seekRows call, per §4.4/§6.
type SeekRowsRequest struct {
	StartRow uint32
	RowCount uint32
}

// SeekRowsResult is seekRows' response, per §4.4/§6.
type SeekRowsResult struct {
	Nearest  rowindex.Entry
	Interior []rowindex.Entry
	OK       bool
}
