// Package fuzzy implements C6: a per-column token inventory with
// trigram posting lists for bounded edit-distance "did you mean"
// suggestions, per §4.6. The posting-list design is grounded in the
// reference pack's trigram indexer (standardbeagle-lci's
// core.TrigramIndex / BucketedTrigramResult, bucketing tokens by
// trigram for fast candidate lookup); token/budget bookkeeping and
// the Damerau-Levenshtein scorer are this engine's own, since no
// example repo builds exactly this per-column budgeted inventory.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxTokensPerColumn is §4.6's "max tokens per column (default 50 000)".
	DefaultMaxTokensPerColumn = 50_000
	// DefaultMaxApproxBytes is §4.6's "max approximate memory (default 32 MB)".
	DefaultMaxApproxBytes = 32 * 1024 * 1024
	// DefaultMaxDistance is §4.6's "threshold maxDistance (default 2)".
	DefaultMaxDistance = 2
	maxTokensPerCell   = 100
	minTokenLength     = 2
)

// tokenEntry tracks one token's frequency; the approximate byte cost
// of all tokens is summed in ColumnBuilder.approxBytes.
type tokenEntry struct {
	token     string
	frequency int
}

// ColumnBuilder accumulates the token inventory for one column while
// rows are ingested.
type ColumnBuilder struct {
	maxTokens int
	maxBytes  int

	tokens       map[string]*tokenEntry
	approxBytes  int
	truncated    bool
}

// NewColumnBuilder creates a builder with the given budgets (defaults
// applied for non-positive values).
func NewColumnBuilder(maxTokens, maxBytes int) *ColumnBuilder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokensPerColumn
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxApproxBytes
	}
	return &ColumnBuilder{
		maxTokens: maxTokens,
		maxBytes:  maxBytes,
		tokens:    make(map[string]*tokenEntry),
	}
}

// Observe tokenizes one cell value and folds its tokens into the
// inventory, per §4.6's "lower-case + NFC-normalize ... split on
// Unicode whitespace and punctuation; drop tokens shorter than 2
// characters; cap at 100 tokens per cell".
func (b *ColumnBuilder) Observe(cell string) {
	tokens := tokenize(cell)
	if len(tokens) > maxTokensPerCell {
		tokens = tokens[:maxTokensPerCell]
	}
	for _, tok := range tokens {
		b.addToken(tok)
	}
}

func (b *ColumnBuilder) addToken(tok string) {
	if e, ok := b.tokens[tok]; ok {
		e.frequency++
		return
	}
	b.tokens[tok] = &tokenEntry{token: tok, frequency: 1}
	b.approxBytes += len(tok) + 24 // rough per-entry overhead estimate

	if len(b.tokens) > b.maxTokens || b.approxBytes > b.maxBytes {
		b.prune()
	}
}

// prune enforces both budgets by keeping the highest-frequency
// tokens, alphabetical tie-break, per §4.6.
func (b *ColumnBuilder) prune() {
	all := make([]*tokenEntry, 0, len(b.tokens))
	for _, e := range b.tokens {
		all = append(all, e)
	}
	sortByFrequencyDesc(all)

	kept := make(map[string]*tokenEntry, b.maxTokens)
	bytes := 0
	for _, e := range all {
		if len(kept) >= b.maxTokens || bytes+len(e.token)+24 > b.maxBytes {
			b.truncated = true
			continue
		}
		kept[e.token] = e
		bytes += len(e.token) + 24
	}
	b.tokens = kept
	b.approxBytes = bytes
}

func sortByFrequencyDesc(entries []*tokenEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].frequency != entries[j].frequency {
			return entries[i].frequency > entries[j].frequency
		}
		return entries[i].token < entries[j].token
	})
}

// tokenize lower-cases, NFC-normalizes, and splits cell on Unicode
// whitespace/punctuation, dropping tokens shorter than minTokenLength.
func tokenize(cell string) []string {
	normalized := norm.NFC.String(strings.ToLower(cell))
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= minTokenLength {
			out = append(out, f)
		}
	}
	return out
}

// Token is one finalized dense-id token entry.
type Token struct {
	ID        uint32
	Token     string
	Frequency int
}

// ColumnIndex is the finalized, queryable per-column fuzzy index: a
// dense token table plus trigram posting lists.
type ColumnIndex struct {
	Truncated bool
	Tokens    []Token
	postings  map[string][]uint32 // trigram -> sorted token ids
}

// Finalize assigns dense token ids ordered by descending frequency
// (alphabetical tie-break) and builds the trigram posting lists, per
// §4.6 "Finalize".
func (b *ColumnBuilder) Finalize() *ColumnIndex {
	all := make([]*tokenEntry, 0, len(b.tokens))
	for _, e := range b.tokens {
		all = append(all, e)
	}
	sortByFrequencyDesc(all)

	idx := &ColumnIndex{
		Truncated: b.truncated,
		Tokens:    make([]Token, len(all)),
		postings:  make(map[string][]uint32),
	}

	postingSets := make(map[string]map[uint32]bool)
	for i, e := range all {
		id := uint32(i)
		idx.Tokens[i] = Token{ID: id, Token: e.token, Frequency: e.frequency}
		for _, tri := range trigrams(e.token) {
			set, ok := postingSets[tri]
			if !ok {
				set = make(map[uint32]bool)
				postingSets[tri] = set
			}
			set[id] = true
		}
	}

	for tri, set := range postingSets {
		ids := make([]uint32, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		idx.postings[tri] = ids
	}

	return idx
}

// trigrams generates the length-3 contiguous substrings of tok,
// space-padding tokens shorter than 3, per §4.6.
func trigrams(tok string) []string {
	runes := []rune(tok)
	if len(runes) < 3 {
		padded := tok
		for len([]rune(padded)) < 3 {
			padded += " "
		}
		return []string{padded}
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

// Suggestion is one candidate returned by Search.
type Suggestion struct {
	Token     string
	Distance  int
	Frequency int
}

// Search unions the posting lists for query's trigrams into a
// candidate set, scores each by bounded Damerau-Levenshtein, and
// returns the top-K within maxDistance, sorted by (distance asc,
// frequency desc), per §4.6.
func (idx *ColumnIndex) Search(query string, maxDistance, limit int) []Suggestion {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	normalized := norm.NFC.String(strings.ToLower(query))

	candidates := make(map[uint32]bool)
	for _, tri := range trigrams(normalized) {
		for _, id := range idx.postings[tri] {
			candidates[id] = true
		}
	}

	var results []Suggestion
	for id := range candidates {
		tok := idx.Tokens[id]
		dist, ok := boundedDamerauLevenshtein(normalized, tok.Token, maxDistance)
		if !ok {
			continue
		}
		results = append(results, Suggestion{Token: tok.Token, Distance: dist, Frequency: tok.Frequency})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Frequency > results[j].Frequency
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
