// Package csvstream implements C2: a state-machine streaming parser
// over a UTF-8 byte stream that infers the delimiter, normalizes the
// header, and emits column batches with type inference and periodic
// row-offset checkpoints as it goes.
//
// Header normalization follows app/fileloader/headers.go and
// app/fileloader/csv.go, generalized into a genuine incremental
// scanner: those wrap encoding/csv and read a file whole, but
// byte-offset tracking for checkpointing and mid-parse type resolution
// call for a scan loop hand-written against io.Reader rather than
// encoding/csv — in the style of the byte-level BOM/delimiter handling
// in entreya-csvquery's Scanner.readHeaders.
package csvstream

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"breachline/internal/column"
	"breachline/internal/typeinfer"
)

const (
	DefaultBatchSize          = 10_000
	DefaultCheckpointInterval = 50_000
)

// Checkpoint is a (rowIndex, byteOffset) pair: byteOffset is the byte
// position at which that row's first field began.
type Checkpoint struct {
	RowIndex   uint32
	ByteOffset int64
}

// Stats accompanies each batch and the final flush.
type Stats struct {
	RowsParsed  int64
	BytesParsed int64
	EOF         bool
}

// Callbacks is the ordered set of ingestion callbacks (§4.1, §5
// "Ordering guarantees"): exactly one OnHeader before any OnBatch;
// OnBatch/OnCheckpoint interleaved in row-id order; at most one
// OnComplete, last.
type Callbacks struct {
	OnHeader     func(columns []string)
	OnBatch      func(batch *column.Batch)
	OnCheckpoint func(cp Checkpoint)
	OnComplete   func(stats Stats)
}

// Options configures a Parser.
type Options struct {
	Delimiter          byte // 0 means autodetect
	BatchSize          int
	CheckpointInterval int
	Loc                *time.Location // for timezone-less datetime inference
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}
	if o.Loc == nil {
		o.Loc = time.UTC
	}
	return o
}

// Parser drives the row-shaped byte scanner and the column builders.
type Parser struct {
	opts Options
	log  zerolog.Logger
	cb   Callbacks

	header      []string
	delimiter   byte
	delimFrozen bool

	bytesParsed int64
	rowsParsed  int64
	batchRows   int

	columnBuilders []*columnBuilder
	inferStates    []*typeinfer.State
	firstRow       bool
}

// columnBuilder accumulates one column's raw string values for the
// batch currently being assembled; typed encoding happens at flush
// once the column's resolved type is known.
type columnBuilder struct {
	raw []string
}

// New creates a parser ready to consume a byte stream via Parse.
func New(cb Callbacks, opts Options) *Parser {
	return &Parser{
		opts:     opts.withDefaults(),
		cb:       cb,
		firstRow: true,
		log:      zerolog.New(io.Discard).With().Str("component", "csvstream").Logger(),
	}
}

// WithLogger attaches a destination for structured parser diagnostics.
func (p *Parser) WithLogger(l zerolog.Logger) *Parser {
	p.log = l.With().Str("component", "csvstream").Logger()
	return p
}

// Parse streams r to EOF, invoking callbacks per §4.1/§5. Malformed
// UTF-8 is replaced with the replacement character by decodeReplacing.
func (p *Parser) Parse(r io.Reader) error {
	br := bufio.NewReaderSize(decodeReplacing(r), 1<<16)

	p.consumeBOM(br)

	if p.opts.Delimiter != 0 {
		p.delimiter = p.opts.Delimiter
		p.delimFrozen = true
	} else {
		p.delimiter = p.peekDelimiter(br)
		p.delimFrozen = true
	}

	for {
		fields, sawAny, err := p.readRow(br)
		if sawAny {
			p.handleRow(fields)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}

	p.flushBatch(true)
	if p.cb.OnComplete != nil {
		p.cb.OnComplete(Stats{RowsParsed: p.rowsParsed, BytesParsed: p.bytesParsed, EOF: true})
	}
	return nil
}

// consumeBOM skips a leading UTF-8 BOM (U+FEFF, 3 bytes) and counts it
// toward bytesParsed.
func (p *Parser) consumeBOM(br *bufio.Reader) {
	bom, err := br.Peek(3)
	if err == nil && len(bom) == 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
		p.bytesParsed += 3
	}
}

// peekDelimiter tallies ',', '\t', ';' up to the first line break
// without consuming the stream, and freezes on the maximum (comma
// tie-break), per §4.1.
func (p *Parser) peekDelimiter(br *bufio.Reader) byte {
	const maxPeek = 1 << 20
	size := 4096
	var line []byte
	for {
		buf, _ := br.Peek(size)
		if idx := indexNewline(buf); idx >= 0 {
			line = buf[:idx]
			break
		}
		if len(buf) < size || size >= maxPeek {
			line = buf
			break
		}
		size *= 2
	}

	tally := map[byte]int{',': 0, '\t': 0, ';': 0}
	inQuotes := false
	for _, b := range line {
		if b == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if _, ok := tally[b]; ok {
			tally[b]++
		}
	}
	best := byte(',')
	bestCount := tally[',']
	for _, c := range []byte{'\t', ';'} {
		if tally[c] > bestCount {
			best = c
			bestCount = tally[c]
		}
	}
	return best
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' || c == '\r' {
			return i
		}
	}
	return -1
}

// readRow scans one logical row (honoring quoting) and returns its
// raw fields. \n, \r\n, and lone \r all terminate a row; CRLF must not
// double-emit. An unterminated quote at EOF closes silently.
func (p *Parser) readRow(br *bufio.Reader) ([]string, bool, error) {
	var fields []string
	var field []byte
	inQuotes := false
	sawAny := false

	for {
		b, err := br.ReadByte()
		if err != nil {
			if len(field) > 0 || len(fields) > 0 {
				fields = append(fields, string(field))
				sawAny = true
			}
			return fields, sawAny, io.EOF
		}
		p.bytesParsed++
		sawAny = true

		if inQuotes {
			if b == '"' {
				next, peekErr := br.Peek(1)
				if peekErr == nil && len(next) == 1 && next[0] == '"' {
					br.ReadByte()
					p.bytesParsed++
					field = append(field, '"')
					continue
				}
				inQuotes = false
				continue
			}
			field = append(field, b)
			continue
		}

		switch {
		case b == '"':
			inQuotes = true
		case b == p.delimiter:
			fields = append(fields, string(field))
			field = field[:0]
		case b == '\n':
			fields = append(fields, string(field))
			return fields, true, nil
		case b == '\r':
			next, peekErr := br.Peek(1)
			if peekErr == nil && len(next) == 1 && next[0] == '\n' {
				br.ReadByte()
				p.bytesParsed++
			}
			fields = append(fields, string(field))
			return fields, true, nil
		default:
			field = append(field, b)
		}
	}
}

// handleRow feeds one parsed row (header or data) through inference
// and into the active batch.
func (p *Parser) handleRow(fields []string) {
	if p.firstRow {
		p.firstRow = false
		p.header = NormalizeHeader(fields)
		p.columnBuilders = make([]*columnBuilder, len(p.header))
		p.inferStates = make([]*typeinfer.State, len(p.header))
		for i := range p.header {
			p.columnBuilders[i] = &columnBuilder{}
			p.inferStates[i] = typeinfer.NewState(p.opts.Loc)
		}
		if p.cb.OnHeader != nil {
			p.cb.OnHeader(p.header)
		}
		return
	}

	fields = normalizeRowWidth(fields, len(p.header))
	for i, v := range fields {
		p.inferStates[i].Observe(v)
		p.columnBuilders[i].raw = append(p.columnBuilders[i].raw, v)
	}

	p.rowsParsed++
	p.batchRows++

	if int(p.rowsParsed)%p.opts.CheckpointInterval == 0 {
		if p.cb.OnCheckpoint != nil {
			p.cb.OnCheckpoint(Checkpoint{RowIndex: uint32(p.rowsParsed), ByteOffset: p.bytesParsed})
		}
	}

	if p.batchRows >= p.opts.BatchSize {
		p.flushBatch(false)
	}
}

// normalizeRowWidth right-pads short rows with "" and truncates long
// ones to the header width. No row is ever dropped.
func normalizeRowWidth(fields []string, width int) []string {
	if len(fields) == width {
		return fields
	}
	out := make([]string, width)
	copy(out, fields)
	return out
}

// flushBatch encodes the accumulated raw values into typed column
// buffers (resolving each column's type from its inference state) and
// emits the batch.
func (p *Parser) flushBatch(eof bool) {
	if p.batchRows == 0 {
		if eof && p.cb.OnBatch != nil && p.header != nil && p.rowsParsed == 0 {
			// Header-only file: still report an empty, EOF batch so
			// callers observe completion deterministically.
			p.cb.OnBatch(&column.Batch{
				ColumnOrder: append([]string(nil), p.header...),
				Columns:     map[string]column.Column{},
				ColumnTypes: map[string]column.Type{},
				RowsParsed:  p.rowsParsed,
				BytesParsed: p.bytesParsed,
				EOF:         true,
			})
		}
		return
	}

	rowStart := uint32(p.rowsParsed) - uint32(p.batchRows)
	batch := &column.Batch{
		RowStart:    rowStart,
		RowCount:    uint32(p.batchRows),
		ColumnOrder: append([]string(nil), p.header...),
		Columns:     make(map[string]column.Column, len(p.header)),
		ColumnTypes: make(map[string]column.Type, len(p.header)),
		RowsParsed:  p.rowsParsed,
		BytesParsed: p.bytesParsed,
		EOF:         eof,
	}

	for i, name := range p.header {
		res := p.inferStates[i].Resolve()
		col := encodeColumn(p.columnBuilders[i].raw, res.Type, p.opts.Loc)
		batch.Columns[name] = col
		batch.ColumnTypes[name] = res.Type
		p.columnBuilders[i] = &columnBuilder{}
	}

	p.batchRows = 0
	if p.cb.OnBatch != nil {
		p.cb.OnBatch(batch)
	}
}

// encodeColumn converts raw cell strings into the typed buffer for
// the column's resolved type, per §3's encoding rules.
func encodeColumn(raw []string, t column.Type, loc *time.Location) column.Column {
	switch t {
	case column.TypeNumber:
		values := make([]float64, len(raw))
		var nulls column.NullMask
		for i, v := range raw {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				nulls = ensureMask(nulls, len(raw))
				nulls[i] = 1
				continue
			}
			f, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				nulls = ensureMask(nulls, len(raw))
				nulls[i] = 1
				continue
			}
			values[i] = f
		}
		return column.Column{Type: column.TypeNumber, Number: &column.NumberColumn{Values: values, Nulls: nulls}}
	case column.TypeBoolean:
		values := make([]byte, len(raw))
		var nulls column.NullMask
		for i, v := range raw {
			trimmed := strings.ToLower(strings.TrimSpace(v))
			switch {
			case trimmed == "":
				nulls = ensureMask(nulls, len(raw))
				nulls[i] = 1
			case trimmed == "true" || trimmed == "t" || trimmed == "yes" || trimmed == "y" || trimmed == "1":
				values[i] = 1
			default:
				values[i] = 0
			}
		}
		return column.Column{Type: column.TypeBoolean, Boolean: &column.BooleanColumn{Values: values, Nulls: nulls}}
	case column.TypeDatetime:
		millis := make([]float64, len(raw))
		var nulls column.NullMask
		for i, v := range raw {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				nulls = ensureMask(nulls, len(raw))
				nulls[i] = 1
				continue
			}
			ms, ok := typeinfer.ParseTimestampMillis(trimmed, loc)
			if !ok {
				nulls = ensureMask(nulls, len(raw))
				nulls[i] = 1
				continue
			}
			millis[i] = float64(ms)
		}
		return column.Column{Type: column.TypeDatetime, Datetime: &column.DatetimeColumn{Millis: millis, Nulls: nulls}}
	default:
		b := column.NewStringBuilder(len(raw))
		for _, v := range raw {
			b.Append(v)
		}
		return column.Column{Type: column.TypeString, String: b.Build()}
	}
}

func ensureMask(m column.NullMask, n int) column.NullMask {
	if m != nil {
		return m
	}
	return make(column.NullMask, n)
}

// decodeReplacing wraps r so that invalid UTF-8 byte sequences are
// replaced with U+FFFD, matching the streaming-decoder behavior
// §4.1's failure-handling rule calls for.
func decodeReplacing(r io.Reader) io.Reader {
	return &utf8ReplacingReader{src: bufio.NewReader(r)}
}

type utf8ReplacingReader struct {
	src *bufio.Reader
	buf []byte
}

func (u *utf8ReplacingReader) Read(p []byte) (int, error) {
	if len(u.buf) > 0 {
		n := copy(p, u.buf)
		u.buf = u.buf[n:]
		return n, nil
	}

	b, err := u.src.ReadByte()
	if err != nil {
		return 0, err
	}
	if b < utf8.RuneSelf {
		p[0] = b
		return 1, nil
	}

	u.src.UnreadByte()
	runeBytes, _ := u.src.Peek(utf8.UTFMax)
	r, size := utf8.DecodeRune(runeBytes)
	if r == utf8.RuneError && size <= 1 {
		u.src.ReadByte()
		n := copy(p, string(utf8.RuneError))
		return n, nil
	}
	consume := make([]byte, size)
	io.ReadFull(u.src, consume)
	n := copy(p, consume)
	if n < len(consume) {
		u.buf = append(u.buf, consume[n:]...)
	}
	return n, nil
}
