// Package column defines the columnar batch data model shared by the
// streaming parser, the batch store, and the query engines: tagged
// column buffers grouped into row-id-addressed batches.
package column

// Type is the inferred type of a column. A column's type is assigned
// once per parse and never changes mid-dataset.
type Type int

const (
	TypeString Type = iota
	TypeNumber
	TypeDatetime
	TypeBoolean
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeDatetime:
		return "datetime"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// StringColumn stores UTF-8 bytes in a single buffer addressed by an
// (n+1) offset array, Arrow-style: value i is bytes[offsets[i]:offsets[i+1]].
type StringColumn struct {
	Bytes   []byte
	Offsets []uint32
}

// Len returns the number of rows in the column.
func (c *StringColumn) Len() int {
	if len(c.Offsets) == 0 {
		return 0
	}
	return len(c.Offsets) - 1
}

// Value returns the string at row i.
func (c *StringColumn) Value(i int) string {
	return string(c.Bytes[c.Offsets[i]:c.Offsets[i+1]])
}

// StringBuilder accumulates string values before being frozen into a StringColumn.
type StringBuilder struct {
	buf     []byte
	offsets []uint32
}

func NewStringBuilder(rowHint int) *StringBuilder {
	return &StringBuilder{offsets: append(make([]uint32, 0, rowHint+1), 0)}
}

func (b *StringBuilder) Append(s string) {
	b.buf = append(b.buf, s...)
	b.offsets = append(b.offsets, uint32(len(b.buf)))
}

func (b *StringBuilder) Build() *StringColumn {
	return &StringColumn{Bytes: b.buf, Offsets: b.offsets}
}

// NullMask marks which rows are null (1 = null). Absent means no nulls.
type NullMask []byte

func (m NullMask) IsNull(i int) bool {
	if m == nil {
		return false
	}
	return m[i] != 0
}

// NumberColumn stores IEEE-754 doubles with an optional null mask.
type NumberColumn struct {
	Values []float64
	Nulls  NullMask
}

func (c *NumberColumn) Len() int { return len(c.Values) }

// BooleanColumn stores one byte per row (0/1) with an optional null mask.
type BooleanColumn struct {
	Values []byte
	Nulls  NullMask
}

func (c *BooleanColumn) Len() int { return len(c.Values) }

func (c *BooleanColumn) Value(i int) bool { return c.Values[i] != 0 }

// DatetimeColumn stores milliseconds-since-epoch with an optional null mask.
type DatetimeColumn struct {
	Millis []float64
	Nulls  NullMask
}

func (c *DatetimeColumn) Len() int { return len(c.Millis) }

// Column is the tagged union of the four supported buffer kinds.
type Column struct {
	Type     Type
	String   *StringColumn
	Number   *NumberColumn
	Boolean  *BooleanColumn
	Datetime *DatetimeColumn
}

// Len returns the row count of whichever buffer is populated.
func (c Column) Len() int {
	switch c.Type {
	case TypeString:
		return c.String.Len()
	case TypeNumber:
		return c.Number.Len()
	case TypeBoolean:
		return c.Boolean.Len()
	case TypeDatetime:
		return c.Datetime.Len()
	default:
		return 0
	}
}

// IsNull reports whether row i is null in this column.
func (c Column) IsNull(i int) bool {
	switch c.Type {
	case TypeString:
		return false
	case TypeNumber:
		return c.Number.Nulls.IsNull(i)
	case TypeBoolean:
		return c.Boolean.Nulls.IsNull(i)
	case TypeDatetime:
		return c.Datetime.Nulls.IsNull(i)
	default:
		return true
	}
}

// Batch is a contiguous run of rows stored together, one typed buffer
// per column, all sharing the same row-id range.
type Batch struct {
	RowStart    uint32
	RowCount    uint32
	ColumnOrder []string
	Columns     map[string]Column
	ColumnTypes map[string]Type
	RowsParsed  int64
	BytesParsed int64
	EOF         bool
}

// RowIDs returns the contiguous row-id range [RowStart, RowStart+RowCount).
func (b *Batch) RowIDs() []uint32 {
	ids := make([]uint32, b.RowCount)
	for i := range ids {
		ids[i] = b.RowStart + uint32(i)
	}
	return ids
}

// Row is a single materialized record: column name to decoded value,
// plus the dense row identifier it was assigned at parse time.
type Row struct {
	RowID  uint32
	Values map[string]any
}
