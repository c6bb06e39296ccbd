package batchstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"breachline/internal/column"
)

const formatVersion = 1

// fileHeader is the JSON header preceding a serialized batch, per §6's
// on-disk row-batch format.
type fileHeader struct {
	Version     int            `json:"version"`
	RowStart    uint32         `json:"rowStart"`
	RowCount    uint32         `json:"rowCount"`
	ColumnOrder []string       `json:"columnOrder"`
	Columns     []columnHeader `json:"columns"`
}

type columnHeader struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	DataByteLength    int    `json:"dataByteLength"`
	OffsetsByteLength int    `json:"offsetsByteLength,omitempty"`
	NullMaskByteLength int   `json:"nullMaskByteLength,omitempty"`
}

func typeName(t column.Type) string {
	return t.String()
}

func parseTypeName(s string) (column.Type, error) {
	switch s {
	case "string":
		return column.TypeString, nil
	case "number":
		return column.TypeNumber, nil
	case "datetime":
		return column.TypeDatetime, nil
	case "boolean":
		return column.TypeBoolean, nil
	default:
		return 0, fmt.Errorf("batchstore: unknown column type %q", s)
	}
}

// encodeBatch serializes batch into the stable on-disk row-batch
// format: uint32-LE header length, UTF-8 JSON header, row-ids
// (uint32-LE x rowCount), then per column in columnOrder.
func encodeBatch(batch *column.Batch) ([]byte, error) {
	var body bytes.Buffer

	rowIDs := batch.RowIDs()
	if err := writeUint32Slice(&body, rowIDs); err != nil {
		return nil, err
	}

	columns := make([]columnHeader, 0, len(batch.ColumnOrder))
	for _, name := range batch.ColumnOrder {
		col := batch.Columns[name]
		ch := columnHeader{Name: name, Type: typeName(col.Type)}

		switch col.Type {
		case column.TypeString:
			offStart := body.Len()
			if err := writeUint32Slice(&body, col.String.Offsets); err != nil {
				return nil, err
			}
			ch.OffsetsByteLength = body.Len() - offStart
			dataStart := body.Len()
			body.Write(col.String.Bytes)
			ch.DataByteLength = body.Len() - dataStart
		case column.TypeNumber:
			dataStart := body.Len()
			if err := writeFloat64Slice(&body, col.Number.Values); err != nil {
				return nil, err
			}
			ch.DataByteLength = body.Len() - dataStart
			ch.NullMaskByteLength = writeNullMask(&body, col.Number.Nulls)
		case column.TypeBoolean:
			dataStart := body.Len()
			body.Write(col.Boolean.Values)
			ch.DataByteLength = body.Len() - dataStart
			ch.NullMaskByteLength = writeNullMask(&body, col.Boolean.Nulls)
		case column.TypeDatetime:
			dataStart := body.Len()
			if err := writeFloat64Slice(&body, col.Datetime.Millis); err != nil {
				return nil, err
			}
			ch.DataByteLength = body.Len() - dataStart
			ch.NullMaskByteLength = writeNullMask(&body, col.Datetime.Nulls)
		}
		columns = append(columns, ch)
	}

	header := fileHeader{
		Version:     formatVersion,
		RowStart:    batch.RowStart,
		RowCount:    batch.RowCount,
		ColumnOrder: append([]string(nil), batch.ColumnOrder...),
		Columns:     columns,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(headerBytes)))
	out.Write(lenBuf[:])
	out.Write(headerBytes)
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// decodeBatch reverses encodeBatch.
func decodeBatch(r io.Reader) (*column.Batch, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	headerLen := binary.LittleEndian.Uint32(lenBuf[:])

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, err
	}
	var header fileHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, err
	}

	rowIDs, err := readUint32Slice(r, int(header.RowCount))
	if err != nil {
		return nil, err
	}
	_ = rowIDs // row ids are contiguous and reconstructible from RowStart/RowCount

	batch := &column.Batch{
		RowStart:    header.RowStart,
		RowCount:    header.RowCount,
		ColumnOrder: header.ColumnOrder,
		Columns:     make(map[string]column.Column, len(header.Columns)),
		ColumnTypes: make(map[string]column.Type, len(header.Columns)),
	}

	n := int(header.RowCount)
	for _, ch := range header.Columns {
		t, err := parseTypeName(ch.Type)
		if err != nil {
			return nil, err
		}
		batch.ColumnTypes[ch.Name] = t

		switch t {
		case column.TypeString:
			offsets, err := readUint32Slice(r, n+1)
			if err != nil {
				return nil, err
			}
			data := make([]byte, ch.DataByteLength)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, err
			}
			batch.Columns[ch.Name] = column.Column{
				Type:   column.TypeString,
				String: &column.StringColumn{Bytes: data, Offsets: offsets},
			}
		case column.TypeNumber:
			values, err := readFloat64Slice(r, n)
			if err != nil {
				return nil, err
			}
			nulls, err := readNullMask(r, ch.NullMaskByteLength)
			if err != nil {
				return nil, err
			}
			batch.Columns[ch.Name] = column.Column{
				Type:   column.TypeNumber,
				Number: &column.NumberColumn{Values: values, Nulls: nulls},
			}
		case column.TypeBoolean:
			values := make([]byte, n)
			if _, err := io.ReadFull(r, values); err != nil {
				return nil, err
			}
			nulls, err := readNullMask(r, ch.NullMaskByteLength)
			if err != nil {
				return nil, err
			}
			batch.Columns[ch.Name] = column.Column{
				Type:    column.TypeBoolean,
				Boolean: &column.BooleanColumn{Values: values, Nulls: nulls},
			}
		case column.TypeDatetime:
			millis, err := readFloat64Slice(r, n)
			if err != nil {
				return nil, err
			}
			nulls, err := readNullMask(r, ch.NullMaskByteLength)
			if err != nil {
				return nil, err
			}
			batch.Columns[ch.Name] = column.Column{
				Type:     column.TypeDatetime,
				Datetime: &column.DatetimeColumn{Millis: millis, Nulls: nulls},
			}
		}
	}

	return batch, nil
}

func writeUint32Slice(w *bytes.Buffer, values []uint32) error {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	_, err := w.Write(buf)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out, nil
}

func writeFloat64Slice(w *bytes.Buffer, values []float64) error {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	buf := make([]byte, 8*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

// writeNullMask writes mask if non-nil and returns the byte count
// written (0 when the column has no nulls, matching the optional
// nullMaskByteLength header field).
func writeNullMask(w *bytes.Buffer, mask column.NullMask) int {
	if mask == nil {
		return 0
	}
	w.Write(mask)
	return len(mask)
}

func readNullMask(r io.Reader, byteLength int) (column.NullMask, error) {
	if byteLength == 0 {
		return nil, nil
	}
	buf := make([]byte, byteLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return column.NullMask(buf), nil
}
