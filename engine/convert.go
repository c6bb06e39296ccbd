package engine

import (
	"time"

	"breachline/internal/column"
)

// rowToAPI materializes a column.Row into the transport shape: field
// name to decoded value, plus the "__rowId" key, per §3's Row
// identifier rule and §4.3's decoding rules (datetime as ISO-8601 UTC
// string with a trailing ".000" stripped).
func rowToAPI(row column.Row, columnTypes map[string]column.Type) map[string]any {
	out := make(map[string]any, len(row.Values)+1)
	out["__rowId"] = row.RowID
	for name, v := range row.Values {
		if v == nil {
			out[name] = nil
			continue
		}
		if columnTypes[name] == column.TypeDatetime {
			if ms, ok := v.(float64); ok {
				out[name] = formatDatetime(ms)
				continue
			}
		}
		out[name] = v
	}
	return out
}

func rowsToAPI(rows []column.Row, columnTypes map[string]column.Type) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = rowToAPI(r, columnTypes)
	}
	return out
}

// formatDatetime renders milliseconds-since-epoch as an ISO-8601 UTC
// string, stripping a zero millisecond fraction, per §4.3.
func formatDatetime(ms float64) string {
	millis := int64(ms)
	t := time.UnixMilli(millis).UTC()
	if frac := ((millis % 1000) + 1000) % 1000; frac == 0 {
		return t.Format("2006-01-02T15:04:05") + "Z"
	}
	return t.Format("2006-01-02T15:04:05.000Z")
}
