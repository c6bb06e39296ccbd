package typeinfer

import (
	"strconv"
	"strings"
	"time"
)

// layouts is the ordered set of formats the liberal timestamp parser
// attempts: explicit integer epochs first (cheap, and very common in
// log exports), then the most specific layouts (explicit zone/offset)
// down to the least specific (timezone-less, interpreted in the
// supplied location).
var layouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000 MST",
	"2006-01-02T15:04:05.00 MST",
	"2006-01-02T15:04:05.0 MST",
	"2006-01-02 15:04:05.000 MST",
	"2006-01-02 15:04:05.00 MST",
	"2006-01-02 15:04:05.0 MST",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
	"02 Jan 2006 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseTimestampMillis parses s using a liberal set of layouts and
// returns milliseconds since the Unix epoch. 10- and 13-digit signed
// integer strings are treated as epoch seconds/milliseconds. Values
// with no explicit zone are interpreted in loc (time.UTC if nil).
func ParseTimestampMillis(s string, loc *time.Location) (int64, bool) {
	ss := strings.TrimSpace(s)
	if ss == "" {
		return 0, false
	}
	if loc == nil {
		loc = time.UTC
	}

	if ms, ok := parseEpochString(ss); ok {
		return ms, true
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, ss, loc); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// parseEpochString recognizes 10-digit (seconds) and 13-digit
// (milliseconds) signed integer epoch strings, per spec §4.2 rule 3.
func parseEpochString(s string) (int64, bool) {
	digits := s
	if strings.HasPrefix(digits, "-") {
		digits = digits[1:]
	}
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	switch len(digits) {
	case 13:
		return n, true
	case 10:
		return n * 1000, true
	default:
		return 0, false
	}
}
