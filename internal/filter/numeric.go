package filter

import (
	"math"
	"strconv"

	"breachline/internal/typeinfer"
)

// parseFloat parses a predicate value as a finite number; non-finite
// results are treated as non-matching per §4.5.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// parseDatetimeMillis parses a predicate value using the same liberal
// parser C1 uses for datetime inference, per §4.5.
func parseDatetimeMillis(s string) (float64, bool) {
	ms, ok := typeinfer.ParseTimestampMillis(s, nil)
	if !ok {
		return 0, false
	}
	return float64(ms), true
}
