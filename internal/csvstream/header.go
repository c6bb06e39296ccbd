package csvstream

import (
	"strconv"
	"strings"
)

// NormalizeHeader applies §4.1's header rule: empty or whitespace-only
// cells become column_{1-based-index}; any name that collides with an
// earlier (already-normalized) name is suffixed _2, _3, ... until
// unique. Follows the same dedicated header-normalization shape as
// app/fileloader/headers.go's NormalizeHeaders.
func NormalizeHeader(fields []string) []string {
	out := make([]string, len(fields))
	seen := make(map[string]int, len(fields))

	for i, raw := range fields {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = columnPlaceholder(i + 1)
		}

		base := name
		for {
			count := seen[name]
			seen[name] = count + 1
			if count == 0 {
				break
			}
			name = base + "_" + strconv.Itoa(count+1)
		}
		out[i] = name
	}
	return out
}

func columnPlaceholder(oneBasedIndex int) string {
	return "column_" + strconv.Itoa(oneBasedIndex)
}
