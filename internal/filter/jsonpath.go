package filter

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// parseColumnJPath splits a column reference of the form
// "column{$.jsonPath}" into its base column name and JPath expression,
// following app/query/stages.go's parseColumnJPath shape. A plain
// column name (no braces) reports hasJPath=false.
func parseColumnJPath(colName string) (string, string, bool) {
	openBrace := strings.Index(colName, "{")
	if openBrace == -1 {
		return colName, "", false
	}

	closeBrace := strings.LastIndex(colName, "}")
	if closeBrace == -1 || closeBrace <= openBrace {
		return colName, "", false
	}

	columnName := strings.TrimSpace(colName[:openBrace])
	jpathExpr := strings.TrimSpace(colName[openBrace+1 : closeBrace])
	if columnName == "" || jpathExpr == "" {
		return colName, "", false
	}
	return columnName, jpathExpr, true
}

// evaluateColumnJPath extracts the first JPath match from a cell
// holding a JSON document, resolved fresh per query (batches stay
// flat columnar; nothing is precomputed at parse time).
func evaluateColumnJPath(jsonValue, jpathExpr string) (string, bool) {
	if jsonValue == "" || jpathExpr == "" {
		return "", false
	}

	data, err := oj.ParseString(jsonValue)
	if err != nil {
		return "", false
	}

	path, err := jp.ParseString(jpathExpr)
	if err != nil {
		return "", false
	}

	results := path.Get(data)
	if len(results) == 0 {
		return "", false
	}

	switch v := results[0].(type) {
	case string:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return fmt.Sprintf("%v", v), true
	case int64:
		return fmt.Sprintf("%d", v), true
	case bool:
		return fmt.Sprintf("%v", v), true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}
