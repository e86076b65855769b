package table

// parse.go turns raw spreadsheet cells into typed values.
//
// Uploaded files carry the usual mess of user-provided data:
//   - Excel text-formula prefixes (="00123")
//   - NA markers written by pandas, R and Excel (NA, N/A, #N/A, null, ...)
//   - Currency symbols, thousand separators and accounting negatives, which
//     are only accepted when lenient number parsing is enabled
//
// A column is numeric only when every non-missing cell parses as a number.

import (
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a plain decimal after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// naMarkers are the strings read as missing values.
var naMarkers = map[string]struct{}{
	"":          {},
	"#N/A":      {},
	"#N/A N/A":  {},
	"#NA":       {},
	"-1.#IND":   {},
	"-1.#QNAN":  {},
	"-NaN":      {},
	"-nan":      {},
	"1.#IND":    {},
	"1.#QNAN":   {},
	"<NA>":      {},
	"N/A":       {},
	"NA":        {},
	"NULL":      {},
	"NaN":       {},
	"None":      {},
	"n/a":       {},
	"nan":       {},
	"null":      {},
}

// IsMissing reports whether a cleaned cell should be read as missing.
func IsMissing(s string) bool {
	_, ok := naMarkers[s]
	return ok
}

// CleanCell removes common spreadsheet artifacts from a cell value:
//   - Trims whitespace
//   - Unwraps the Excel text-formula form ="value"
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	}
	return s
}

// ParseNumber parses a cleaned cell as a number.
// With lenient set it also accepts currency symbols, thousands separators
// and the accounting format for negatives "(123.45)".
func ParseNumber(s string, lenient bool) (float64, bool) {
	if s == "" {
		return 0, false
	}
	if lenient {
		s = normalizeAccounting(s)
	}
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// normalizeAccounting strips currency and grouping characters.
func normalizeAccounting(s string) string {
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return s
}

// InferColumn builds a typed column from raw cells.
func InferColumn(name string, cells []string, lenient bool) *Column {
	cleaned := make([]string, len(cells))
	numeric := true
	nums := make([]float64, len(cells))
	for i, raw := range cells {
		c := CleanCell(raw)
		cleaned[i] = c
		if IsMissing(c) || !numeric {
			continue
		}
		f, ok := ParseNumber(c, lenient)
		if !ok {
			numeric = false
			continue
		}
		nums[i] = f
	}

	col := &Column{Name: name, Values: make([]Value, len(cells))}
	if numeric {
		col.Kind = KindNumber
	} else {
		col.Kind = KindText
	}
	for i, c := range cleaned {
		switch {
		case IsMissing(c):
			col.Values[i] = Missing()
		case numeric:
			col.Values[i] = Number(nums[i])
		default:
			col.Values[i] = Text(c)
		}
	}
	return col
}
