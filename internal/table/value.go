package table

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the semantic kind of a cell or a column.
// Columns are either KindNumber or KindText; KindMissing only appears on cells.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNumber
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "missing"
	}
}

// MarshalText encodes the kind by name in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "number":
		*k = KindNumber
	case "text":
		*k = KindText
	case "missing":
		*k = KindMissing
	default:
		return fmt.Errorf("unknown column kind %q", b)
	}
	return nil
}

// Value is a single cell.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// Number returns a numeric cell. NaN is stored as missing.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{Kind: KindNumber, Num: f}
}

// Text returns a text cell.
func Text(s string) Value {
	return Value{Kind: KindText, Str: s}
}

// Missing returns a missing cell.
func Missing() Value {
	return Value{}
}

// IsMissing reports whether the cell holds no value.
func (v Value) IsMissing() bool {
	return v.Kind == KindMissing
}

// String returns the textual form of the cell: the shortest decimal that
// round-trips for numbers, the raw text for text cells and "" for missing.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return FormatNumber(v.Num)
	case KindText:
		return v.Str
	default:
		return ""
	}
}

// FormatNumber renders f the way cell values are displayed and compared.
func FormatNumber(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if f == 0 {
		// Normalizes negative zero.
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
