package pipeline

import (
	"sort"

	"github.com/JonMunkholm/insights/internal/apperr"
	"github.com/JonMunkholm/insights/internal/table"
)

// Aggregation is the reduction applied per group.
type Aggregation string

const (
	AggSum   Aggregation = "sum"
	AggCount Aggregation = "count"
	AggNone  Aggregation = "none" // raw points, used by scatter charts
)

// Order is the ordering of a series' points.
type Order string

const (
	// OrderAuto sorts pie charts and value counts by descending value and
	// keeps every other series in first-seen order.
	OrderAuto      Order = ""
	OrderFirstSeen Order = "first_seen"
	OrderValueDesc Order = "value_desc"
)

// Point is one (key, value) pair of a series.
type Point struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`

	// Missing marks the group of rows whose key cell is missing.
	Missing bool `json:"missing,omitempty"`
}

// Series is a reduced (key, value) sequence ready for rendering.
type Series struct {
	Label       string      `json:"label"`
	ValueLabel  string      `json:"value_label"`
	Aggregation Aggregation `json:"aggregation"`
	Points      []Point     `json:"points"`
}

// Total returns the sum of all point values.
func (s *Series) Total() float64 {
	var total float64
	for _, p := range s.Points {
		total += p.Value
	}
	return total
}

// Keys returns the point keys in order.
func (s *Series) Keys() []string {
	keys := make([]string, len(s.Points))
	for i, p := range s.Points {
		keys[i] = p.Key
	}
	return keys
}

// Sorted returns a copy of s in the given order. OrderAuto and
// OrderFirstSeen keep the current order.
func (s *Series) Sorted(order Order) *Series {
	out := *s
	out.Points = make([]Point, len(s.Points))
	copy(out.Points, s.Points)
	if order == OrderValueDesc {
		sort.SliceStable(out.Points, func(i, j int) bool {
			return out.Points[i].Value > out.Points[j].Value
		})
	}
	return &out
}

// Aggregate groups t by the text column groupBy and sums the numeric column
// value per group. Groups appear in the order their key is first seen.
// Missing values count as zero; rows with a missing key are collected in a
// trailing group flagged Missing, so the total of the series always equals
// the total of the value column.
func Aggregate(t *table.Table, groupBy, value string) (*Series, error) {
	keyCol, err := t.Lookup(groupBy)
	if err != nil {
		return nil, err
	}
	valCol, err := t.Lookup(value)
	if err != nil {
		return nil, err
	}
	if valCol.Kind != table.KindNumber {
		return nil, apperr.InvalidColumnKind(value, "value column must be numeric")
	}
	if keyCol.Kind != table.KindText {
		return nil, apperr.InvalidColumnKind(groupBy, "group-by column must be text")
	}

	series := &Series{Label: groupBy, ValueLabel: value, Aggregation: AggSum}
	index := make(map[string]int)
	missingIdx := -1
	var missing Point

	for i, k := range keyCol.Values {
		v := valCol.Values[i]
		var amount float64
		if v.Kind == table.KindNumber {
			amount = v.Num
		}

		if k.IsMissing() {
			if missingIdx < 0 {
				missingIdx = i
				missing = Point{Missing: true}
			}
			missing.Value += amount
			continue
		}

		key := k.String()
		pos, ok := index[key]
		if !ok {
			pos = len(series.Points)
			index[key] = pos
			series.Points = append(series.Points, Point{Key: key})
		}
		series.Points[pos].Value += amount
	}

	if missingIdx >= 0 {
		series.Points = append(series.Points, missing)
	}
	return series, nil
}

// CountValues counts the occurrences of each distinct non-missing value of
// column. Values appear in the order they are first seen.
func CountValues(t *table.Table, column string) (*Series, error) {
	col, err := t.Lookup(column)
	if err != nil {
		return nil, err
	}

	series := &Series{Label: column, ValueLabel: "count", Aggregation: AggCount}
	index := make(map[string]int)
	for _, v := range col.Values {
		if v.IsMissing() {
			continue
		}
		key := v.String()
		pos, ok := index[key]
		if !ok {
			pos = len(series.Points)
			index[key] = pos
			series.Points = append(series.Points, Point{Key: key})
		}
		series.Points[pos].Value++
	}
	return series, nil
}

// Points pairs the textual form of column x with the numeric column y, one
// point per row, skipping rows where either cell is missing.
func Points(t *table.Table, x, y string) (*Series, error) {
	xCol, err := t.Lookup(x)
	if err != nil {
		return nil, err
	}
	yCol, err := t.Lookup(y)
	if err != nil {
		return nil, err
	}
	if yCol.Kind != table.KindNumber {
		return nil, apperr.InvalidColumnKind(y, "y column must be numeric")
	}

	series := &Series{Label: x, ValueLabel: y, Aggregation: AggNone}
	for i, xv := range xCol.Values {
		yv := yCol.Values[i]
		if xv.IsMissing() || yv.IsMissing() {
			continue
		}
		series.Points = append(series.Points, Point{Key: xv.String(), Value: yv.Num})
	}
	return series, nil
}
