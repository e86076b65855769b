package pipeline

import (
	"fmt"
	"math"
	"slices"

	"github.com/montanaflynn/stats"

	"github.com/JonMunkholm/insights/internal/table"
)

// Insights is the quick profile shown under the data view.
type Insights struct {
	Rows    int              `json:"rows"`
	Columns int              `json:"columns"`
	Missing []ColumnMissing  `json:"missing"`
	Numeric []NumericSummary `json:"numeric"`
}

// ColumnMissing is the missing-value count of one column.
type ColumnMissing struct {
	Column  string `json:"column"`
	Missing int    `json:"missing"`
}

// NumericSummary holds the descriptive statistics of one numeric column.
// Quartiles and the median interpolate linearly between the two nearest
// ranks, as pandas describe does. Statistics other than Count are
// zero when Count is zero; Std needs at least two values.
type NumericSummary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	HasStd bool    `json:"has_std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// Describe profiles t: its shape, missing values per column and summary
// statistics of each numeric column.
func Describe(t *table.Table) (*Insights, error) {
	in := &Insights{Rows: t.NumRows(), Columns: t.NumCols()}

	for _, c := range t.Columns() {
		in.Missing = append(in.Missing, ColumnMissing{Column: c.Name, Missing: c.MissingCount()})
		if c.Kind != table.KindNumber {
			continue
		}
		summary, err := summarize(c.Name, c.Numbers())
		if err != nil {
			return nil, fmt.Errorf("describe %q: %w", c.Name, err)
		}
		in.Numeric = append(in.Numeric, summary)
	}
	return in, nil
}

func summarize(name string, data []float64) (NumericSummary, error) {
	s := NumericSummary{Column: name, Count: len(data)}
	if len(data) == 0 {
		return s, nil
	}

	var err error
	if s.Mean, err = stats.Mean(data); err != nil {
		return s, err
	}
	if s.Min, err = stats.Min(data); err != nil {
		return s, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return s, err
	}

	sorted := slices.Sorted(slices.Values(data))
	s.Q25 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.5)
	s.Q75 = quantile(sorted, 0.75)

	if len(data) > 1 {
		if s.Std, err = stats.StandardDeviationSample(data); err != nil {
			return s, err
		}
		s.HasStd = true
	}
	return s, nil
}

// quantile returns the q-quantile of sorted data, interpolating linearly
// between the closest ranks.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[lo+1]-sorted[lo])
}
