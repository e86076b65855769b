package pipeline

import (
	"sort"

	"github.com/JonMunkholm/insights/internal/table"
)

// DefaultMaxDistinct is the number of distinct values above which a column
// is not offered a value picker.
const DefaultMaxDistinct = 50

// FilterSpec maps a column name to the set of values a row may hold in that
// column. Columns with an empty set impose no constraint. All constraints
// must hold for a row to be kept.
type FilterSpec map[string][]string

// Active reports whether any column carries a non-empty allowed set.
func (f FilterSpec) Active() bool {
	for _, vals := range f {
		if len(vals) > 0 {
			return true
		}
	}
	return false
}

type constraint struct {
	col     *table.Column
	allowed map[string]struct{}
}

// FilterColumns returns the rows of t whose value in every constrained column
// is one of the allowed values. Allowed values for numeric columns are
// compared numerically, so "10.0" selects 10. Missing cells never match.
// A non-empty set on an absent column fails with apperr.ErrColumnNotFound.
func FilterColumns(t *table.Table, spec FilterSpec) (*table.Table, error) {
	if !spec.Active() {
		return t, nil
	}
	names := make([]string, 0, len(spec))
	for name, vals := range spec {
		if len(vals) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	cons := make([]constraint, 0, len(names))
	for _, name := range names {
		col, err := t.Lookup(name)
		if err != nil {
			return nil, err
		}
		allowed := make(map[string]struct{}, len(spec[name]))
		for _, v := range spec[name] {
			allowed[valueKey(col.Kind, v)] = struct{}{}
		}
		cons = append(cons, constraint{col: col, allowed: allowed})
	}

	keep := make([]int, 0, t.NumRows())
rows:
	for i := 0; i < t.NumRows(); i++ {
		for _, c := range cons {
			v := c.col.Values[i]
			if v.IsMissing() {
				continue rows
			}
			if _, ok := c.allowed[v.String()]; !ok {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	return t.Take(keep), nil
}

// valueKey normalizes a user-supplied filter value to the textual form of a
// cell of the given kind.
func valueKey(kind table.Kind, s string) string {
	if kind == table.KindNumber {
		if f, ok := table.ParseNumber(table.CleanCell(s), true); ok {
			return table.FormatNumber(f)
		}
	}
	return s
}

// ColumnOptions describes the value picker offered for one column.
type ColumnOptions struct {
	Column   string     `json:"column"`
	Kind     table.Kind `json:"kind"`
	Distinct int        `json:"distinct"`

	// Offered is false when the column has too many distinct values for a
	// picker. Such columns can still be filtered through a FilterSpec.
	Offered bool     `json:"offered"`
	Values  []string `json:"values,omitempty"`
}

// FilterOptions lists the candidate values of every column of t in display
// order. Candidates are the distinct non-missing values in first-seen order;
// columns with maxDistinct or more of them are not offered. maxDistinct <= 0
// selects DefaultMaxDistinct.
func FilterOptions(t *table.Table, maxDistinct int) []ColumnOptions {
	if maxDistinct <= 0 {
		maxDistinct = DefaultMaxDistinct
	}

	out := make([]ColumnOptions, 0, t.NumCols())
	for _, c := range t.Columns() {
		distinct := c.Distinct()
		opt := ColumnOptions{
			Column:   c.Name,
			Kind:     c.Kind,
			Distinct: len(distinct),
			Offered:  len(distinct) < maxDistinct,
		}
		if opt.Offered {
			opt.Values = make([]string, len(distinct))
			for i, v := range distinct {
				opt.Values[i] = v.String()
			}
		}
		out = append(out, opt)
	}
	return out
}
