package pipeline

import (
	"strings"

	"github.com/JonMunkholm/insights/internal/table"
)

// SearchQuery is a case-insensitive substring matched against the textual
// form of every cell of a row. A row is kept when any cell matches.
type SearchQuery struct {
	Text string

	// Column restricts the search to a single column when set.
	Column string
}

// Search returns the rows of t where at least one cell contains q.Text,
// ignoring case. Missing cells never match. An empty query returns t itself.
func Search(t *table.Table, q SearchQuery) (*table.Table, error) {
	if q.Text == "" {
		return t, nil
	}

	cols := t.Columns()
	if q.Column != "" {
		col, err := t.Lookup(q.Column)
		if err != nil {
			return nil, err
		}
		cols = []*table.Column{col}
	}

	needle := strings.ToLower(q.Text)
	keep := make([]int, 0, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		for _, c := range cols {
			v := c.Values[i]
			if v.IsMissing() {
				continue
			}
			if strings.Contains(strings.ToLower(v.String()), needle) {
				keep = append(keep, i)
				break
			}
		}
	}
	return t.Take(keep), nil
}
