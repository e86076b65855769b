// Package table holds the in-memory tabular model shared by the loader and
// the filter pipeline.
//
// A Table is an ordered list of named, typed columns whose value slices are
// positionally aligned. Tables are treated as immutable: every transform in
// this module builds a new Table and leaves its input untouched, so a loaded
// table can be reused across the steps of a request without copying.
package table

import (
	"fmt"

	"github.com/JonMunkholm/insights/internal/apperr"
)

// Column is a named sequence of cells of one kind.
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// Distinct returns the column's distinct non-missing values in first-seen order.
func (c *Column) Distinct() []Value {
	seen := make(map[string]struct{})
	var out []Value
	for _, v := range c.Values {
		if v.IsMissing() {
			continue
		}
		key := v.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MissingCount returns the number of missing cells in the column.
func (c *Column) MissingCount() int {
	n := 0
	for _, v := range c.Values {
		if v.IsMissing() {
			n++
		}
	}
	return n
}

// Numbers returns the non-missing numeric cells of the column.
func (c *Column) Numbers() []float64 {
	out := make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		if v.Kind == KindNumber {
			out = append(out, v.Num)
		}
	}
	return out
}

// Table is an ordered set of equally long columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a Table from columns, in display order.
// Column names must be unique and all columns must have the same length.
func New(cols ...*Column) (*Table, error) {
	t := &Table{
		cols:  cols,
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		if c.Kind != KindNumber && c.Kind != KindText {
			return nil, fmt.Errorf("column %q has kind %s", c.Name, c.Kind)
		}
		if i == 0 {
			t.rows = len(c.Values)
		} else if len(c.Values) != t.rows {
			return nil, fmt.Errorf("column %q has %d values, want %d", c.Name, len(c.Values), t.rows)
		}
		t.index[c.Name] = i
	}
	return t, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(cols ...*Column) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Columns returns the columns in display order. Callers must not modify them.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// Names returns the column names in display order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Lookup is like Column but returns an apperr.ErrColumnNotFound error.
func (t *Table) Lookup(name string) (*Column, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, apperr.ColumnNotFound(name)
	}
	return c, nil
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []Value {
	row := make([]Value, len(t.cols))
	for j, c := range t.cols {
		row[j] = c.Values[i]
	}
	return row
}

// Strings returns row i in its textual form.
func (t *Table) Strings(i int) []string {
	row := make([]string, len(t.cols))
	for j, c := range t.cols {
		row[j] = c.Values[i].String()
	}
	return row
}

// Take returns a new Table holding the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	cols := make([]*Column, len(t.cols))
	for j, c := range t.cols {
		vals := make([]Value, len(rows))
		for k, r := range rows {
			vals[k] = c.Values[r]
		}
		cols[j] = &Column{Name: c.Name, Kind: c.Kind, Values: vals}
	}
	index := make(map[string]int, len(t.index))
	for k, v := range t.index {
		index[k] = v
	}
	return &Table{cols: cols, index: index, rows: len(rows)}
}

// Head returns the first n rows, or the table itself when it is shorter.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= t.rows {
		return t
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return t.Take(rows)
}
