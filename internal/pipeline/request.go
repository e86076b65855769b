// Package pipeline implements the per-request data pipeline of the
// dashboard: text search, column value filtering and the reductions that
// feed charts.
//
// Every function is a pure transform over *table.Table. Inputs are never
// modified; a request is re-evaluated from the loaded table each time.
//
//	loaded table -> Search -> FilterColumns -> Aggregate / CountValues / Points
package pipeline

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/insights/internal/table"
)

// ChartKind is the rendering kind requested for a series.
type ChartKind string

const (
	ChartBar     ChartKind = "bar"
	ChartLine    ChartKind = "line"
	ChartScatter ChartKind = "scatter"
	ChartPie     ChartKind = "pie"
)

// ChartKinds lists the supported kinds in menu order.
var ChartKinds = []ChartKind{ChartBar, ChartLine, ChartScatter, ChartPie}

// ParseChartKind parses a kind case-insensitively. Empty selects bar.
func ParseChartKind(s string) (ChartKind, error) {
	if s == "" {
		return ChartBar, nil
	}
	k := ChartKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ChartKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown chart kind %q", s)
}

// ChartRequest describes the reduction behind a chart.
type ChartRequest struct {
	// GroupBy is the category column (the x axis for scatter charts).
	GroupBy string

	// Value is the numeric column. Ignored for AggCount.
	Value string

	Aggregation Aggregation
	Kind        ChartKind
	Order       Order
}

// NewChartRequest builds a request from user choices. An empty value counts
// rows per group; scatter charts plot raw points and need a value column.
func NewChartRequest(kind ChartKind, groupBy, value string, order Order) (*ChartRequest, error) {
	if groupBy == "" {
		return nil, fmt.Errorf("chart needs a group-by column")
	}
	c := &ChartRequest{Kind: kind, GroupBy: groupBy, Value: value}

	switch {
	case kind == ChartScatter:
		if value == "" {
			return nil, fmt.Errorf("scatter chart needs a value column")
		}
		c.Aggregation = AggNone
	case value == "":
		c.Aggregation = AggCount
	default:
		c.Aggregation = AggSum
	}

	switch order {
	case OrderAuto, OrderFirstSeen, OrderValueDesc:
		c.Order = order
	default:
		return nil, fmt.Errorf("unknown order %q", order)
	}
	return c, nil
}

// EffectiveOrder resolves OrderAuto for the request's kind and aggregation.
func (c ChartRequest) EffectiveOrder() Order {
	if c.Order != OrderAuto {
		return c.Order
	}
	if c.Kind == ChartPie || c.Aggregation == AggCount {
		return OrderValueDesc
	}
	return OrderFirstSeen
}

// Request carries everything one dashboard interaction asks of the pipeline.
type Request struct {
	Search  SearchQuery
	Filters FilterSpec

	// Chart is nil when no chart is requested.
	Chart *ChartRequest
}

// Result is the outcome of Run.
type Result struct {
	// Table is the searched and filtered view.
	Table *table.Table

	// Series is set when the request asked for a chart.
	Series *Series
}

// Run evaluates req against t.
func Run(t *table.Table, req Request) (*Result, error) {
	view, err := Search(t, req.Search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	view, err = FilterColumns(view, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	res := &Result{Table: view}
	if req.Chart == nil {
		return res, nil
	}

	series, err := Prepare(view, *req.Chart)
	if err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	res.Series = series
	return res, nil
}

// Prepare reduces t to the series a chart request needs.
func Prepare(t *table.Table, c ChartRequest) (*Series, error) {
	var (
		series *Series
		err    error
	)
	switch {
	case c.Kind == ChartScatter:
		series, err = Points(t, c.GroupBy, c.Value)
	case c.Aggregation == AggCount:
		series, err = CountValues(t, c.GroupBy)
	default:
		series, err = Aggregate(t, c.GroupBy, c.Value)
	}
	if err != nil {
		return nil, err
	}
	return series.Sorted(c.EffectiveOrder()), nil
}
