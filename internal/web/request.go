package web

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/pipeline"
)

// Query parameters of a view request. Every page, chart, export and
// question carries the whole request, so no view state lives on the server.
//
//	sheet        Excel sheet
//	q, qcol      search text and optional column
//	f.<column>   allowed values of a column, repeatable
//	chart        bar, line, scatter or pie; empty for no chart
//	x, y         group-by and value columns; empty y counts rows
//	order        first_seen or value_desc; empty for automatic
const (
	paramSheet        = "sheet"
	paramSearch       = "q"
	paramSearchColumn = "qcol"
	paramChart        = "chart"
	paramGroupBy      = "x"
	paramValue        = "y"
	paramOrder        = "order"
	filterPrefix      = "f."
)

// parseViewRequest builds the request for file from query values.
func parseViewRequest(file string, q url.Values) (core.ViewRequest, error) {
	req := core.ViewRequest{
		File:  file,
		Sheet: strings.TrimSpace(q.Get(paramSheet)),
		Request: pipeline.Request{
			Search: pipeline.SearchQuery{
				Text:   q.Get(paramSearch),
				Column: q.Get(paramSearchColumn),
			},
		},
	}

	for key, values := range q {
		col, ok := strings.CutPrefix(key, filterPrefix)
		if !ok || col == "" {
			continue
		}
		for _, v := range values {
			if v == "" {
				continue
			}
			if req.Request.Filters == nil {
				req.Request.Filters = pipeline.FilterSpec{}
			}
			req.Request.Filters[col] = append(req.Request.Filters[col], v)
		}
	}

	chart, err := parseChart(q)
	if err != nil {
		return core.ViewRequest{}, badRequest(err)
	}
	req.Request.Chart = chart
	return req, nil
}

func parseChart(q url.Values) (*pipeline.ChartRequest, error) {
	raw := q.Get(paramChart)
	if raw == "" {
		return nil, nil
	}
	kind, err := pipeline.ParseChartKind(raw)
	if err != nil {
		return nil, err
	}
	return pipeline.NewChartRequest(kind, q.Get(paramGroupBy), q.Get(paramValue), pipeline.Order(q.Get(paramOrder)))
}

// encodeViewRequest is the inverse of parseViewRequest. Filter columns are
// written in name order so equal requests encode equally.
func encodeViewRequest(req core.ViewRequest) url.Values {
	q := url.Values{}
	if req.Sheet != "" {
		q.Set(paramSheet, req.Sheet)
	}
	if req.Request.Search.Text != "" {
		q.Set(paramSearch, req.Request.Search.Text)
	}
	if req.Request.Search.Column != "" {
		q.Set(paramSearchColumn, req.Request.Search.Column)
	}

	cols := make([]string, 0, len(req.Request.Filters))
	for col := range req.Request.Filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		for _, v := range req.Request.Filters[col] {
			q.Add(filterPrefix+col, v)
		}
	}

	if c := req.Request.Chart; c != nil {
		q.Set(paramChart, string(c.Kind))
		q.Set(paramGroupBy, c.GroupBy)
		if c.Aggregation != pipeline.AggCount && c.Value != "" {
			q.Set(paramValue, c.Value)
		}
		if c.Order != pipeline.OrderAuto {
			q.Set(paramOrder, string(c.Order))
		}
	}
	return q
}

// fileParam returns the decoded {name} route parameter.
func fileParam(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		return decoded
	}
	return name
}

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
