package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/insights/internal/apperr"
	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/pipeline"
	"github.com/JonMunkholm/insights/internal/qa"
	"github.com/JonMunkholm/insights/internal/storage"
)

func TestParseViewRequest(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  core.ViewRequest
	}{
		{
			name:  "empty",
			query: "",
			want:  core.ViewRequest{File: "f.csv"},
		},
		{
			name:  "search and sheet",
			query: "sheet=Q1&q=east&qcol=region",
			want: core.ViewRequest{File: "f.csv", Sheet: "Q1", Request: pipeline.Request{
				Search: pipeline.SearchQuery{Text: "east", Column: "region"},
			}},
		},
		{
			name:  "filters skip empty values",
			query: "f.region=East&f.region=West&f.product=&f.=x",
			want: core.ViewRequest{File: "f.csv", Request: pipeline.Request{
				Filters: pipeline.FilterSpec{"region": {"East", "West"}},
			}},
		},
		{
			name:  "sum chart",
			query: "chart=bar&x=region&y=sales",
			want: core.ViewRequest{File: "f.csv", Request: pipeline.Request{
				Chart: &pipeline.ChartRequest{Kind: pipeline.ChartBar, GroupBy: "region", Value: "sales", Aggregation: pipeline.AggSum},
			}},
		},
		{
			name:  "count chart",
			query: "chart=pie&x=region&order=first_seen",
			want: core.ViewRequest{File: "f.csv", Request: pipeline.Request{
				Chart: &pipeline.ChartRequest{Kind: pipeline.ChartPie, GroupBy: "region", Aggregation: pipeline.AggCount, Order: pipeline.OrderFirstSeen},
			}},
		},
		{
			name:  "scatter",
			query: "chart=scatter&x=units&y=sales",
			want: core.ViewRequest{File: "f.csv", Request: pipeline.Request{
				Chart: &pipeline.ChartRequest{Kind: pipeline.ChartScatter, GroupBy: "units", Value: "sales", Aggregation: pipeline.AggNone},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := parseViewRequest("f.csv", q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseViewRequest_Invalid(t *testing.T) {
	for _, query := range []string{
		"chart=donut&x=region",
		"chart=bar",
		"chart=scatter&x=units",
		"chart=bar&x=region&order=random",
	} {
		t.Run(query, func(t *testing.T) {
			q, _ := url.ParseQuery(query)
			_, err := parseViewRequest("f.csv", q)
			require.Error(t, err)
			assert.ErrorIs(t, err, errInvalidRequest)
			assert.Equal(t, "REQ003", core.MapError(err).Code)
			assert.Equal(t, http.StatusBadRequest, statusFor(err))
		})
	}
}

func TestEncodeViewRequest_RoundTrip(t *testing.T) {
	raw := "chart=line&f.product=Gadget&f.region=East&f.region=West&order=value_desc&q=a+b&qcol=region&sheet=Q1&x=region&y=sales"
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)

	req, err := parseViewRequest("f.csv", q)
	require.NoError(t, err)
	assert.Equal(t, raw, encodeViewRequest(req).Encode())

	again, err := parseViewRequest("f.csv", encodeViewRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, again)
}

func TestEncodeViewRequest_CountChartOmitsValue(t *testing.T) {
	req := core.ViewRequest{Request: pipeline.Request{
		Chart: &pipeline.ChartRequest{Kind: pipeline.ChartBar, GroupBy: "region", Value: "ignored", Aggregation: pipeline.AggCount},
	}}
	assert.Equal(t, "chart=bar&x=region", encodeViewRequest(req).Encode())
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                    "/",
		"/files/a.csv?q=east": "/files/a.csv?q=east",
		"//evil.example":      "/",
		"/\\evil.example":     "/",
		"https://evil.com":    "/",
		"files":               "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeNext(in), in)
	}
}

func TestExportName(t *testing.T) {
	assert.Equal(t, "sales_filtered.csv", exportName("sales.xlsx"))
	assert.Equal(t, "q1 report_filtered.csv", exportName("q1 report.csv"))
	assert.Equal(t, "a_b_filtered.csv", exportName(`a"b.csv`))
	assert.Equal(t, "sales_filtered.csv", exportName(displayName("20250314_092753_sales.csv")))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("open: %w", storage.ErrNotFound), http.StatusNotFound},
		{storage.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{storage.ErrUnsupportedType, http.StatusBadRequest},
		{errNoFile, http.StatusBadRequest},
		{core.ErrUnauthorized, http.StatusUnauthorized},
		{apperr.ColumnNotFound("x"), http.StatusUnprocessableEntity},
		{qa.ErrDisabled, http.StatusServiceUnavailable},
		{core.ErrBusy, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
