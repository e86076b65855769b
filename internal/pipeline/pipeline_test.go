package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/insights/internal/apperr"
	"github.com/JonMunkholm/insights/internal/table"
)

// sales is the three-row table used throughout: East 10, West 5, East 3.
func sales() *table.Table {
	return table.MustNew(
		&table.Column{Name: "region", Kind: table.KindText, Values: []table.Value{
			table.Text("East"), table.Text("West"), table.Text("East"),
		}},
		&table.Column{Name: "sales", Kind: table.KindNumber, Values: []table.Value{
			table.Number(10), table.Number(5), table.Number(3),
		}},
	)
}

// wide adds a second text column and some missing cells.
func wide() *table.Table {
	return table.MustNew(
		&table.Column{Name: "region", Kind: table.KindText, Values: []table.Value{
			table.Text("East"), table.Text("West"), table.Text("East"), table.Missing(), table.Text("North"),
		}},
		&table.Column{Name: "rep", Kind: table.KindText, Values: []table.Value{
			table.Text("Ann"), table.Text("Bob"), table.Text("Cy"), table.Text("Ann"), table.Missing(),
		}},
		&table.Column{Name: "sales", Kind: table.KindNumber, Values: []table.Value{
			table.Number(10), table.Number(5), table.Missing(), table.Number(7), table.Number(2.5),
		}},
	)
}

func column(t *testing.T, tbl *table.Table, name string) []string {
	t.Helper()
	c, ok := tbl.Column(name)
	require.True(t, ok, "column %q", name)
	out := make([]string, len(c.Values))
	for i, v := range c.Values {
		out[i] = v.String()
	}
	return out
}

// ============================================================================
// Search
// ============================================================================

func TestSearch_CaseInsensitive(t *testing.T) {
	got, err := Search(sales(), SearchQuery{Text: "east"})
	require.NoError(t, err)

	assert.Equal(t, 2, got.NumRows())
	assert.Equal(t, []string{"East", "East"}, column(t, got, "region"))
}

func TestSearch_EmptyQueryIsIdentity(t *testing.T) {
	in := sales()
	got, err := Search(in, SearchQuery{})
	require.NoError(t, err)
	assert.Same(t, in, got)
}

func TestSearch_MatchesNumbersByText(t *testing.T) {
	got, err := Search(wide(), SearchQuery{Text: "2.5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"North"}, column(t, got, "region"))
}

func TestSearch_MissingNeverMatches(t *testing.T) {
	// Common spellings of missing values in source files.
	for _, q := range []string{"nan", "none", "<na>"} {
		got, err := Search(wide(), SearchQuery{Text: q})
		require.NoError(t, err)
		assert.Equal(t, 0, got.NumRows(), "query %q", q)
	}
}

func TestSearch_SingleColumn(t *testing.T) {
	got, err := Search(wide(), SearchQuery{Text: "ann", Column: "rep"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumRows())

	got, err = Search(wide(), SearchQuery{Text: "ann", Column: "region"})
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumRows())

	_, err = Search(wide(), SearchQuery{Text: "ann", Column: "nope"})
	assert.ErrorIs(t, err, apperr.ErrColumnNotFound)
}

func TestSearch_Idempotent(t *testing.T) {
	for _, q := range []string{"e", "EAST", "a", "5", "zzz"} {
		once, err := Search(wide(), SearchQuery{Text: q})
		require.NoError(t, err)
		twice, err := Search(once, SearchQuery{Text: q})
		require.NoError(t, err)

		assert.Equal(t, once.NumRows(), twice.NumRows(), "query %q", q)
		for i := 0; i < once.NumRows(); i++ {
			assert.Equal(t, once.Strings(i), twice.Strings(i))
		}
	}
}

func TestSearch_DoesNotMutateInput(t *testing.T) {
	in := wide()
	before := make([][]string, in.NumRows())
	for i := range before {
		before[i] = in.Strings(i)
	}

	_, err := Search(in, SearchQuery{Text: "east"})
	require.NoError(t, err)

	for i := range before {
		assert.Equal(t, before[i], in.Strings(i))
	}
}

// ============================================================================
// FilterColumns
// ============================================================================

func TestFilterColumns_SingleValue(t *testing.T) {
	got, err := FilterColumns(sales(), FilterSpec{"region": {"West"}})
	require.NoError(t, err)

	require.Equal(t, 1, got.NumRows())
	assert.Equal(t, []string{"West", "5"}, got.Strings(0))
}

func TestFilterColumns_EmptySetImposesNoConstraint(t *testing.T) {
	in := sales()
	got, err := FilterColumns(in, FilterSpec{"region": nil, "unknown": {}})
	require.NoError(t, err)
	assert.Same(t, in, got)
}

func TestFilterSpec_Active(t *testing.T) {
	assert.False(t, FilterSpec(nil).Active())
	assert.False(t, FilterSpec{"region": nil, "rep": {}}.Active())
	assert.True(t, FilterSpec{"region": nil, "rep": {"Ann"}}.Active())
}

func TestFilterColumns_UnknownColumn(t *testing.T) {
	_, err := FilterColumns(sales(), FilterSpec{"country": {"US"}})
	assert.ErrorIs(t, err, apperr.ErrColumnNotFound)
}

func TestFilterColumns_NumericNormalization(t *testing.T) {
	got, err := FilterColumns(sales(), FilterSpec{"sales": {"10.0", "3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "3"}, column(t, got, "sales"))
}

func TestFilterColumns_MissingNeverMatches(t *testing.T) {
	got, err := FilterColumns(wide(), FilterSpec{"region": {"", "East"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"East", "East"}, column(t, got, "region"))
}

func TestFilterColumns_Monotonic(t *testing.T) {
	specs := []FilterSpec{
		{},
		{"region": {"East"}},
		{"region": {"East", "West", "North", "South"}},
		{"rep": {"Ann"}, "sales": {"7", "10"}},
		{"sales": {"999"}},
	}
	in := wide()
	for _, spec := range specs {
		got, err := FilterColumns(in, spec)
		require.NoError(t, err)
		assert.LessOrEqual(t, got.NumRows(), in.NumRows(), "spec %v", spec)
	}
}

func TestFilterColumns_ConjunctionLaw(t *testing.T) {
	sa := []string{"East", "West"}
	sb := []string{"Ann", "Bob"}

	both, err := FilterColumns(wide(), FilterSpec{"region": sa, "rep": sb})
	require.NoError(t, err)

	aThenB, err := FilterColumns(wide(), FilterSpec{"region": sa})
	require.NoError(t, err)
	aThenB, err = FilterColumns(aThenB, FilterSpec{"rep": sb})
	require.NoError(t, err)

	bThenA, err := FilterColumns(wide(), FilterSpec{"rep": sb})
	require.NoError(t, err)
	bThenA, err = FilterColumns(bThenA, FilterSpec{"region": sa})
	require.NoError(t, err)

	require.Equal(t, 2, both.NumRows())
	for _, other := range []*table.Table{aThenB, bThenA} {
		require.Equal(t, both.NumRows(), other.NumRows())
		for i := 0; i < both.NumRows(); i++ {
			assert.Equal(t, both.Strings(i), other.Strings(i))
		}
	}
}

func TestFilterOptions(t *testing.T) {
	opts := FilterOptions(wide(), 3)
	require.Len(t, opts, 3)

	assert.Equal(t, "region", opts[0].Column)
	assert.Equal(t, 3, opts[0].Distinct)
	assert.False(t, opts[0].Offered, "3 distinct values is not below the threshold of 3")
	assert.Nil(t, opts[0].Values)

	assert.Equal(t, "rep", opts[1].Column)
	assert.False(t, opts[1].Offered)

	assert.Equal(t, "sales", opts[2].Column)
	assert.False(t, opts[2].Offered)

	opts = FilterOptions(wide(), 0)
	assert.True(t, opts[0].Offered)
	assert.Equal(t, []string{"East", "West", "North"}, opts[0].Values)
	assert.Equal(t, []string{"10", "5", "7", "2.5"}, opts[2].Values)
}

func TestFilterOptions_OverThresholdStillFilterable(t *testing.T) {
	opts := FilterOptions(wide(), 2)
	require.False(t, opts[1].Offered)

	got, err := FilterColumns(wide(), FilterSpec{"rep": {"Cy"}})
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumRows())
}

// ============================================================================
// Aggregate
// ============================================================================

func TestAggregate_FirstSeenOrder(t *testing.T) {
	got, err := Aggregate(sales(), "region", "sales")
	require.NoError(t, err)

	assert.Equal(t, []Point{{Key: "East", Value: 13}, {Key: "West", Value: 5}}, got.Points)
	assert.Equal(t, AggSum, got.Aggregation)
}

func TestAggregate_NonNumericValueColumn(t *testing.T) {
	got, err := Aggregate(sales(), "region", "region")
	assert.ErrorIs(t, err, apperr.ErrInvalidColumnKind)
	assert.Nil(t, got)
}

func TestAggregate_NumericGroupBy(t *testing.T) {
	_, err := Aggregate(sales(), "sales", "sales")
	assert.ErrorIs(t, err, apperr.ErrInvalidColumnKind)
}

func TestAggregate_ColumnNotFound(t *testing.T) {
	_, err := Aggregate(sales(), "country", "sales")
	assert.ErrorIs(t, err, apperr.ErrColumnNotFound)

	_, err = Aggregate(sales(), "region", "revenue")
	assert.ErrorIs(t, err, apperr.ErrColumnNotFound)
}

func TestAggregate_MissingKeysAndValues(t *testing.T) {
	got, err := Aggregate(wide(), "region", "sales")
	require.NoError(t, err)

	assert.Equal(t, []Point{
		{Key: "East", Value: 10},
		{Key: "West", Value: 5},
		{Key: "North", Value: 2.5},
		{Value: 7, Missing: true},
	}, got.Points)
}

func TestAggregate_SumInvariant(t *testing.T) {
	tables := map[string]*table.Table{"sales": sales(), "wide": wide()}
	for name, tbl := range tables {
		series, err := Aggregate(tbl, "region", "sales")
		require.NoError(t, err)

		col, _ := tbl.Column("sales")
		var want float64
		for _, f := range col.Numbers() {
			want += f
		}
		assert.InDelta(t, want, series.Total(), 1e-9, name)
	}

	filtered, err := FilterColumns(wide(), FilterSpec{"rep": {"Ann", "Bob"}})
	require.NoError(t, err)
	series, err := Aggregate(filtered, "region", "sales")
	require.NoError(t, err)
	assert.InDelta(t, 22.0, series.Total(), 1e-9)
}

func TestSeriesSorted(t *testing.T) {
	s := &Series{Points: []Point{{Key: "a", Value: 1}, {Key: "b", Value: 3}, {Key: "c", Value: 1}, {Key: "d", Value: 2}}}

	desc := s.Sorted(OrderValueDesc)
	assert.Equal(t, []string{"b", "d", "a", "c"}, desc.Keys())
	assert.Equal(t, []string{"a", "b", "c", "d"}, s.Keys(), "input must not be reordered")

	assert.Equal(t, []string{"a", "b", "c", "d"}, s.Sorted(OrderFirstSeen).Keys())
}

func TestCountValues(t *testing.T) {
	got, err := CountValues(wide(), "rep")
	require.NoError(t, err)
	assert.Equal(t, []Point{{Key: "Ann", Value: 2}, {Key: "Bob", Value: 1}, {Key: "Cy", Value: 1}}, got.Points)
}

func TestPrepare_CountOrder(t *testing.T) {
	tbl := table.MustNew(&table.Column{Name: "rep", Kind: table.KindText, Values: []table.Value{
		table.Text("Bob"), table.Text("Ann"), table.Text("Ann"), table.Text("Cy"),
	}})

	tests := []struct {
		order Order
		want  []string
	}{
		{OrderAuto, []string{"Ann", "Bob", "Cy"}},
		{OrderValueDesc, []string{"Ann", "Bob", "Cy"}},
		{OrderFirstSeen, []string{"Bob", "Ann", "Cy"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			c, err := NewChartRequest(ChartBar, "rep", "", tt.order)
			require.NoError(t, err)
			got, err := Prepare(tbl, *c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Keys())
		})
	}
}

func TestPoints(t *testing.T) {
	got, err := Points(wide(), "rep", "sales")
	require.NoError(t, err)
	assert.Equal(t, []Point{{Key: "Ann", Value: 10}, {Key: "Bob", Value: 5}, {Key: "Ann", Value: 7}}, got.Points)

	_, err = Points(wide(), "sales", "rep")
	assert.ErrorIs(t, err, apperr.ErrInvalidColumnKind)
}

// ============================================================================
// Run
// ============================================================================

func TestRun_FullRequest(t *testing.T) {
	res, err := Run(wide(), Request{
		Search:  SearchQuery{Text: "a"}, // rows 0, 2 and 3
		Filters: FilterSpec{"region": {"East", "West"}},
		Chart:   &ChartRequest{GroupBy: "region", Value: "sales", Aggregation: AggSum, Kind: ChartBar},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"East", "East"}, column(t, res.Table, "region"))
	require.NotNil(t, res.Series)
	assert.Equal(t, []Point{{Key: "East", Value: 10}}, res.Series.Points)
}

func TestRun_PieAutoOrder(t *testing.T) {
	tbl := table.MustNew(
		&table.Column{Name: "k", Kind: table.KindText, Values: []table.Value{table.Text("x"), table.Text("y")}},
		&table.Column{Name: "v", Kind: table.KindNumber, Values: []table.Value{table.Number(1), table.Number(9)}},
	)

	res, err := Run(tbl, Request{Chart: &ChartRequest{GroupBy: "k", Value: "v", Kind: ChartPie}})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, res.Series.Keys())

	res, err = Run(tbl, Request{Chart: &ChartRequest{GroupBy: "k", Value: "v", Kind: ChartPie, Order: OrderFirstSeen}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, res.Series.Keys())

	res, err = Run(tbl, Request{Chart: &ChartRequest{GroupBy: "k", Value: "v", Kind: ChartBar}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, res.Series.Keys())
}

func TestRun_ErrorsAbortWithoutResult(t *testing.T) {
	res, err := Run(sales(), Request{Chart: &ChartRequest{GroupBy: "region", Value: "region", Kind: ChartBar}})
	assert.ErrorIs(t, err, apperr.ErrInvalidColumnKind)
	assert.Nil(t, res)
}

func TestParseChartKind(t *testing.T) {
	k, err := ParseChartKind("Pie")
	require.NoError(t, err)
	assert.Equal(t, ChartPie, k)

	k, err = ParseChartKind("")
	require.NoError(t, err)
	assert.Equal(t, ChartBar, k)

	_, err = ParseChartKind("donut")
	assert.Error(t, err)
}

func TestNewChartRequest(t *testing.T) {
	tests := []struct {
		name    string
		kind    ChartKind
		groupBy string
		value   string
		order   Order
		want    Aggregation
		wantErr bool
	}{
		{name: "sum", kind: ChartBar, groupBy: "region", value: "sales", want: AggSum},
		{name: "count without value", kind: ChartPie, groupBy: "region", want: AggCount},
		{name: "scatter points", kind: ChartScatter, groupBy: "sales", value: "sales", want: AggNone},
		{name: "scatter needs value", kind: ChartScatter, groupBy: "sales", wantErr: true},
		{name: "group-by required", kind: ChartBar, value: "sales", wantErr: true},
		{name: "explicit order", kind: ChartLine, groupBy: "region", value: "sales", order: OrderValueDesc, want: AggSum},
		{name: "unknown order", kind: ChartBar, groupBy: "region", order: "random", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChartRequest(tt.kind, tt.groupBy, tt.value, tt.order)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Aggregation)
			assert.Equal(t, tt.order, c.Order)
			assert.Equal(t, tt.kind, c.Kind)
		})
	}
}

// ============================================================================
// Describe
// ============================================================================

func TestDescribe(t *testing.T) {
	in, err := Describe(wide())
	require.NoError(t, err)

	assert.Equal(t, 5, in.Rows)
	assert.Equal(t, 3, in.Columns)
	assert.Equal(t, []ColumnMissing{{"region", 1}, {"rep", 1}, {"sales", 1}}, in.Missing)

	require.Len(t, in.Numeric, 1)
	s := in.Numeric[0]
	assert.Equal(t, "sales", s.Column)
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 6.125, s.Mean, 1e-9)
	assert.Equal(t, 2.5, s.Min)
	assert.Equal(t, 10.0, s.Max)
	assert.InDelta(t, 6.0, s.Median, 1e-9)
	assert.True(t, s.HasStd)
}

func TestDescribe_LinearQuartiles(t *testing.T) {
	tbl := table.MustNew(&table.Column{Name: "n", Kind: table.KindNumber, Values: []table.Value{
		table.Number(4), table.Number(1), table.Number(3), table.Number(2),
	}})

	in, err := Describe(tbl)
	require.NoError(t, err)
	s := in.Numeric[0]
	assert.InDelta(t, 1.75, s.Q25, 1e-9)
	assert.InDelta(t, 2.5, s.Median, 1e-9)
	assert.InDelta(t, 3.25, s.Q75, 1e-9)
}

func TestDescribe_SingleValue(t *testing.T) {
	tbl := table.MustNew(&table.Column{Name: "n", Kind: table.KindNumber, Values: []table.Value{table.Number(7)}})

	in, err := Describe(tbl)
	require.NoError(t, err)
	s := in.Numeric[0]
	assert.Equal(t, 7.0, s.Q25)
	assert.Equal(t, 7.0, s.Median)
	assert.Equal(t, 7.0, s.Q75)
	assert.False(t, s.HasStd)
}

func TestDescribe_EmptyNumericColumn(t *testing.T) {
	tbl := table.MustNew(&table.Column{Name: "n", Kind: table.KindNumber, Values: []table.Value{table.Missing()}})

	in, err := Describe(tbl)
	require.NoError(t, err)
	require.Len(t, in.Numeric, 1)
	assert.Equal(t, 0, in.Numeric[0].Count)
	assert.False(t, in.Numeric[0].HasStd)
}
