// Package chart renders reduced series as standalone HTML chart pages.
//
// Pages are produced with go-echarts and embedded by the dashboard in an
// iframe, so each render is a complete HTML document.
package chart

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/JonMunkholm/insights/internal/apperr"
	"github.com/JonMunkholm/insights/internal/pipeline"
)

// MissingLabel is the category label used for the group of rows whose key
// cell is missing.
const MissingLabel = "(blank)"

// DefaultAssetsHost is where go-echarts loads its scripts from unless
// configured otherwise.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Options tune a single render.
type Options struct {
	Title    string
	Subtitle string
	Width    string
	Height   string
}

// Renderer turns a series into an HTML chart page.
type Renderer struct {
	assetsHost string
	width      string
	height     string
}

// NewRenderer returns a Renderer loading the echarts script from assetsHost.
// An empty host selects DefaultAssetsHost.
func NewRenderer(assetsHost string) *Renderer {
	if assetsHost == "" {
		assetsHost = DefaultAssetsHost
	}
	return &Renderer{assetsHost: assetsHost, width: "100%", height: "480px"}
}

// AssetsHost returns the host the rendered pages load scripts from.
func (r *Renderer) AssetsHost() string {
	return r.assetsHost
}

// Validate reports whether s can be drawn as kind, without rendering it.
// Every failure wraps apperr.ErrInvalidChartInput.
func Validate(s *pipeline.Series, kind pipeline.ChartKind) error {
	if !knownKind(kind) {
		return apperr.InvalidChartInput("unknown chart kind %q", kind)
	}
	if s == nil || len(s.Points) == 0 {
		return apperr.InvalidChartInput("no data to chart")
	}
	for _, p := range s.Points {
		if math.IsInf(p.Value, 0) || math.IsNaN(p.Value) {
			return apperr.InvalidChartInput("%s has a non-finite value", label(p))
		}
	}
	if kind != pipeline.ChartPie {
		return nil
	}

	var total float64
	for _, p := range s.Points {
		if p.Value < 0 {
			return apperr.InvalidChartInput("pie slices cannot be negative (%s is %s)", label(p), formatValue(p.Value))
		}
		total += p.Value
	}
	if total == 0 {
		return apperr.InvalidChartInput("pie values sum to zero")
	}
	return nil
}

// Render writes an HTML page drawing s as kind. Input is validated first;
// nothing is written on a validation failure.
func (r *Renderer) Render(w io.Writer, s *pipeline.Series, kind pipeline.ChartKind, o Options) error {
	if err := Validate(s, kind); err != nil {
		return err
	}

	global := []charts.GlobalOpts{
		charts.WithInitializationOpts(r.page(o)),
		charts.WithTitleOpts(opts.Title{Title: title(s, kind, o), Subtitle: o.Subtitle}),
	}

	var err error
	switch kind {
	case pipeline.ChartBar:
		c := charts.NewBar()
		c.SetGlobalOptions(global...)
		c.SetXAxis(labels(s)).AddSeries(s.ValueLabel, barData(s))
		err = c.Render(w)
	case pipeline.ChartLine:
		c := charts.NewLine()
		c.SetGlobalOptions(global...)
		c.SetXAxis(labels(s)).AddSeries(s.ValueLabel, lineData(s))
		err = c.Render(w)
	case pipeline.ChartScatter:
		c := charts.NewScatter()
		c.SetGlobalOptions(global...)
		c.SetXAxis(labels(s)).AddSeries(s.ValueLabel, scatterData(s))
		err = c.Render(w)
	case pipeline.ChartPie:
		c := charts.NewPie()
		c.SetGlobalOptions(global...)
		c.AddSeries(s.ValueLabel, pieData(s))
		err = c.Render(w)
	}
	if err != nil {
		return fmt.Errorf("render %s chart: %w", kind, err)
	}
	return nil
}

func (r *Renderer) page(o Options) opts.Initialization {
	p := opts.Initialization{
		PageTitle:  title(nil, "", o),
		Width:      r.width,
		Height:     r.height,
		AssetsHost: r.assetsHost,
	}
	if o.Width != "" {
		p.Width = o.Width
	}
	if o.Height != "" {
		p.Height = o.Height
	}
	if p.PageTitle == "" {
		p.PageTitle = "Chart"
	}
	return p
}

func knownKind(kind pipeline.ChartKind) bool {
	for _, k := range pipeline.ChartKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func title(s *pipeline.Series, kind pipeline.ChartKind, o Options) string {
	if o.Title != "" || s == nil {
		return o.Title
	}
	switch {
	case kind == pipeline.ChartScatter:
		return fmt.Sprintf("%s vs %s", s.ValueLabel, s.Label)
	case s.Aggregation == pipeline.AggCount:
		return fmt.Sprintf("Count of %s", s.Label)
	default:
		return fmt.Sprintf("%s by %s", s.ValueLabel, s.Label)
	}
}

func label(p pipeline.Point) string {
	if p.Missing {
		return MissingLabel
	}
	return p.Key
}

func labels(s *pipeline.Series) []string {
	out := make([]string, len(s.Points))
	for i, p := range s.Points {
		out[i] = label(p)
	}
	return out
}

func barData(s *pipeline.Series) []opts.BarData {
	out := make([]opts.BarData, len(s.Points))
	for i, p := range s.Points {
		out[i] = opts.BarData{Name: label(p), Value: p.Value}
	}
	return out
}

func lineData(s *pipeline.Series) []opts.LineData {
	out := make([]opts.LineData, len(s.Points))
	for i, p := range s.Points {
		out[i] = opts.LineData{Name: label(p), Value: p.Value}
	}
	return out
}

func scatterData(s *pipeline.Series) []opts.ScatterData {
	out := make([]opts.ScatterData, len(s.Points))
	for i, p := range s.Points {
		out[i] = opts.ScatterData{Name: label(p), Value: p.Value}
	}
	return out
}

func pieData(s *pipeline.Series) []opts.PieData {
	out := make([]opts.PieData, len(s.Points))
	for i, p := range s.Points {
		out[i] = opts.PieData{Name: label(p), Value: p.Value}
	}
	return out
}

func formatValue(f float64) string {
	return fmt.Sprintf("%g", f)
}
