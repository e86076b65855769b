// Package templates holds the dashboard's templ components.
//
// Components are written in the .templ files; the _templ.go files are
// generated from them with `templ generate`.
package templates

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/pipeline"
	"github.com/JonMunkholm/insights/internal/storage"
	"github.com/JonMunkholm/insights/internal/table"
)

// HTMXSource is the script the pages load for partial updates.
const HTMXSource = "https://unpkg.com/htmx.org@1.9.12/dist/htmx.min.js"

const styles = `
body{font-family:system-ui,sans-serif;margin:0;color:#1f2933;background:#f5f7fa}
header{background:#243b53;color:#fff;padding:.75rem 1.5rem;display:flex;justify-content:space-between;align-items:center}
header a{color:#fff;text-decoration:none}
main{padding:1.5rem;max-width:1200px;margin:0 auto}
section{background:#fff;border-radius:6px;padding:1rem 1.25rem;margin-bottom:1.25rem;box-shadow:0 1px 2px rgba(0,0,0,.08)}
table{border-collapse:collapse;width:100%;font-size:.9rem}
th,td{border-bottom:1px solid #e4e7eb;padding:.35rem .5rem;text-align:left;white-space:nowrap}
th{background:#f0f4f8}
.scroll{overflow-x:auto;max-height:480px}
.alert{border-left:4px solid #d64545;background:#fde8e8;padding:.6rem .9rem;margin:.5rem 0}
.notice{border-left:4px solid #3ebd93;background:#e3f9e5;padding:.6rem .9rem;margin:.5rem 0}
.muted{color:#7b8794;font-size:.85rem}
.grid{display:grid;grid-template-columns:repeat(auto-fill,minmax(220px,1fr));gap:.75rem}
iframe{border:0;width:100%;height:500px}
label{display:block;font-size:.85rem;margin-bottom:.2rem}
`

// swapErrors lets htmx render error fragments instead of dropping them.
const swapErrors = `document.addEventListener("htmx:beforeSwap",function(e){if(e.detail.xhr.status>=400){e.detail.shouldSwap=true;e.detail.isError=false}})`

// headAssets is the inline stylesheet and htmx hook of every page.
func headAssets() templ.Component {
	return templ.Raw("<style>" + styles + "</style><script>" + swapErrors + "</script>")
}

// DashboardData is the landing page model.
type DashboardData struct {
	Files []storage.Entry

	Admin        bool
	AdminEnabled bool
	QAEnabled    bool

	MaxUploadBytes int64

	Flash string
	Error *core.UserMessage
}

// FileURL is the view page of a stored file.
func FileURL(name string) string {
	return "/files/" + url.PathEscape(name)
}

// ChartForm echoes the chart controls of the current request.
type ChartForm struct {
	Kind    string
	GroupBy string
	Value   string
	Order   string
}

// ViewData is the file view page model.
type ViewData struct {
	File   string
	Sheet  string
	Sheets []string

	Admin     bool
	QAEnabled bool

	Search   pipeline.SearchQuery
	Columns  []*table.Column
	Options  []pipeline.ColumnOptions
	Selected map[string]map[string]bool

	// Preview holds the first rows of the filtered view.
	Preview     *table.Table
	MatchedRows int
	TotalRows   int
	FilterError *core.UserMessage

	Chart      ChartForm
	ChartURL   string
	ChartError *core.UserMessage

	Insights *pipeline.Insights

	// Query is the encoded request, reused by export, chart and ask.
	Query     string
	ExportURL string
	AskURL    string
}

func (d ViewData) previewSummary() string {
	shown := 0
	if d.Preview != nil {
		shown = d.Preview.NumRows()
	}
	return fmt.Sprintf("Showing %d of %d matching rows (%d rows in file)", shown, d.MatchedRows, d.TotalRows)
}

// orderChoice is one entry of the chart order select.
type orderChoice struct {
	value string
	label string
}

var orderChoices = []orderChoice{
	{"", "Automatic"},
	{string(pipeline.OrderFirstSeen), "As in file"},
	{string(pipeline.OrderValueDesc), "Largest first"},
}

// numericCells are the mean to max cells of one summary row, blank when the
// column has no values.
func numericCells(s pipeline.NumericSummary) []string {
	cells := make([]string, 7)
	if s.Count == 0 {
		return cells
	}
	cells[0] = table.FormatNumber(s.Mean)
	if s.HasStd {
		cells[1] = table.FormatNumber(s.Std)
	}
	for i, v := range []float64{s.Min, s.Q25, s.Median, s.Q75, s.Max} {
		cells[i+2] = table.FormatNumber(v)
	}
	return cells
}

// AnswerData is one answered question.
type AnswerData struct {
	Question string
	HTML     string
	Rows     int
	Duration time.Duration
}

func (a AnswerData) footer() string {
	return fmt.Sprintf("Based on the first %d rows · %s", a.Rows, a.Duration.Round(time.Millisecond))
}

// formatBytes renders a size like "1.5 MB".
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
