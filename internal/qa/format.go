package qa

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
	"github.com/olekukonko/tablewriter"

	"github.com/JonMunkholm/insights/internal/table"
)

// DefaultSampleRows is the number of leading rows sent with a question.
const DefaultSampleRows = 20

// Sample renders the first n rows of t as a plain text table. Missing cells
// render empty. n <= 0 selects DefaultSampleRows.
func Sample(t *table.Table, n int) string {
	if n <= 0 {
		n = DefaultSampleRows
	}
	head := t.Head(n)

	var b strings.Builder
	tw := tablewriter.NewWriter(&b)
	tw.SetHeader(head.Names())
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)

	rows := make([][]string, head.NumRows())
	for i := range rows {
		rows[i] = head.Strings(i)
	}
	tw.AppendBulk(rows)
	tw.Render()

	if t.NumRows() > head.NumRows() {
		fmt.Fprintf(&b, "(first %d of %d rows)\n", head.NumRows(), t.NumRows())
	}
	return b.String()
}

var answerPolicy = bluemonday.UGCPolicy()

// RenderAnswer converts a Markdown answer to sanitized HTML.
func RenderAnswer(answer string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	out := markdown.ToHTML([]byte(answer), p, r)
	return string(answerPolicy.SanitizeBytes(out))
}
