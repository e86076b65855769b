package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/insights/internal/chart"
	"github.com/JonMunkholm/insights/internal/config"
	"github.com/JonMunkholm/insights/internal/pipeline"
	"github.com/JonMunkholm/insights/internal/qa"
	"github.com/JonMunkholm/insights/internal/table"
)

// Chart flags
var (
	chartKind  string
	chartX     string
	chartY     string
	chartOrder string
	chartOut   string
)

// loadFile reads path with the global sheet and lenient flags.
func loadFile(path string) (*table.Table, error) {
	return table.Load(path, table.LoadOptions{Sheet: sheet, LenientNumbers: lenient})
}

// parseFilters turns repeated column=value flags into a filter spec.
func parseFilters(raw []string) (pipeline.FilterSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	spec := pipeline.FilterSpec{}
	for _, f := range raw {
		col, val, ok := strings.Cut(f, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("filter %q: want column=value", f)
		}
		spec[col] = append(spec[col], val)
	}
	return spec, nil
}

// filtered loads path and applies the search and filter flags.
func filtered(path string) (loaded, view *table.Table, err error) {
	loaded, err = loadFile(path)
	if err != nil {
		return nil, nil, err
	}
	spec, err := parseFilters(filters)
	if err != nil {
		return nil, nil, err
	}
	res, err := pipeline.Run(loaded, pipeline.Request{
		Search:  pipeline.SearchQuery{Text: searchText, Column: searchColumn},
		Filters: spec,
	})
	if err != nil {
		return nil, nil, err
	}
	return loaded, res.Table, nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	return tw
}

func runView(cmd *cobra.Command, args []string) error {
	loaded, view, err := filtered(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	head := view.Head(limit)
	tw := newTable(out, head.Names())
	for i := 0; i < head.NumRows(); i++ {
		tw.Append(head.Strings(i))
	}
	tw.Render()

	fmt.Fprintf(out, "%d of %d rows match", view.NumRows(), loaded.NumRows())
	if head.NumRows() < view.NumRows() {
		fmt.Fprintf(out, ", first %d shown", head.NumRows())
	}
	fmt.Fprintln(out)
	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	_, t, err := filtered(args[0])
	if err != nil {
		return err
	}
	in, err := pipeline.Describe(t)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d rows, %d columns\n\n", in.Rows, in.Columns)

	tw := newTable(out, []string{"column", "kind", "missing"})
	for i, c := range t.Columns() {
		tw.Append([]string{c.Name, c.Kind.String(), fmt.Sprint(in.Missing[i].Missing)})
	}
	tw.Render()

	if len(in.Numeric) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw = newTable(out, []string{"column", "count", "mean", "std", "min", "25%", "50%", "75%", "max"})
	for _, s := range in.Numeric {
		std := "-"
		if s.HasStd {
			std = table.FormatNumber(s.Std)
		}
		tw.Append([]string{
			s.Column, fmt.Sprint(s.Count), table.FormatNumber(s.Mean), std,
			table.FormatNumber(s.Min), table.FormatNumber(s.Q25), table.FormatNumber(s.Median),
			table.FormatNumber(s.Q75), table.FormatNumber(s.Max),
		})
	}
	tw.Render()
	return nil
}

func runSheets(cmd *cobra.Command, args []string) error {
	if format, err := table.FormatOf(args[0]); err != nil {
		return err
	} else if format != table.FormatExcel {
		fmt.Fprintln(cmd.OutOrStdout(), "CSV files have no sheets")
		return nil
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	names, err := table.SheetNames(f)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func runChart(cmd *cobra.Command, args []string) error {
	kind, err := pipeline.ParseChartKind(chartKind)
	if err != nil {
		return err
	}
	req, err := pipeline.NewChartRequest(kind, chartX, chartY, pipeline.Order(chartOrder))
	if err != nil {
		return err
	}
	_, view, err := filtered(args[0])
	if err != nil {
		return err
	}
	series, err := pipeline.Prepare(view, *req)
	if err != nil {
		return err
	}
	if err := chart.Validate(series, kind); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := newTable(out, []string{series.Label, series.ValueLabel})
	for _, p := range series.Points {
		key := p.Key
		if p.Missing {
			key = chart.MissingLabel
		}
		tw.Append([]string{key, table.FormatNumber(p.Value)})
	}
	tw.Render()

	if chartOut == "" {
		return nil
	}
	f, err := os.Create(chartOut)
	if err != nil {
		return err
	}
	renderErr := chart.NewRenderer("").Render(f, series, kind, chart.Options{Subtitle: filepath.Base(args[0])})
	if err := f.Close(); renderErr == nil {
		renderErr = err
	}
	if renderErr != nil {
		return renderErr
	}
	fmt.Fprintf(out, "chart written to %s\n", chartOut)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client, err := qa.NewClient(qa.Config{
		BaseURL:   cfg.QA.BaseURL,
		APIKey:    cfg.QA.APIKey,
		Model:     cfg.QA.Model,
		Timeout:   cfg.QA.Timeout,
		MaxTokens: cfg.QA.MaxTokens,
	}, nil)
	if err != nil {
		return err
	}

	_, view, err := filtered(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	answer, err := client.Ask(ctx, qa.Sample(view, cfg.QA.SampleRows), args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
