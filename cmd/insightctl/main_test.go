package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/insights/internal/pipeline"
)

const salesCSV = "region,product,sales\nEast,Widget,10\nWest,Gadget,5\nEast,Gadget,3\n,Widget,7\n"

// resetFlags restores the package flags after a test changes them.
func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		sheet, lenient = "", false
		searchText, searchColumn, filters, limit = "", "", nil, 20
		chartKind, chartX, chartY, chartOrder, chartOut = "bar", "", "", "", ""
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func capture() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	return cmd, &out
}

func TestParseFilters(t *testing.T) {
	spec, err := parseFilters([]string{"region=East", "region=West", "note=a=b", "product="})
	require.NoError(t, err)
	assert.Equal(t, pipeline.FilterSpec{
		"region":  {"East", "West"},
		"note":    {"a=b"},
		"product": {""},
	}, spec)

	spec, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, spec)

	_, err = parseFilters([]string{"region"})
	assert.Error(t, err)
	_, err = parseFilters([]string{"=East"})
	assert.Error(t, err)
}

func TestRunView(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "sales.csv", salesCSV)

	searchText = "east"
	limit = 1
	cmd, out := capture()
	require.NoError(t, runView(cmd, []string{path}))

	assert.Contains(t, out.String(), "Widget")
	assert.NotContains(t, out.String(), "West")
	assert.Contains(t, out.String(), "2 of 4 rows match, first 1 shown")
}

func TestRunView_Filter(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "sales.csv", salesCSV)

	filters = []string{"product=Gadget"}
	cmd, out := capture()
	require.NoError(t, runView(cmd, []string{path}))
	assert.Contains(t, out.String(), "2 of 4 rows match")
}

func TestRunView_UnknownFilterColumn(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "sales.csv", salesCSV)

	filters = []string{"city=Oslo"}
	cmd, _ := capture()
	assert.Error(t, runView(cmd, []string{path}))
}

func TestRunDescribe(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "sales.csv", salesCSV)

	cmd, out := capture()
	require.NoError(t, runDescribe(cmd, []string{path}))

	s := out.String()
	assert.Contains(t, s, "4 rows, 3 columns")
	assert.Contains(t, s, "region")
	assert.Contains(t, s, "mean")
	assert.Contains(t, s, "6.25")
}

func TestRunDescribe_MatchingRowsOnly(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "sales.csv", salesCSV)

	filters = []string{"region=East"}
	cmd, out := capture()
	require.NoError(t, runDescribe(cmd, []string{path}))

	s := out.String()
	assert.Contains(t, s, "2 rows, 3 columns")
	assert.Contains(t, s, "6.5")
}

func TestRunChart(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "sales.csv", salesCSV)

	chartX, chartY = "region", "sales"
	chartOut = filepath.Join(t.TempDir(), "chart.html")
	cmd, out := capture()
	require.NoError(t, runChart(cmd, []string{path}))

	s := out.String()
	assert.Contains(t, s, "East")
	assert.Contains(t, s, "13")
	assert.Contains(t, s, "(blank)")
	assert.Contains(t, s, "chart written to")

	page, err := os.ReadFile(chartOut)
	require.NoError(t, err)
	assert.Contains(t, string(page), "echarts")
}

func TestRunChart_TextValueColumn(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "sales.csv", salesCSV)

	chartX, chartY = "region", "product"
	cmd, _ := capture()
	assert.Error(t, runChart(cmd, []string{path}))
}

func TestRunSheets_CSV(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "sales.csv", salesCSV)

	cmd, out := capture()
	require.NoError(t, runSheets(cmd, []string{path}))
	assert.Contains(t, out.String(), "no sheets")
}

func TestFilesCommands(t *testing.T) {
	resetFlags(t)
	t.Setenv("STORAGE_BACKEND", "fs")
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("QA_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	path := writeFile(t, "sales.csv", salesCSV)

	cmd, out := capture()
	require.NoError(t, runFilesUpload(cmd, []string{path}))
	assert.Contains(t, out.String(), "_sales.csv")

	cmd, out = capture()
	require.NoError(t, runFilesList(cmd, nil))
	assert.Contains(t, out.String(), "sales.csv")

	cmd, out = capture()
	require.NoError(t, runFilesClear(cmd, nil))
	assert.Contains(t, out.String(), "deleted 1 files")
}
