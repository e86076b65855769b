// Command insightctl runs the dashboard pipeline from the command line:
// search, filter, chart and question a local CSV or Excel file, and manage
// the files stored for the web dashboard.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/logging"
)

var (
	// Global flags
	logLevel string
	sheet    string
	lenient  bool

	// Pipeline flags
	searchText   string
	searchColumn string
	filters      []string
	limit        int
)

var rootCmd = &cobra.Command{
	Use:   "insightctl",
	Short: "Explore CSV and Excel files from the command line",
	Long: `insightctl applies the dashboard pipeline to a local file.

Search and filters narrow the rows, charts group and sum them, and questions
are answered by the configured assistant. The files subcommands manage the
uploads stored for the web dashboard, using the same environment
configuration as the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		slog.SetDefault(logging.New(os.Stderr, logLevel, "text"))
		return nil
	},
}

var viewCmd = &cobra.Command{
	Use:   "view [file]",
	Short: "Print the searched and filtered rows of a file",
	Example: `  insightctl view sales.csv --search east
  insightctl view sales.xlsx --sheet Q1 --filter region=East --filter region=West`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

var describeCmd = &cobra.Command{
	Use:   "describe [file]",
	Short: "Print shape, missing values and numeric summaries of the matching rows",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

var sheetsCmd = &cobra.Command{
	Use:   "sheets [file]",
	Short: "List the sheets of an Excel file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSheets,
}

var chartCmd = &cobra.Command{
	Use:   "chart [file]",
	Short: "Group, sum and optionally render a chart",
	Long: `Groups the filtered rows by --x and sums --y per group. Without --y the
rows of each group are counted. Scatter charts plot --x against --y.

The series is printed as a table; --out also writes the chart page.`,
	Example: `  insightctl chart sales.csv --x region --y sales --kind pie --out pie.html`,
	Args:    cobra.ExactArgs(1),
	RunE:    runChart,
}

var askCmd = &cobra.Command{
	Use:   "ask [file] [question]",
	Short: "Ask the assistant about the filtered rows",
	Args:  cobra.ExactArgs(2),
	RunE:  runAsk,
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage the files stored for the dashboard",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored files, newest first",
	Args:  cobra.NoArgs,
	RunE:  runFilesList,
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete [name...]",
	Short: "Delete stored files by their stored name",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFilesDelete,
}

var filesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored file",
	Args:  cobra.NoArgs,
	RunE:  runFilesClear,
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload [path]",
	Short: "Store a local file for the dashboard",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesUpload,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&sheet, "sheet", "", "Excel sheet (default: first sheet)")
	rootCmd.PersistentFlags().BoolVar(&lenient, "lenient", false, `Read "$1,200" and "(5)" as numbers`)

	for _, cmd := range []*cobra.Command{viewCmd, describeCmd, chartCmd, askCmd} {
		cmd.Flags().StringVarP(&searchText, "search", "s", "", "Case-insensitive text to search for")
		cmd.Flags().StringVar(&searchColumn, "search-column", "", "Restrict the search to one column")
		cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Allowed value as column=value, repeatable")
	}
	viewCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Rows to print")

	chartCmd.Flags().StringVar(&chartKind, "kind", "bar", "Chart kind (bar, line, scatter, pie)")
	chartCmd.Flags().StringVar(&chartX, "x", "", "Group-by column (required)")
	chartCmd.Flags().StringVar(&chartY, "y", "", "Value column; empty counts rows")
	chartCmd.Flags().StringVar(&chartOrder, "order", "", "Point order (first_seen, value_desc; default by kind)")
	chartCmd.Flags().StringVarP(&chartOut, "out", "o", "", "Write the chart page to this file")
	chartCmd.MarkFlagRequired("x")

	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesUploadCmd)
	filesCmd.AddCommand(filesDeleteCmd)
	filesCmd.AddCommand(filesClearCmd)

	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(sheetsCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(filesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Debug("command failed", "error", err)
		if !core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		msg := core.MapError(err)
		fmt.Fprintf(os.Stderr, "Error: %s (%s)\n", msg.Message, msg.Code)
		if msg.Action != "" {
			fmt.Fprintln(os.Stderr, msg.Action)
		}
		os.Exit(1)
	}
}
