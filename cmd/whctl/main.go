// Package main provides whctl, a command line front end to the inventory
// import pipeline. It parses and maps sheets locally and, for precheck and
// import, talks to the same PostgreSQL database as the server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/warehouse/internal/importer"
	"github.com/JonMunkholm/warehouse/internal/logging"
)

// Styles for output
var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

// options are the persistent flags shared by every command.
type options struct {
	jsonOutput  bool
	logLevel    string
	mappingFile string
	profile     string
	maxSize     int64
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "whctl",
		Short: "Import warehouse inventory sheets",
		Long: `whctl runs the inventory import pipeline from the command line.

Examples:
  whctl map stock.xlsx                 # Show how columns map to fields
  whctl precheck stock.csv             # List pallet numbers and SKUs already stored
  whctl import stock.csv --dry-run     # Validate every row without writing
  whctl import stock.csv               # Import into the configured database
  whctl schema | psql "$DATABASE_URL"  # Print the database schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
	}

	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&opts.mappingFile, "mapping", "m", "", "JSON file with a column mapping to use instead of auto-mapping")
	root.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "", "Field catalog to map against (default inventory)")
	root.PersistentFlags().Int64Var(&opts.maxSize, "max-size", 20<<20, "Maximum file size in bytes")

	root.AddCommand(newMapCmd(opts))
	root.AddCommand(newPrecheckCmd(opts))
	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newSchemaCmd())
	return root
}

func main() {
	// Settings for precheck and import come from the environment, as for the server.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		printError(root.ErrOrStderr(), err)
		stop()
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, failStyle.Render("Error: "+err.Error()))
	if importer.IsUserFacing(err) {
		fmt.Fprintln(w, mutedStyle.Render(importer.FormatUserError(err)))
	}
}
