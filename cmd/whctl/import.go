package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

// errRowsFailed makes the exit status non-zero when any row failed.
var errRowsFailed = errors.New("some rows failed")

func newImportCmd(opts *options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a sheet into the inventory",
		Long: `import maps a sheet and writes every row in its own transaction. A failed
row is reported and skipped; the others are still imported.

With --dry-run the rows are only validated and no database is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sh, err := loadSheet(args[0], opts)
			if err != nil {
				return err
			}
			if err := sh.report.Err(); err != nil {
				return err
			}
			rows := importer.ApplyMapping(sh.file.Rows, sh.mapping)

			var res importer.Result
			if dryRun {
				res = importer.NewExecutor(nil, nil, nil, importer.ExecutorOptions{}).Validate(rows)
			} else {
				if res, err = runImport(cmd.Context(), cmd.ErrOrStderr(), rows, opts.jsonOutput); err != nil {
					return err
				}
			}

			if opts.jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), res, dryRun)
			}

			if res.Failed > 0 {
				return fmt.Errorf("%w: %d of %d", errRowsFailed, res.Failed, res.Total())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate rows without writing to the database")
	return cmd
}

// runImport starts a run and waits for it. Interrupting the command cancels
// the run; rows not yet processed are reported as cancelled.
func runImport(ctx context.Context, progress io.Writer, rows []importer.MappedRow, quiet bool) (importer.Result, error) {
	if len(rows) == 0 {
		return importer.Result{}, importer.ErrEmptyImport
	}

	app, err := connect(ctx)
	if err != nil {
		return importer.Result{}, err
	}
	defer app.Close()

	id, err := app.Service.StartRun(ctx, rows)
	if err != nil {
		return importer.Result{}, err
	}

	printed := make(chan struct{})
	if updates, err := app.Service.SubscribeProgress(id); err == nil && !quiet {
		go func() {
			defer close(printed)
			for u := range updates {
				fmt.Fprintf(progress, "\rImporting %d rows... %3d%%", len(rows), u.Percent)
			}
			fmt.Fprintln(progress)
		}()
	} else {
		close(printed)
	}

	res, err := app.Service.Wait(ctx, id)
	if err != nil {
		// Interrupted: stop the run and collect what it finished.
		_ = app.Service.Cancel(id)
		if res, err = app.Service.Wait(context.Background(), id); err != nil {
			return importer.Result{}, err
		}
	}
	<-printed
	return *res, nil
}

func printResult(w io.Writer, res importer.Result, dryRun bool) {
	verb := "Import completed"
	if dryRun {
		verb = "Validation completed"
	}

	summary := fmt.Sprintf("%s: %d succeeded, %d failed", verb, res.Success, res.Failed)
	if res.Failed > 0 {
		fmt.Fprintln(w, warnStyle.Render(summary))
	} else {
		fmt.Fprintln(w, passStyle.Render(summary))
	}

	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("row %d:", e.Row)), e.Error)
	}
}
