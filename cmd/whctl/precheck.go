package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/warehouse/internal/application"
	"github.com/JonMunkholm/warehouse/internal/config"
	"github.com/JonMunkholm/warehouse/internal/importer"
)

// connect loads configuration from the environment and opens the database.
func connect(ctx context.Context) (*application.Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return application.New(ctx, cfg)
}

func newPrecheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "precheck FILE",
		Short: "List pallet numbers and SKUs in a sheet that already exist",
		Long: `precheck looks up the pallet numbers and SKUs of a sheet in the database.
Rows using them will fail on import. The check is advisory: values created
after it runs are only caught at import time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sh, err := loadSheet(args[0], opts)
			if err != nil {
				return err
			}

			app, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			keys, err := app.Service.Precheck(cmd.Context(), sh.file.Rows, sh.mapping)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), keys)
			}
			printExisting(cmd, keys)
			return nil
		},
	}
}

func printExisting(cmd *cobra.Command, keys importer.ExistingKeys) {
	out := cmd.OutOrStdout()
	if len(keys.Pallets) == 0 && len(keys.SKUs) == 0 {
		fmt.Fprintln(out, passStyle.Render("No conflicts found"))
		return
	}
	if len(keys.Pallets) > 0 {
		fmt.Fprintf(out, "%s %s\n", failStyle.Render("Existing pallet numbers:"), strings.Join(keys.Pallets, ", "))
	}
	if len(keys.SKUs) > 0 {
		fmt.Fprintf(out, "%s %s\n", failStyle.Render("Existing SKUs:"), strings.Join(keys.SKUs, ", "))
	}
}
