package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

func newMapCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "map FILE",
		Short: "Show how a sheet's columns map to inventory fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sh, err := loadSheet(args[0], opts)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), struct {
					Headers          []string                 `json:"headers"`
					Rows             int                      `json:"rows"`
					Mapping          []importer.ColumnMapping `json:"mapping"`
					UnmappedRequired []string                 `json:"unmapped_required"`
				}{sh.file.Headers, len(sh.file.Rows), sh.mapping, sh.report.UnmappedRequired})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d columns, %d rows\n\n", boldStyle.Render(sh.file.FileName), len(sh.file.Headers), len(sh.file.Rows))

			targets := make(map[string]string, len(sh.mapping))
			for _, m := range sh.mapping {
				targets[m.Source] = m.Target
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, h := range sh.file.Headers {
				if t, ok := targets[h]; ok {
					fmt.Fprintf(tw, "%s\t->\t%s\n", h, passStyle.Render(t))
				} else {
					fmt.Fprintf(tw, "%s\t\t%s\n", h, mutedStyle.Render("(ignored)"))
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if len(sh.report.UnmappedRequired) > 0 {
				fmt.Fprintf(out, "\n%s %s\n", warnStyle.Render("Required fields without a column:"), strings.Join(sh.report.UnmappedRequired, ", "))
			}
			return nil
		},
	}
}
