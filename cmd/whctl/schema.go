package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/warehouse/internal/store"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the PostgreSQL schema the importer writes to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), store.Schema())
			return err
		},
	}
}
