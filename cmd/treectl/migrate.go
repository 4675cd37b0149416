package main

import (
	"fmt"

	"github.com/ammiranda/request_tree/converter"
	"github.com/ammiranda/request_tree/migrations"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// Opening the repository applies the migrations.
		s, err := openSession(ctx, cmd, converter.DefaultMaxItems)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		version, dirty, err := migrations.CurrentVersion(ctx, s.repo.DB(), migrations.SQLite)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
