package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ammiranda/request_tree/converter"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <workspace-id>",
	Short: "Export a workspace as a collection document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, cmd, converter.DefaultMaxItems)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		doc, err := s.converter.Export(ctx, args[0])
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
