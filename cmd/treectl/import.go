package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ammiranda/request_tree/converter"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <workspace-id> <collection.json|->",
	Short: "Import a collection into a workspace",
	Long:  `Reads a collection document from a file, or from stdin when the path is '-', and creates its folders and requests under the workspace root folder.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := readInput(cmd, args[1])
		if err != nil {
			return err
		}

		maxItems, _ := cmd.Flags().GetInt("max-items")
		s, err := openSession(ctx, cmd, maxItems)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		result, err := s.converter.Import(ctx, actorFlag(cmd), args[0], data)
		if err != nil {
			if result.Created > 0 {
				return fmt.Errorf("import stopped after %d nodes: %w", result.Created, err)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d nodes under %s\n", result.Created, result.RootID)
		return nil
	},
}

func init() {
	importCmd.Flags().Int("max-items", converter.DefaultMaxItems, "Reject collections with more items than this")
	rootCmd.AddCommand(importCmd)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	return data, nil
}
