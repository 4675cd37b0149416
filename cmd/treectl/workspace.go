package main

import (
	"fmt"

	"github.com/ammiranda/request_tree/converter"

	"github.com/spf13/cobra"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a workspace with its root folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, cmd, converter.DefaultMaxItems)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		ws, root, err := s.store.CreateWorkspace(ctx, actorFlag(cmd), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workspace %s (root folder %s)\n", ws.ID, root.ID)
		return nil
	},
}

var workspaceDeleteCmd = &cobra.Command{
	Use:   "delete <workspace-id>",
	Short: "Delete a workspace and all of its nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, cmd, converter.DefaultMaxItems)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		n, err := s.store.DeleteWorkspace(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted workspace %s (%d nodes)\n", args[0], n)
		return nil
	},
}

func init() {
	workspaceCmd.AddCommand(workspaceCreateCmd, workspaceDeleteCmd)
	rootCmd.AddCommand(workspaceCmd)
}
