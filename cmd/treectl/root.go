package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ammiranda/request_tree/converter"
	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/repository"
	"github.com/ammiranda/request_tree/tree"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "treectl",
	Short: "treectl manages request trees stored in a local SQLite database",
	Long:  `treectl creates workspaces, imports and exports collections and applies schema migrations without running the server.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("db", "", "SQLite database file (default ~/.request_tree/request_tree.db)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("actor", "treectl", "Actor id recorded on created nodes")
}

// session is an opened database with the services built on it.
type session struct {
	repo      *repository.SQLiteRepository
	store     *tree.Store
	converter *converter.Converter
}

func openSession(ctx context.Context, cmd *cobra.Command, maxItems int) (*session, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	level, _ := cmd.Flags().GetString("log-level")
	logger := logging.New(logging.ParseLevel(level))

	repo := repository.NewSQLiteRepository(dbPath)
	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := tree.NewStore(repo, tree.WithLogger(logger))
	conv := converter.New(store,
		converter.WithMaxItems(maxItems),
		converter.WithLogger(logger),
	)
	return &session{repo: repo, store: store, converter: conv}, nil
}

func (s *session) Close(ctx context.Context) {
	s.repo.Cleanup(ctx)
}

func actorFlag(cmd *cobra.Command) string {
	actor, _ := cmd.Flags().GetString("actor")
	return actor
}
