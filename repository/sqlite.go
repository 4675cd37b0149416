package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ammiranda/request_tree/migrations"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	sqlStore
	dbPath string
}

// NewSQLiteRepository creates a new SQLite repository instance. An empty
// path selects DefaultSQLitePath; ":memory:" opens a private in-memory database.
func NewSQLiteRepository(path string) *SQLiteRepository {
	if path == "" {
		path = DefaultSQLitePath()
	}
	return &SQLiteRepository{dbPath: path}
}

// DefaultSQLitePath returns the database file in the user's data directory.
func DefaultSQLitePath() string {
	// Default to data directory in user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	// Create data directory if it doesn't exist
	dataDir := filepath.Join(homeDir, ".request_tree")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		// Fallback to current directory if home directory is not accessible
		dataDir = "."
	}
	return filepath.Join(dataDir, "request_tree.db")
}

// Initialize opens the database and applies migrations
func (r *SQLiteRepository) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite3", r.dbPath+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("error opening sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("error pinging sqlite database: %w", err)
	}
	if err := migrations.RunMigrations(ctx, db, migrations.SQLite); err != nil {
		db.Close()
		return err
	}

	r.db = db
	return nil
}

// Cleanup closes the database connection
func (r *SQLiteRepository) Cleanup(ctx context.Context) error {
	return r.close()
}

// DB exposes the underlying handle for tooling such as schema inspection.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}
