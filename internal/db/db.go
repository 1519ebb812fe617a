package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/sift/internal/config"
	"github.com/hpungsan/sift/internal/errors"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Create opens the store file at path, creating it and its directory if needed,
// and applies migrations. Used by project initialization.
func Create(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := openDSN(path)
	if err != nil {
		return nil, err
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(path, 0600)

	return db, nil
}

// Open opens an existing store file. A missing, unreadable, corrupt or
// uninitialized file fails with STORE_UNAVAILABLE. Older schemas are migrated.
func Open(path string) (*sql.DB, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewStoreUnavailable(path, err)
	}
	if info.IsDir() {
		return nil, errors.NewStoreUnavailable(path, fmt.Errorf("is a directory"))
	}

	db, err := openDSN(path)
	if err != nil {
		return nil, errors.NewStoreUnavailable(path, err)
	}

	// A file that is not a database fails on the first read.
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, errors.NewStoreUnavailable(path, err)
	}

	version, err := GetUserVersion(db)
	if err != nil {
		db.Close()
		return nil, errors.NewStoreUnavailable(path, err)
	}
	if version == 0 {
		ok, err := hasRunsTable(db)
		if err != nil {
			db.Close()
			return nil, errors.NewStoreUnavailable(path, err)
		}
		if !ok {
			db.Close()
			return nil, errors.NewStoreUnavailable(path, fmt.Errorf("store not initialized"))
		}
	}
	if version < CurrentSchemaVersion {
		if err := migrate(db); err != nil {
			db.Close()
			return nil, errors.NewStoreUnavailable(path, err)
		}
	}

	return db, nil
}

// openDSN opens the database with pragmas in the connection string (applies to all connections).
func openDSN(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS analysis_runs (
		  id          INTEGER PRIMARY KEY AUTOINCREMENT,
		  project_id  INTEGER NOT NULL,
		  tool_name   TEXT NOT NULL,
		  data_type   TEXT NOT NULL,
		  data        TEXT NOT NULL,
		  timestamp   INTEGER NOT NULL,
		  source      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_project_timestamp
		ON analysis_runs(project_id, timestamp DESC, id DESC);

		CREATE INDEX IF NOT EXISTS idx_runs_project_tool_timestamp
		ON analysis_runs(project_id, tool_name, timestamp DESC, id DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func hasRunsTable(db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='analysis_runs'").Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n > 0, nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
