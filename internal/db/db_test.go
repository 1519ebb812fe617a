package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/sift/internal/config"
	"github.com/hpungsan/sift/internal/errors"
)

func TestCreate(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", ".sift", "sift.db")

	db, err := Create(dbPath)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file not created at %s", dbPath)
	}

	// Verify WAL mode is active
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}

	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='analysis_runs'").Scan(&tableName)
	if err != nil {
		t.Fatalf("analysis_runs table not found: %v", err)
	}
}

func TestCreate_SchemaIndexes(t *testing.T) {
	db, err := Create(filepath.Join(t.TempDir(), "sift.db"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer db.Close()

	for _, idx := range []string{"idx_runs_project_timestamp", "idx_runs_project_tool_timestamp"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&name)
		if err != nil {
			t.Errorf("index %s not found: %v", idx, err)
		}
	}
}

func TestUserVersion(t *testing.T) {
	db, err := Create(filepath.Join(t.TempDir(), "sift.db"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer db.Close()

	version, err := GetUserVersion(db)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version after Create = %d, want %d", version, CurrentSchemaVersion)
	}

	if err := SetUserVersion(db, 99); err != nil {
		t.Fatalf("SetUserVersion() error = %v", err)
	}
	version, err = GetUserVersion(db)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != 99 {
		t.Errorf("user_version = %d, want 99", version)
	}
}

func TestCreate_MigrationIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sift.db")

	db1, err := Create(dbPath)
	if err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	db1.Close()

	db2, err := Create(dbPath)
	if err != nil {
		t.Fatalf("second Create() error = %v", err)
	}
	defer db2.Close()

	version, err := GetUserVersion(db2)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version after second Create = %d, want %d", version, CurrentSchemaVersion)
	}
}

func TestOpen_Existing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sift.db")
	db1, err := Create(dbPath)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	db1.Close()

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
}

func TestOpen_Missing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "absent.db")

	_, err := Open(dbPath)
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Fatalf("Open() error = %v, want STORE_UNAVAILABLE", err)
	}
	if _, statErr := os.Stat(dbPath); !os.IsNotExist(statErr) {
		t.Errorf("Open() must not create a missing store")
	}
}

func TestOpen_Corrupt(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sift.db")
	if err := os.WriteFile(dbPath, []byte("this is definitely not an sqlite database file, just text padding it out"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Open(dbPath)
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Fatalf("Open() error = %v, want STORE_UNAVAILABLE", err)
	}
}

func TestOpen_Uninitialized(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sift.db")
	if err := os.WriteFile(dbPath, nil, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Open(dbPath)
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Fatalf("Open() error = %v, want STORE_UNAVAILABLE", err)
	}
}

func TestOpen_Directory(t *testing.T) {
	_, err := Open(t.TempDir())
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Fatalf("Open() error = %v, want STORE_UNAVAILABLE", err)
	}
}

func TestConfigurePool(t *testing.T) {
	db, err := Create(filepath.Join(t.TempDir(), "sift.db"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer db.Close()

	ConfigurePool(db, nil)
	ConfigurePool(db, &config.Config{DBMaxOpenConns: 1, DBMaxIdleConns: 1})

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}
