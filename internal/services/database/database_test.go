package database

import (
	"path/filepath"
	"testing"

	"github.com/matthiasponsi/token-trackr/internal/models"
)

func TestNewSQLite(t *testing.T) {
	db, err := New(models.DatabaseConfig{
		Type:     models.SQLite,
		FilePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer db.Close()

	if db.DriverName() != "sqlite3" {
		t.Errorf("driver = %q, want sqlite3", db.DriverName())
	}
	if err := db.Ping(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if err := db.AutoMigrate(); err != nil {
		t.Errorf("AutoMigrate failed: %v", err)
	}

	// Migration is additive and re-runnable.
	if err := db.AutoMigrate(); err != nil {
		t.Errorf("second AutoMigrate failed: %v", err)
	}
}

func TestNewUnsupportedType(t *testing.T) {
	if _, err := New(models.DatabaseConfig{Type: "oracle"}); err == nil {
		t.Fatal("expected an error for an unsupported database type")
	}
}

func TestNewSQLiteMissingPath(t *testing.T) {
	if _, err := New(models.DatabaseConfig{Type: models.SQLite}); err == nil {
		t.Fatal("expected an error when no file path is configured")
	}
}
