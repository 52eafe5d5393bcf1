package api

import (
    "os"
    "path/filepath"
    "testing"
)

func TestNewServerFailsOnBadMigrateDir(t *testing.T) {
    if os.Getenv("DATABASE_URL") == "" {
        t.Skip("DATABASE_URL not set; skipping integration test")
    }
    t.Setenv("DB_MIGRATE", "true")
    t.Setenv("DB_MIGRATE_DIR", filepath.Join(t.TempDir(), "missing"))
    if _, err := NewServer(); err == nil {
        t.Fatal("expected startup to fail when the migration dir is unreadable")
    }
}
