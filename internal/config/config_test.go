package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port: got %q", cfg.Port)
	}
	if !cfg.AutoMigrate {
		t.Fatal("autoMigrate should default to true")
	}
	if cfg.IntakeRatePerMin != 60 {
		t.Fatalf("intake rate: got %v", cfg.IntakeRatePerMin)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "port: \"9090\"\nwhatsapp:\n  phoneId: \"123\"\n  verifyToken: \"vt\"\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "7070")
	t.Setenv("DB_MIGRATE_DIR", "custom/migrations")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("env should override file; got %q", cfg.Port)
	}
	if cfg.WhatsApp.PhoneID != "123" || cfg.WhatsApp.VerifyToken != "vt" {
		t.Fatalf("whatsapp config not read: %+v", cfg.WhatsApp)
	}
	if cfg.MigrateDir != "custom/migrations" {
		t.Fatalf("migrate dir: got %q", cfg.MigrateDir)
	}
}

func TestLoadBadFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
