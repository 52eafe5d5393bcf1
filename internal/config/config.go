// Package config loads application configuration from an optional YAML file
// with environment variable overrides. Environment always wins, so a bare
// deployment with env vars only (the common case) needs no file at all.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type WhatsApp struct {
	PhoneID     string `yaml:"phoneId"`
	Token       string `yaml:"token"`
	VerifyToken string `yaml:"verifyToken"`
}

type Config struct {
	Port        string   `yaml:"port"`
	DatabaseURL string   `yaml:"databaseUrl"`
	RedisURL    string   `yaml:"redisUrl"`
	MigrateDir  string   `yaml:"migrateDir"`
	AutoMigrate bool     `yaml:"autoMigrate"`
	WhatsApp    WhatsApp `yaml:"whatsapp"`

	// IntakeRatePerMin bounds inbound conversational messages accepted per
	// minute; zero falls back to the default.
	IntakeRatePerMin float64 `yaml:"intakeRatePerMin"`
}

func defaults() Config {
	return Config{
		Port:             "8080",
		MigrateDir:       "db/migrations",
		AutoMigrate:      true,
		IntakeRatePerMin: 60,
	}
}

// Load reads CONFIG_PATH (when set) and applies env overrides on top.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.MigrateDir == "" {
		cfg.MigrateDir = "db/migrations"
	}
	if cfg.IntakeRatePerMin <= 0 {
		cfg.IntakeRatePerMin = 60
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("DB_MIGRATE_DIR"); v != "" {
		cfg.MigrateDir = v
	}
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoMigrate = b
		}
	}
	if v := os.Getenv("WHATSAPP_PHONE_ID"); v != "" {
		cfg.WhatsApp.PhoneID = v
	}
	if v := os.Getenv("WHATSAPP_TOKEN"); v != "" {
		cfg.WhatsApp.Token = v
	}
	if v := os.Getenv("WHATSAPP_VERIFY_TOKEN"); v != "" {
		cfg.WhatsApp.VerifyToken = v
	}
	if v := os.Getenv("INTAKE_RATE_PER_MIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.IntakeRatePerMin = f
		}
	}
}
