// Package config loads the ingestion pipeline's YAML system
// configuration, per-vendor static JSON fixtures, and .env-based
// secrets, following the same load-merge-validate shape the teacher
// uses for its own YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the fully loaded, merged and validated configuration for one
// process run.
type Config struct {
	Database  DatabaseConfig `yaml:"database"`
	Sync      SyncConfig     `yaml:"sync"`
	Notify    NotifyConfig   `yaml:"notify"`
	ConfigDir string         `yaml:"-"`
}

// DatabaseConfig holds Postgres connection parameters, following the
// same env-first shape as the teacher's pkg/database/config.go.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// SyncConfig tunes the fetcher/conductor scheduling behavior.
type SyncConfig struct {
	FullSyncInterval    time.Duration `yaml:"full_sync_interval"`
	ProcessingTick      time.Duration `yaml:"processing_tick"`
	DaysBack            int           `yaml:"days_back"`
	DaysForward         int           `yaml:"days_forward"`
	MaxConcurrentCities int           `yaml:"max_concurrent_cities"`
}

// NotifyConfig configures the failure-notification webhook.
type NotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	WebhookEnv string `yaml:"webhook_env"`
}

// Defaults returns the configuration applied before any YAML file or
// env var is consulted, mirroring the teacher's layered-defaults
// approach.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 15 * time.Minute,
		},
		Sync: SyncConfig{
			FullSyncInterval:    168 * time.Hour,
			ProcessingTick:      5 * time.Second,
			DaysBack:            7,
			DaysForward:         14,
			MaxConcurrentCities: 5,
		},
	}
}

// Load reads system.yaml from configDir, merges it over Defaults(), then
// applies DB_* environment variable overrides the same way the teacher's
// database config does.
func Load(configDir string) (*Config, error) {
	cfg := Defaults()
	cfg.ConfigDir = configDir

	path := filepath.Join(configDir, "system.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		var fromFile Config
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := mergo.Merge(&cfg, fromFile, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("config: merge %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := parsePort(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
		cfg.Notify.Enabled = true
	}
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	return p, err
}

// Validate checks that the configuration is internally consistent
// enough to start the process.
func (c *Config) Validate() error {
	if c.Database.Name == "" {
		return fmt.Errorf("config: database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Sync.DaysBack < 0 || c.Sync.DaysForward < 0 {
		return fmt.Errorf("config: sync.days_back and sync.days_forward must be non-negative")
	}
	return nil
}

// DSN builds the libpq-style connection string pgx expects.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
