// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server holds settings for cmd/server.
type Server struct {
	DatabaseURL     string        `env:"DATABASE_URL,notEmpty"`
	Port            string        `env:"PORT" envDefault:"8080"`
	RulesFile       string        `env:"RULES_FILE"`
	SnapshotTimeout time.Duration `env:"SNAPSHOT_TIMEOUT" envDefault:"5s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	Log             Log
}

// Log holds logger settings shared by every binary.
type Log struct {
	Level       string `env:"LOG_LEVEL" envDefault:"INFO"`
	SampleRate  int    `env:"ERROR_SAMPLE_RATE" envDefault:"100"`
	OTELEnabled bool   `env:"OTEL_ENABLED" envDefault:"false"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"stagegate"`
}

// Migrate holds settings for the migrate subcommand.
type Migrate struct {
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`
}

// LoadServer parses Server settings from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	if err := parseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if cfg.SnapshotTimeout <= 0 {
		return Server{}, fmt.Errorf("SNAPSHOT_TIMEOUT must be positive, got %s", cfg.SnapshotTimeout)
	}
	return cfg, nil
}

// LoadMigrate parses Migrate settings from the environment.
func LoadMigrate() (Migrate, error) {
	var cfg Migrate
	if err := parseEnv(&cfg); err != nil {
		return Migrate{}, err
	}
	return cfg, nil
}

// LoadLog parses Log settings from the environment.
func LoadLog() (Log, error) {
	var cfg Log
	if err := parseEnv(&cfg); err != nil {
		return Log{}, err
	}
	return cfg, nil
}

func parseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
