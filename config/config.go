// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Identity IdentityConfig `yaml:"identity" toml:"identity"`
	Schema   SchemaConfig   `yaml:"schema" toml:"schema"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" toml:"format"` // "json" or "console"
}

// IdentityConfig configures how instance cids are generated.
type IdentityConfig struct {
	Generator string `yaml:"generator" toml:"generator"` // "sequential", "uuid" or "nanoid"
	Prefix    string `yaml:"prefix" toml:"prefix"`
	Length    int    `yaml:"length,omitempty" toml:"length,omitempty"` // nanoid length
}

// SchemaConfig configures where type manifests come from.
type SchemaConfig struct {
	Path            string `yaml:"path" toml:"path"`                         // manifest file or directory
	ExtraProperties string `yaml:"extra_properties" toml:"extra_properties"` // default policy for root types
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// Load reads configuration from a YAML file, or a TOML file when the
// extension is .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	STATEKIT_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	STATEKIT_LOG_FORMAT         - Log format: json or console (default: console)
//	STATEKIT_ID_GENERATOR       - cid generator: sequential, uuid, nanoid (default: sequential)
//	STATEKIT_ID_PREFIX          - cid prefix (default: state)
//	STATEKIT_ID_LENGTH          - nanoid length (default: 10)
//	STATEKIT_SCHEMA_PATH        - Manifest file or directory
//	STATEKIT_EXTRA_PROPERTIES   - Default policy: ignore, reject, allow (default: ignore)
//	STATEKIT_METRICS_ENABLED    - Collect Prometheus metrics (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	return finish(&cfg)
}

// LoadWithFallback loads path when it exists and falls back to
// environment variables otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func finish(cfg *Config) (*Config, error) {
	// Environment variables always override file-based configuration.
	applyEnvOverrides(cfg)

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies STATEKIT_* environment variables to the config.
func applyEnvOverrides(cfg *Config) {
	// Logging configuration
	if v := os.Getenv("STATEKIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STATEKIT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Identity configuration
	if v := os.Getenv("STATEKIT_ID_GENERATOR"); v != "" {
		cfg.Identity.Generator = v
	}
	if v := os.Getenv("STATEKIT_ID_PREFIX"); v != "" {
		cfg.Identity.Prefix = v
	}
	if v := os.Getenv("STATEKIT_ID_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Identity.Length = n
		}
	}

	// Schema configuration
	if v := os.Getenv("STATEKIT_SCHEMA_PATH"); v != "" {
		cfg.Schema.Path = v
	}
	if v := os.Getenv("STATEKIT_EXTRA_PROPERTIES"); v != "" {
		cfg.Schema.ExtraProperties = v
	}

	// Metrics configuration
	if v := os.Getenv("STATEKIT_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Identity.Generator == "" {
		cfg.Identity.Generator = "sequential"
	}
	if cfg.Identity.Prefix == "" {
		cfg.Identity.Prefix = "state"
	}
	if cfg.Identity.Length == 0 {
		cfg.Identity.Length = 10
	}

	if cfg.Schema.ExtraProperties == "" {
		cfg.Schema.ExtraProperties = "ignore"
	}
}

func validate(cfg *Config) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	validGenerators := map[string]bool{"sequential": true, "uuid": true, "nanoid": true}
	if !validGenerators[cfg.Identity.Generator] {
		return fmt.Errorf("identity.generator must be one of: sequential, uuid, nanoid, got %q", cfg.Identity.Generator)
	}
	if cfg.Identity.Length < 2 || cfg.Identity.Length > 64 {
		return fmt.Errorf("identity.length must be between 2 and 64, got %d", cfg.Identity.Length)
	}

	validPolicies := map[string]bool{"ignore": true, "reject": true, "allow": true}
	if !validPolicies[cfg.Schema.ExtraProperties] {
		return fmt.Errorf("schema.extra_properties must be one of: ignore, reject, allow, got %q", cfg.Schema.ExtraProperties)
	}

	return nil
}
