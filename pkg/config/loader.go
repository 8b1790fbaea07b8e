package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/hive/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. Config file (explicit path, HIVE_CONFIG env, ./hive.yaml, /etc/hive/hive.yaml)
//  3. HIVE_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "config file loaded", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if cfg.Coordinator.WorkerID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Coordinator.WorkerID = host
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// explicit argument, HIVE_CONFIG, ./hive.yaml, /etc/hive/hive.yaml.
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("HIVE_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"hive.yaml", "/etc/hive/hive.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadFile parses a YAML or TOML file into cfg. Fields absent from the
// file keep their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err = toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps HIVE_* environment variables onto cfg.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"HIVE_COORDINATOR_ENDPOINT": &cfg.Coordinator.Endpoint,
		"HIVE_WORKER_ID":            &cfg.Coordinator.WorkerID,
		"HIVE_REPO_DIR":             &cfg.Sandbox.RepoDir,
		"HIVE_SESSION_ROOT":         &cfg.Sandbox.SessionRoot,
		"HIVE_ENTRY_POINT":          &cfg.Sandbox.EntryPoint,
		"HIVE_ISOLATION":            &cfg.Sandbox.Isolation,
		"HIVE_AUTH_TYPE":            &cfg.Auth.Type,
		"HIVE_AUTH_SECRET":          &cfg.Auth.Secret,
		"HIVE_JOURNAL":              &cfg.Journal.Type,
		"HIVE_JOURNAL_DSN":          &cfg.Journal.Postgres.DSN,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"HIVE_INITIAL_DELAY":   &cfg.Coordinator.InitialDelay,
		"HIVE_MAX_DELAY":       &cfg.Coordinator.MaxDelay,
		"HIVE_REQUEST_TIMEOUT": &cfg.Coordinator.RequestTimeout,
		"HIVE_REAP_AFTER":      &cfg.Sandbox.ReapAfter,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("HIVE_DELAY_MULTIPLIER"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("HIVE_DELAY_MULTIPLIER: %w", err)
		}
		cfg.Coordinator.DelayMultiplier = m
	}
	if v := os.Getenv("HIVE_INTERPRETER"); v != "" {
		cfg.Sandbox.Interpreter = strings.Fields(v)
	}
	if v := os.Getenv("HIVE_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HIVE_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
		cfg.Server.Enabled = true
	}
	return nil
}

// resolveFileReferences populates value fields from their _file variants
// when the value itself is empty.
func resolveFileReferences(cfg *Config) error {
	if cfg.Auth.SecretFile != "" && cfg.Auth.Secret == "" {
		val, err := readSecretFile(cfg.Auth.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.secret_file: %w", err)
		}
		cfg.Auth.Secret = val
	}

	if cfg.Journal.Postgres.DSNFile != "" && cfg.Journal.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Journal.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("journal.postgres.dsn_file: %w", err)
		}
		cfg.Journal.Postgres.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
