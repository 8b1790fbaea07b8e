package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

// Validate checks the configuration for valid values. Returns all problems
// joined, each prefixed with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Coordinator.InitialDelay <= 0 {
		errs = append(errs, fmt.Errorf("coordinator.initial_delay must be > 0, got %v", c.Coordinator.InitialDelay))
	}
	if c.Coordinator.DelayMultiplier < 1 {
		errs = append(errs, fmt.Errorf("coordinator.delay_multiplier must be >= 1, got %v", c.Coordinator.DelayMultiplier))
	}
	if c.Coordinator.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("coordinator.max_delay must be >= 0, got %v", c.Coordinator.MaxDelay))
	}
	if c.Coordinator.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("coordinator.request_timeout must be > 0, got %v", c.Coordinator.RequestTimeout))
	}

	if c.Sandbox.RepoDir == "" {
		errs = append(errs, fmt.Errorf("sandbox.repo_dir is required"))
	}
	if !filepath.IsLocal(c.Sandbox.EntryPoint) {
		errs = append(errs, fmt.Errorf("sandbox.entry_point must be a relative path inside the repository, got %q", c.Sandbox.EntryPoint))
	}
	if c.Sandbox.CheckpointFile == "" || filepath.Base(c.Sandbox.CheckpointFile) != c.Sandbox.CheckpointFile {
		errs = append(errs, fmt.Errorf("sandbox.checkpoint_file must be a plain file name, got %q", c.Sandbox.CheckpointFile))
	}
	switch c.Sandbox.Isolation {
	case "overlay", "mirror":
	default:
		errs = append(errs, fmt.Errorf("sandbox.isolation must be \"overlay\" or \"mirror\", got %q", c.Sandbox.Isolation))
	}
	for i, p := range c.Sandbox.LinkPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("sandbox.link_patterns[%d]: %w", i, err))
		}
	}
	if c.Sandbox.ReapAfter < 0 {
		errs = append(errs, fmt.Errorf("sandbox.reap_after must be >= 0, got %v", c.Sandbox.ReapAfter))
	}

	switch c.Auth.Type {
	case "none":
	case "jwt":
		if c.Auth.Secret == "" && c.Auth.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.secret or auth.secret_file is required when auth.type is \"jwt\""))
		}
		if c.Auth.TTL <= 0 {
			errs = append(errs, fmt.Errorf("auth.ttl must be > 0, got %v", c.Auth.TTL))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\" or \"jwt\", got %q", c.Auth.Type))
	}

	switch c.Journal.Type {
	case "none", "memory":
	case "postgres":
		if c.Journal.Postgres.DSN == "" && c.Journal.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("journal.postgres.dsn or journal.postgres.dsn_file is required when journal.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("journal.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Journal.Type))
	}

	if c.Server.Enabled && c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// ValidateCoordinator checks the settings only the job loop needs.
func (c *Config) ValidateCoordinator() error {
	if c.Coordinator.Endpoint == "" {
		return fmt.Errorf("coordinator.endpoint is required")
	}
	return nil
}
