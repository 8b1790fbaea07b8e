// Package config provides unified configuration for the hive worker.
//
// Configuration is loaded in layers:
//  1. Built-in defaults
//  2. Config file, YAML or TOML (discovered or explicitly specified)
//  3. Environment variable overrides (HIVE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the hive worker.
type Config struct {
	Coordinator   CoordinatorConfig   `yaml:"coordinator" toml:"coordinator"`
	Sandbox       SandboxConfig       `yaml:"sandbox" toml:"sandbox"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Journal       JournalConfig       `yaml:"journal" toml:"journal"`
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
}

// CoordinatorConfig holds the job channel settings.
type CoordinatorConfig struct {
	Endpoint        string        `yaml:"endpoint" toml:"endpoint"`                 // required for `run`
	WorkerID        string        `yaml:"worker_id" toml:"worker_id"`               // default: hostname
	InitialDelay    time.Duration `yaml:"initial_delay" toml:"initial_delay"`       // default: 1s
	DelayMultiplier float64       `yaml:"delay_multiplier" toml:"delay_multiplier"` // default: 1.5
	MaxDelay        time.Duration `yaml:"max_delay" toml:"max_delay"`               // 0 = uncapped
	RequestTimeout  time.Duration `yaml:"request_timeout" toml:"request_timeout"`   // default: 30s
}

// SandboxConfig holds job execution settings.
type SandboxConfig struct {
	RepoDir        string        `yaml:"repo_dir" toml:"repo_dir"`               // default: /app/repo
	SessionRoot    string        `yaml:"session_root" toml:"session_root"`       // default: os.TempDir()
	Interpreter    []string      `yaml:"interpreter" toml:"interpreter"`         // default: [python3]
	EntryPoint     string        `yaml:"entry_point" toml:"entry_point"`         // default: evaluator.py
	CheckpointFile string        `yaml:"checkpoint_file" toml:"checkpoint_file"` // default: checkpoint.json
	Isolation      string        `yaml:"isolation" toml:"isolation"`             // "overlay" or "mirror"
	LinkPatterns   []string      `yaml:"link_patterns" toml:"link_patterns"`     // mirror mode only
	SkipNames      []string      `yaml:"skip_names" toml:"skip_names"`           // mirror mode only
	ReapAfter      time.Duration `yaml:"reap_after" toml:"reap_after"`           // default: 1h
}

// AuthConfig holds coordinator authentication settings.
type AuthConfig struct {
	Type       string        `yaml:"type" toml:"type"`               // "none" or "jwt", default: "none"
	Secret     string        `yaml:"secret" toml:"secret"`           // HMAC signing key
	SecretFile string        `yaml:"secret_file" toml:"secret_file"` // _file variant for secret
	Issuer     string        `yaml:"issuer" toml:"issuer"`           // default: hive-worker
	Audience   string        `yaml:"audience" toml:"audience"`       // optional
	TTL        time.Duration `yaml:"ttl" toml:"ttl"`                 // default: 5m
}

// JournalConfig holds job outcome ledger settings.
type JournalConfig struct {
	Type     string         `yaml:"type" toml:"type"`         // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size" toml:"max_size"` // memory journal, default: 1000
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
}

// PostgresConfig holds PostgreSQL journal settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn" toml:"dsn"`
	DSNFile        string `yaml:"dsn_file" toml:"dsn_file"`                 // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns" toml:"max_conns"`               // default: 5
	MigrateOnStart bool   `yaml:"migrate_on_start" toml:"migrate_on_start"` // default: false
}

// ServerConfig holds the optional worker HTTP surface.
type ServerConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"` // default: false
	Port    int  `yaml:"port" toml:"port"`       // default: 9102
	MCP     bool `yaml:"mcp" toml:"mcp"`         // serve /mcp, default: false
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"` // default: true
	Path    string `yaml:"path" toml:"path"`       // default: "/metrics"
}

// LoggingConfig holds log level and debug categories.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"` // default: INFO
	Debug string `yaml:"debug" toml:"debug"` // comma-separated categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Coordinator: CoordinatorConfig{
			InitialDelay:    1 * time.Second,
			DelayMultiplier: 1.5,
			RequestTimeout:  30 * time.Second,
		},
		Sandbox: SandboxConfig{
			RepoDir:        "/app/repo",
			Interpreter:    []string{"python3"},
			EntryPoint:     "evaluator.py",
			CheckpointFile: "checkpoint.json",
			Isolation:      "overlay",
			ReapAfter:      1 * time.Hour,
		},
		Auth: AuthConfig{
			Type:   "none",
			Issuer: "hive-worker",
			TTL:    5 * time.Minute,
		},
		Journal: JournalConfig{
			Type:    "memory",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 5,
			},
		},
		Server: ServerConfig{
			Port: 9102,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}
