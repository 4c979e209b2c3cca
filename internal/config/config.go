// ABOUTME: Configuration loading for pkggate
// ABOUTME: YAML files with ${VAR} expansion, overridden by PKGGATE_-prefixed env vars

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is stripped from environment variable names before matching
// config fields, so PKGGATE_HTTP_ADDR sets server.http_addr.
const EnvPrefix = "PKGGATE_"

// Config represents the complete pkggate configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Policy  PolicyConfig  `yaml:"policy"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`
}

// AuthConfig holds authentication mode configuration
type AuthConfig struct {
	Enabled          bool   `yaml:"enabled" env:"ENABLE_AUTH"`
	UserAuth         bool   `yaml:"user_auth" env:"ENABLE_USER_AUTH"`
	UsersFile        string `yaml:"users_file" env:"USERS_FILE"`
	SingleAPIKeyMode bool   `yaml:"single_api_key_mode" env:"SINGLE_API_KEY_MODE"`
	APIKey           string `yaml:"api_key" env:"API_KEY"`
}

// PolicyConfig holds the package allow/block lists
type PolicyConfig struct {
	AllowedPackages []string `yaml:"allowed_packages" env:"ALLOWED_PACKAGES"`
	BlockedPackages []string `yaml:"blocked_packages" env:"BLOCKED_PACKAGES"`
}

// AuditConfig holds audit log storage configuration
type AuditConfig struct {
	Database string `yaml:"database" env:"AUDIT_DB"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Load builds the configuration in three layers: the YAML file at path (may
// be "" to skip), PKGGATE_-prefixed environment variables on top, then
// defaults for anything still unset. Environment variables in the YAML in
// the format ${VAR_NAME} are expanded before parsing.
func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(ctx, envconfig.OsLookuper()); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyEnv overlays environment variables onto the config. The lookuper is
// injectable for tests.
func (c *Config) applyEnv(ctx context.Context, lookuper envconfig.Lookuper) error {
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   c,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, lookuper),
	})
	if err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	return nil
}

// applyDefaults fills in every field that remained unset after the file and
// environment layers.
func (c *Config) applyDefaults() error {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8315"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Auth.UsersFile == "" || c.Audit.Database == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		if c.Auth.UsersFile == "" {
			c.Auth.UsersFile = filepath.Join(home, ".pkggate", "users.json")
		}
		if c.Audit.Database == "" {
			c.Audit.Database = filepath.Join(home, ".pkggate", "audit.db")
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// consistent. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Auth.Enabled && !c.Auth.UserAuth && !c.Auth.SingleAPIKeyMode {
		return fmt.Errorf("auth.enabled requires auth.user_auth or auth.single_api_key_mode")
	}

	if c.Auth.SingleAPIKeyMode && !c.Auth.UserAuth && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required when auth.single_api_key_mode is enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	return nil
}

// SlogLevel converts the configured level string into a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
