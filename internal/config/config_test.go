// ABOUTME: Tests for configuration loading, env overrides, and validation
// ABOUTME: Uses a MapLookuper so the process environment never leaks in

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9000"
auth:
  enabled: true
  user_auth: true
  users_file: "/tmp/users.json"
policy:
  allowed_packages:
    - "requests"
    - "flask-*"
  blocked_packages:
    - "evil-*"
audit:
  database: "/tmp/audit.db"
logging:
  level: debug
  format: json
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.HTTPAddr)
	assert.True(t, cfg.Auth.Enabled)
	assert.True(t, cfg.Auth.UserAuth)
	assert.Equal(t, "/tmp/users.json", cfg.Auth.UsersFile)
	assert.Equal(t, []string{"requests", "flask-*"}, cfg.Policy.AllowedPackages)
	assert.Equal(t, []string{"evil-*"}, cfg.Policy.BlockedPackages)
	assert.Equal(t, "/tmp/audit.db", cfg.Audit.Database)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8315", cfg.Server.HTTPAddr)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".pkggate", "users.json"), cfg.Auth.UsersFile)
	assert.Equal(t, filepath.Join(home, ".pkggate", "audit.db"), cfg.Audit.Database)
}

func TestEnvOverridesFile(t *testing.T) {
	var cfg Config
	cfg.Server.HTTPAddr = "127.0.0.1:8315"
	cfg.Logging.Level = "info"

	lookuper := envconfig.MapLookuper(map[string]string{
		"PKGGATE_HTTP_ADDR":        "0.0.0.0:8080",
		"PKGGATE_ENABLE_AUTH":      "true",
		"PKGGATE_ENABLE_USER_AUTH": "true",
		"PKGGATE_BLOCKED_PACKAGES": "evil-*,crypto-miner",
		"PKGGATE_LOG_LEVEL":        "warn",
	})
	require.NoError(t, cfg.applyEnv(context.Background(), lookuper))

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddr)
	assert.True(t, cfg.Auth.Enabled)
	assert.True(t, cfg.Auth.UserAuth)
	assert.Equal(t, []string{"evil-*", "crypto-miner"}, cfg.Policy.BlockedPackages)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestEnvVarExpansionInFile(t *testing.T) {
	t.Setenv("PKGGATE_TEST_SECRET", "super-secret")
	path := writeConfig(t, `
auth:
  enabled: true
  single_api_key_mode: true
  api_key: "${PKGGATE_TEST_SECRET}"
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "super-secret", cfg.Auth.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), "/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		require.NoError(t, c.applyDefaults())
		return c
	}

	t.Run("defaults are valid", func(t *testing.T) {
		c := valid()
		assert.NoError(t, c.Validate())
	})

	t.Run("auth enabled without a mode", func(t *testing.T) {
		c := valid()
		c.Auth.Enabled = true
		assert.Error(t, c.Validate())
	})

	t.Run("single key mode without a key", func(t *testing.T) {
		c := valid()
		c.Auth.Enabled = true
		c.Auth.SingleAPIKeyMode = true
		assert.Error(t, c.Validate())

		c.Auth.APIKey = "sekrit"
		assert.NoError(t, c.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		c := valid()
		c.Logging.Level = "verbose"
		assert.Error(t, c.Validate())
	})

	t.Run("bad log format", func(t *testing.T) {
		c := valid()
		c.Logging.Format = "xml"
		assert.Error(t, c.Validate())
	})
}

func TestSlogLevel(t *testing.T) {
	var c Config
	for level, want := range map[string]string{
		"debug": "DEBUG",
		"info":  "INFO",
		"warn":  "WARN",
		"error": "ERROR",
	} {
		c.Logging.Level = level
		assert.Equal(t, want, c.SlogLevel().String())
	}
}
