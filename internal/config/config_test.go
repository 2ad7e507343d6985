package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the config dir in it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "sitegen")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Runner.MaxRetries)
	assert.Equal(t, 75.0, cfg.Quality.PassThreshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }, "unknown store backend"},
		{"redis without addr", func(c *Config) { c.Store.Backend = "redis"; c.Redis.Addr = "" }, "redis.addr"},
		{"provider without key", func(c *Config) { c.Generator.Provider = "anthropic" }, "api_key"},
		{"bad tier", func(c *Config) { c.Runner.Tier = "premium" }, "runner.tier"},
		{"negative retries", func(c *Config) { c.Runner.MaxRetries = -1 }, "max_retries"},
		{"quality bounds", func(c *Config) { c.Quality.Density.IdealLow = 99 }, "quality"},
		{"temporal queue", func(c *Config) { c.Temporal.Enabled = true; c.Temporal.TaskQueue = "" }, "task_queue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("errors are joined", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Port = -1
		cfg.Runner.Tier = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
		assert.Contains(t, err.Error(), "runner.tier")
	})
}

func TestLoadWithFile(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		setupTestHome(t)
		cfg, err := LoadWithFile("")
		require.NoError(t, err)
		assert.Equal(t, Default().Server.Port, cfg.Server.Port)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, `
server:
  http_port: 8088
store:
  backend: SQLite
sqlite:
  path: /var/lib/sitegen/runs.db
runner:
  max_retries: 5
  timeout: 45s
quality:
  pass_threshold: 80
  weights:
    readability: 0.5
`, 0600)

		cfg, err := LoadWithFile(path)
		require.NoError(t, err)
		assert.Equal(t, 8088, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Store.Backend)
		assert.Equal(t, "/var/lib/sitegen/runs.db", cfg.SQLite.Path)
		assert.Equal(t, 5, cfg.Runner.MaxRetries)
		assert.Equal(t, 45*time.Second, cfg.Runner.Timeout.Duration())
		assert.Equal(t, 80.0, cfg.Quality.PassThreshold)
		assert.Equal(t, 0.5, cfg.Quality.Weights.Readability)
		assert.Equal(t, 0.35, cfg.Quality.Weights.KeywordDensity, "untouched nested defaults survive")
		assert.NotEmpty(t, cfg.Quality.CTAPatterns)
	})

	t.Run("env overrides yaml", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "server:\n  http_port: 8088\n", 0600)
		t.Setenv("SITEGEN_SERVER_HTTP_PORT", "7070")
		t.Setenv("SITEGEN_GENERATOR_PROVIDER", "anthropic")
		t.Setenv("SITEGEN_GENERATOR_API_KEY", "sk-test-key")
		t.Setenv("SITEGEN_RUNNER_TIER", "quality")

		cfg, err := LoadWithFile(path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "sk-test-key", cfg.Generator.APIKey.Value())
		assert.Equal(t, "quality", cfg.Runner.Tier)
	})

	t.Run("rejects world readable file", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "server:\n  http_port: 8088\n", 0644)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("rejects path outside allowed dirs", func(t *testing.T) {
		setupTestHome(t)
		_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be in")
	})

	t.Run("rejects sibling prefix dir", func(t *testing.T) {
		dir := setupTestHome(t)
		_, err := LoadWithFile(dir + "-evil/config.yaml")
		require.Error(t, err)
	})

	t.Run("invalid result is rejected", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "store:\n  backend: etcd\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation failed")
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.http_port", envKey("SITEGEN_SERVER_HTTP_PORT"))
	assert.Equal(t, "generator.api_key", envKey("SITEGEN_GENERATOR_API_KEY"))
	assert.Equal(t, "debug", envKey("SITEGEN_DEBUG"))
}

func TestSecretIsRedacted(t *testing.T) {
	s := Secret("sk-live-123")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-live-123", s.Value())

	out, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(out))

	var back Secret
	require.NoError(t, json.Unmarshal([]byte(`"raw"`), &back))
	assert.Equal(t, "raw", back.Value())
	assert.False(t, Secret("").IsSet())
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))
}
