package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "SITEGEN_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Precedence (highest to lowest):
//  1. SITEGEN_* environment variables
//  2. YAML config file (~/.config/sitegen/config.yaml by default)
//  3. Default()
//
// The file must live under ~/.config/sitegen/ or /etc/sitegen/, be at most
// 1MB and have 0600 or 0400 permissions. A missing file is not an error.
//
// Environment variables drop the prefix and split on the first underscore:
//
//	SITEGEN_SERVER_HTTP_PORT   -> server.http_port
//	SITEGEN_GENERATOR_API_KEY  -> generator.api_key
//	SITEGEN_STORE_BACKEND      -> store.backend
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps SITEGEN_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens the file once and validates through the descriptor
// to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// DefaultDir returns ~/.config/sitegen.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "sitegen"), nil
}

// EnsureConfigDir creates the config directory with 0700 permissions.
func EnsureConfigDir() error {
	dir, err := DefaultDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// validateConfigPath checks the path against the allowed directories. It
// runs even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	dir, err := DefaultDir()
	if err != nil {
		return err
	}
	for _, allowed := range []string{dir, "/etc/sitegen"} {
		if resolved == allowed || strings.HasPrefix(resolved, allowed+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/sitegen/ or /etc/sitegen/")
}

func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
