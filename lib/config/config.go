// Package config loads application configuration from built-in defaults, an
// optional YAML file, and FILMLENS_-prefixed environment variables, in that
// order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "FILMLENS_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	OMDB     OMDBConfig     `koanf:"omdb"`
	Session  SessionConfig  `koanf:"session"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// OMDBConfig configures the metadata gateway. Keys is the credential pool
// rotated through on provider rate limits; RequestsPerSec paces outgoing
// lookups since the pool is shared by every user of the deployment.
type OMDBConfig struct {
	BaseURL        string        `koanf:"base_url"`
	Keys           []string      `koanf:"keys"`
	Timeout        time.Duration `koanf:"timeout"`
	RequestsPerSec float64       `koanf:"requests_per_sec"`
}

type SessionConfig struct {
	BaseDir string        `koanf:"base_dir"`
	TTL     time.Duration `koanf:"ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or text
}

func defaults() Config {
	return Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Path: "filmlens.db"},
		OMDB: OMDBConfig{
			BaseURL:        "http://www.omdbapi.com/",
			Timeout:        10 * time.Second,
			RequestsPerSec: 5,
		},
		Session: SessionConfig{BaseDir: os.TempDir(), TTL: 2 * time.Hour},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from defaults, then the config file at path (if
// path is empty or the file is absent it is skipped), then the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	// FILMLENS_OMDB_BASE_URL -> omdb.base_url. Keys with single-word
	// segments map cleanly; list values are comma-separated.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		s = strings.Replace(s, "_", ".", 1)
		return s
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Comma-separated key pool from the environment.
	if s, ok := k.Get("omdb.keys").(string); ok {
		if err := k.Set("omdb.keys", strings.Split(s, ",")); err != nil {
			return nil, fmt.Errorf("failed to set omdb keys: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.OMDB.Keys) == 0 {
		return fmt.Errorf("omdb: at least one API key is required (FILMLENS_OMDB_KEYS)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if c.OMDB.Timeout <= 0 {
		return fmt.Errorf("omdb: timeout must be positive")
	}
	if c.OMDB.RequestsPerSec <= 0 {
		return fmt.Errorf("omdb: requests_per_sec must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
