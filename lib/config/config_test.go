package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FILMLENS_OMDB_KEYS", "k1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.OMDB.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.OMDB.Timeout)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("FILMLENS_OMDB_KEYS", "k1")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "server:\n  port: 9090\nlogging:\n  format: text\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Format = %q, want text", cfg.Logging.Format)
	}
	// Untouched values keep their defaults.
	if cfg.Database.Path != "filmlens.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_EnvOverridesAndKeyPool(t *testing.T) {
	t.Setenv("FILMLENS_OMDB_KEYS", "k1,k2,k3")
	t.Setenv("FILMLENS_SERVER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.OMDB.Keys) != 3 || cfg.OMDB.Keys[2] != "k3" {
		t.Fatalf("Keys = %v, want three keys", cfg.OMDB.Keys)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestLoad_Validation(t *testing.T) {
	t.Run("missing keys", func(t *testing.T) {
		if _, err := Load(""); err == nil {
			t.Fatal("expected an error without API keys")
		}
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("FILMLENS_OMDB_KEYS", "k1")
		t.Setenv("FILMLENS_SERVER_PORT", "70000")
		if _, err := Load(""); err == nil {
			t.Fatal("expected an error for an out-of-range port")
		}
	})
}
