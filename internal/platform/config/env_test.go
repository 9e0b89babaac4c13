package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port int `env:"CONTENTSTREAM_TEST_PORT" envDefault:"123"`
}

type prefixedTestConfig struct {
	DBPath       string        `env:"DB_PATH" envDefault:"data/content.db"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CONTENTSTREAM_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvWithPrefixReadsPrefixedNames(t *testing.T) {
	t.Setenv(EnvPrefix+"DB_PATH", "/tmp/other.db")
	t.Setenv("DB_PATH", "/tmp/ignored.db")

	var cfg prefixedTestConfig
	if err := ParseEnvWithPrefix(&cfg, EnvPrefix); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.DBPath != "/tmp/other.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "/tmp/other.db")
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("poll interval = %v, want %v", cfg.PollInterval, 2*time.Second)
	}
}
