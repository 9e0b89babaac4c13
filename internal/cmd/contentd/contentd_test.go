package contentd

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("contentd", flag.ContinueOnError)
	t.Setenv("CONTENTSTREAM_CONTENTD_PORT", "9099")
	t.Setenv("CONTENTSTREAM_DIMENSIONS_PATH", "/etc/content/dimensions.yaml")

	cfg, err := ParseConfig(fs, []string{"-poll-interval", "500ms", "-retry-max-attempts", "3"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9099 {
		t.Fatalf("port = %d, want 9099", cfg.Port)
	}
	if cfg.DimensionsPath != "/etc/content/dimensions.yaml" {
		t.Fatalf("dimensions path = %q, want %q", cfg.DimensionsPath, "/etc/content/dimensions.yaml")
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("poll interval = %v, want 500ms", cfg.PollInterval)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("retry max attempts = %d, want 3", cfg.RetryMaxAttempts)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("contentd", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/content.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/content.db")
	}
	if cfg.RootWorkspace != "live" {
		t.Fatalf("root workspace = %q, want %q", cfg.RootWorkspace, "live")
	}
	if cfg.MetricsAddr != "localhost:9095" {
		t.Fatalf("metrics addr = %q, want %q", cfg.MetricsAddr, "localhost:9095")
	}
	if cfg.RetryBaseDelay != 5*time.Second || cfg.RetryFactor != 2 {
		t.Fatalf("retry = %v x%v, want 5s x2", cfg.RetryBaseDelay, cfg.RetryFactor)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("log level = %q, want info", cfg.Logging.Level)
	}
}
