// Package contentd parses content daemon configuration and launches its
// runtime.
package contentd

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/contentstream/internal/platform/cmd"
	"github.com/louisbranch/contentstream/internal/platform/discovery"
	"github.com/louisbranch/contentstream/internal/platform/logging"
	contentapp "github.com/louisbranch/contentstream/internal/services/content/app"
)

// Config holds content daemon configuration.
type Config struct {
	Port             int           `env:"CONTENTD_PORT" envDefault:"8095"`
	MetricsAddr      string        `env:"CONTENTD_METRICS_ADDR"`
	DBPath           string        `env:"DB_PATH" envDefault:"data/content.db"`
	DimensionsPath   string        `env:"DIMENSIONS_PATH"`
	RootWorkspace    string        `env:"ROOT_WORKSPACE" envDefault:"live"`
	PollInterval     time.Duration `env:"CATCHUP_POLL_INTERVAL" envDefault:"2s"`
	RetryMaxAttempts int           `env:"CATCHUP_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay   time.Duration `env:"CATCHUP_RETRY_BASE_DELAY" envDefault:"5s"`
	RetryFactor      float64       `env:"CATCHUP_RETRY_FACTOR" envDefault:"2"`
	Logging          logging.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.MetricsAddr = discovery.OrDefaultHTTPAddr(cfg.MetricsAddr, discovery.ServiceMetrics)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The content daemon gRPC health port")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "The Prometheus metrics listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The content SQLite database path")
	fs.StringVar(&cfg.DimensionsPath, "dimensions", cfg.DimensionsPath, "The dimension configuration YAML file")
	fs.StringVar(&cfg.RootWorkspace, "root-workspace", cfg.RootWorkspace, "Root workspace created on first start (empty to skip)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Subscription catch-up poll interval")
	fs.IntVar(&cfg.RetryMaxAttempts, "retry-max-attempts", cfg.RetryMaxAttempts, "Catch-up retries before a subscription fails (0 disables retries)")
	fs.DurationVar(&cfg.RetryBaseDelay, "retry-base-delay", cfg.RetryBaseDelay, "Base catch-up retry delay")
	fs.Float64Var(&cfg.RetryFactor, "retry-factor", cfg.RetryFactor, "Catch-up retry backoff factor")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the content daemon.
func Run(ctx context.Context, cfg Config) error {
	logger := logging.FromConfig(cfg.Logging, entrypoint.ServiceContentd)
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceContentd, entrypoint.RunOptions{Logger: &logger}, func(ctx context.Context) error {
		return contentapp.Run(ctx, contentapp.RuntimeConfig{
			Port:             cfg.Port,
			MetricsAddr:      cfg.MetricsAddr,
			DBPath:           cfg.DBPath,
			DimensionsPath:   cfg.DimensionsPath,
			RootWorkspace:    cfg.RootWorkspace,
			PollInterval:     cfg.PollInterval,
			RetryMaxAttempts: cfg.RetryMaxAttempts,
			RetryBaseDelay:   cfg.RetryBaseDelay,
			RetryFactor:      cfg.RetryFactor,
			Logger:           &logger,
		})
	})
}
