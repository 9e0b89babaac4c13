package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/contentstream/internal/platform/grpc"
	"github.com/louisbranch/contentstream/internal/platform/telemetry/metrics"
	"github.com/louisbranch/contentstream/internal/platform/timeouts"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimension"
	contentsqlite "github.com/louisbranch/contentstream/internal/services/content/storage/sqlite"
	"github.com/louisbranch/contentstream/internal/services/content/subscription"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPort         = 8095
	defaultDBPath       = "data/content.db"
	defaultPollInterval = 2 * time.Second
)

// RuntimeConfig controls daemon startup.
type RuntimeConfig struct {
	Port           int
	MetricsAddr    string
	DBPath         string
	DimensionsPath string
	RootWorkspace  string
	PollInterval   time.Duration
	// RetryMaxAttempts of zero selects NoRetry.
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryFactor      float64
	Logger           *zerolog.Logger
}

func (c RuntimeConfig) retryStrategy() (subscription.RetryStrategy, error) {
	if c.RetryMaxAttempts <= 0 {
		return subscription.NoRetry{}, nil
	}
	return subscription.NewClockBased(c.RetryBaseDelay, c.RetryFactor, c.RetryMaxAttempts)
}

// Run opens storage, composes the content service and serves gRPC health,
// Prometheus metrics and the catch-up loop until ctx is done.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	retry, err := cfg.retryStrategy()
	if err != nil {
		return err
	}

	var catalog *dimension.Catalog
	if path := strings.TrimSpace(cfg.DimensionsPath); path != "" {
		if catalog, err = dimension.LoadFile(path); err != nil {
			return fmt.Errorf("load dimensions: %w", err)
		}
		logger.Info().Str("path", path).Int("dimensions", catalog.Len()).Msg("dimension catalog loaded")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create content storage dir: %w", err)
		}
	}
	store, err := contentsqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open content sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("close content sqlite store")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	content, err := Build(ctx, store, Options{
		Catalog:       catalog,
		RootWorkspace: cfg.RootWorkspace,
		Retry:         retry,
		Metrics:       metrics.NewSubscription(registry),
		Logger:        &logger,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on content port %d: %w", cfg.Port, err)
	}
	health := platformgrpc.NewHealthServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return health.Serve(gctx, listener)
	})
	g.Go(func() error {
		return content.Subscriptions.Run(gctx, cfg.PollInterval)
	})
	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, addr, registry, logger)
		})
	}

	health.SetServing(true)
	logger.Info().
		Str("addr", listener.Addr().String()).
		Str("db_path", cfg.DBPath).
		Dur("poll_interval", cfg.PollInterval).
		Msg("content daemon serving")
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	logger.Info().Str("addr", addr).Msg("metrics listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	}
}
