// Package contentctl implements the operator CLI for a content database.
package contentctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	entrypoint "github.com/louisbranch/contentstream/internal/platform/cmd"
	"github.com/louisbranch/contentstream/internal/platform/discovery"
	"github.com/louisbranch/contentstream/internal/platform/logging"
	contentapp "github.com/louisbranch/contentstream/internal/services/content/app"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimension"
	"github.com/louisbranch/contentstream/internal/services/content/storage/sqlite"
	"github.com/spf13/cobra"
)

// Config holds the environment defaults for contentctl flags.
type Config struct {
	DBPath         string `env:"DB_PATH" envDefault:"data/content.db"`
	DimensionsPath string `env:"DIMENSIONS_PATH"`
	Addr           string `env:"CONTENTD_ADDR"`
	Logging        logging.Config
}

// LoadConfig reads contentctl defaults from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Addr = discovery.OrDefaultGRPCAddr(cfg.Addr, discovery.ServiceContentd)
	return cfg, nil
}

// cli carries the persistent flag values shared by subcommands.
type cli struct {
	cfg  Config
	json bool
}

// NewRootCommand builds the contentctl command tree with cfg as flag defaults.
func NewRootCommand(cfg Config) *cobra.Command {
	c := &cli{cfg: cfg}
	root := &cobra.Command{
		Use:           entrypoint.ServiceContentctl,
		Short:         "Inspect and operate a content database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.cfg.DBPath, "db-path", cfg.DBPath, "content SQLite database path")
	root.PersistentFlags().StringVar(&c.cfg.DimensionsPath, "dimensions", cfg.DimensionsPath, "dimension configuration YAML file")
	root.PersistentFlags().BoolVar(&c.json, "json", false, "output as JSON")

	root.AddCommand(c.subscriptionsCmd())
	root.AddCommand(c.workspacesCmd())
	root.AddCommand(c.streamsCmd())
	root.AddCommand(c.eventsCmd())
	root.AddCommand(c.tagsCmd())
	root.AddCommand(c.healthCmd())
	return root
}

// Execute runs the command tree against args.
func Execute(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) error {
	root := NewRootCommand(cfg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// openStore opens the database named by --db-path. The caller closes it.
func (c *cli) openStore(ctx context.Context) (*sqlite.Store, error) {
	path := strings.TrimSpace(c.cfg.DBPath)
	if path == "" {
		return nil, fmt.Errorf("--db-path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("content database %s: %w", path, err)
	}
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	return store, nil
}

// withContent composes the content service over the database and runs fn.
// No root workspace is created.
func (c *cli) withContent(ctx context.Context, fn func(*contentapp.Content) error) error {
	store, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var catalog *dimension.Catalog
	if path := strings.TrimSpace(c.cfg.DimensionsPath); path != "" {
		if catalog, err = dimension.LoadFile(path); err != nil {
			return fmt.Errorf("load dimensions: %w", err)
		}
	}
	logger := logging.FromConfig(c.cfg.Logging, entrypoint.ServiceContentctl)
	content, err := contentapp.Build(ctx, store, contentapp.Options{Catalog: catalog, Logger: &logger})
	if err != nil {
		return err
	}
	return fn(content)
}

// render writes value as indented JSON when --json is set, otherwise it
// calls table with a tab-aligned writer.
func (c *cli) render(cmd *cobra.Command, value any, table func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if c.json {
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}
