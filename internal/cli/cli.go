// Package cli implements the nlink command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matzehuels/nlink/pkg/artifact"
	"github.com/matzehuels/nlink/pkg/artifact/mongosink"
	"github.com/matzehuels/nlink/pkg/buildinfo"
	"github.com/matzehuels/nlink/pkg/cache"
	"github.com/matzehuels/nlink/pkg/config"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/observability/prom"
	"github.com/matzehuels/nlink/pkg/pagestore"
	"github.com/matzehuels/nlink/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "nlink"

	// envStore names the environment variable holding the default store path.
	envStore = "NLINK_STORE"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath  string
	storePath   string
	metricsFile string
	noCache     bool
	refresh     bool

	cfg     config.Config
	metrics *prom.Metrics
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		cfg:    config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "nlink maps the basins of the N-link rule over a page graph",
		Long: `nlink follows the Nth outgoing link of every page of a link graph. Under
each rule every page drains into a HALT page or a cycle; nlink traces those
paths, maps the basins that feed each terminal, decomposes them into
branches and tracks how pages tunnel between basins as N changes.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.flushMetrics()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/nlink/config.toml)")
	pf.StringVarP(&c.storePath, "store", "s", os.Getenv(envStore), "page store file (.jsonl or .json); env "+envStore)
	pf.StringVar(&c.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.BoolVar(&c.noCache, "no-cache", false, "disable the index and basin cache")
	pf.BoolVar(&c.refresh, "refresh", false, "ignore cached entries and recompute")

	// Register all subcommands
	root.AddCommand(c.indexCommand())
	root.AddCommand(c.traceCommand())
	root.AddCommand(c.terminalsCommand())
	root.AddCommand(c.basinCommand())
	root.AddCommand(c.branchesCommand())
	root.AddCommand(c.multiplexCommand())
	root.AddCommand(c.batchCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// setup loads the config file and installs metrics before any command runs.
func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg
	cmd.SetContext(withLogger(cmd.Context(), c.Logger))

	if c.metricsFile != "" {
		c.metrics = prom.New(prometheus.NewRegistry())
		c.metrics.Install()
	}
	return nil
}

func (c *CLI) flushMetrics() error {
	if c.metrics == nil {
		return nil
	}
	if err := c.metrics.WriteTextfile(c.metricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	c.Logger.Debug("wrote metrics", "path", c.metricsFile)
	return nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// loadStore reads the page store named by --store.
func (c *CLI) loadStore(ctx context.Context) (*pagestore.Store, error) {
	if c.storePath == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no page store given (use --store or %s)", envStore)
	}
	if err := errors.ValidatePath(c.storePath); err != nil {
		return nil, err
	}

	prog := newStepTimer(loggerFromContext(ctx))
	spinner := newSpinnerWithContext(ctx, "Loading page store...")
	spinner.Start()
	s, err := pagestore.Load(c.storePath)
	spinner.Stop()
	if err != nil {
		return nil, err
	}
	st := s.Stats()
	prog.done(fmt.Sprintf("Loaded %d pages, %d links", st.Pages, st.Links))
	return s, nil
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context) (*pipeline.Runner, error) {
	s, err := c.loadStore(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := c.newCache(ctx)
	if err != nil {
		return nil, err
	}
	r := pipeline.NewRunner(s, ch, nil, c.Logger)
	r.Refresh = c.refresh
	r.BasinTTL = c.cfg.Cache.TTL
	return r, nil
}

func (c *CLI) newCache(ctx context.Context) (cache.Cache, error) {
	if c.noCache {
		return cache.NewNullCache(), nil
	}
	cc := c.cfg.Cache
	switch cc.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendBadger:
		bc := cache.DefaultBadgerConfig(cc.Dir)
		bc.Logger = c.Logger
		return cache.NewBadgerCache(bc)
	case config.BackendRedis:
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cc.RedisAddr,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
			Prefix:   appName + ":",
		})
	default:
		return cache.NewFileCache(cc.Dir)
	}
}

// newPublisher returns the configured artifact sink and a function that
// releases it.
func (c *CLI) newPublisher(ctx context.Context, outDir string) (artifact.Publisher, func(), error) {
	out := c.cfg.Output
	if out.Sink == config.SinkMongo {
		s, err := mongosink.Connect(ctx, out.MongoURI, out.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close(context.Background()) }, nil
	}
	dir := out.Dir
	if outDir != "" {
		dir = outDir
	}
	return artifact.NewFileSink(dir), func() {}, nil
}
