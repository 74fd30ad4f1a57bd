// Package cli implements the shelfcache command-line interface.
//
// # Commands
//
//   - serve: run the HTTP API in front of the cache tiers
//   - get: one-shot lookups (trending books, authors) through the same tiers
//   - cache: invalidate keys and check the distributed cache
//   - config: write or print the effective configuration
//
// # Configuration
//
// Every command reads shelfcache.toml (see pkg/config) before running;
// --config points at a specific file. --verbose (-v) forces debug logging,
// otherwise log.level from the config applies.
package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/shelfcache/pkg/buildinfo"
	"github.com/matzehuels/shelfcache/pkg/config"
)

const appName = "shelfcache"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	out        io.Writer
	errOut     io.Writer
	configPath string
	verbose    bool
	cfg        config.Config
}

// New creates a CLI that logs to w at level and prints results to stdout.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		out:    os.Stdout,
		errOut: w,
		cfg:    config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// SetOutput redirects command output, for tests.
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Shelfcache serves book metadata from a tiered cache",
		Long:          `Shelfcache sits in front of slow book-metadata APIs (Hardcover, Open Library) and answers from an in-process LRU and a shared Redis or memcached tier, refreshing entries in the background before they expire.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ./shelfcache.toml, then the user config dir)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.getCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())

	return root
}

// loadConfig reads the config and applies its log level unless --verbose
// already asked for debug output.
func (c *CLI) loadConfig() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	switch {
	case c.verbose:
		c.SetLogLevel(LogDebug)
	case cfg.Log.Level != "":
		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			c.Logger.Warn("ignoring unknown log.level", "level", cfg.Log.Level)
			break
		}
		c.SetLogLevel(level)
	}
	if cfg.File != "" {
		c.Logger.Debug("loaded config", "file", cfg.File)
	}
	return nil
}
