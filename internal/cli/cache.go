package cli

import (
	"github.com/spf13/cobra"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the distributed cache",
	}

	cmd.AddCommand(c.cacheInvalidateCommand())
	cmd.AddCommand(c.cachePingCommand())
	cmd.AddCommand(c.cacheKeyCommand())

	return cmd
}

// cacheInvalidateCommand creates the "cache invalidate" subcommand.
func (c *CLI) cacheInvalidateCommand() *cobra.Command {
	var (
		trending bool
		authors  []string
	)

	cmd := &cobra.Command{
		Use:   "invalidate [key...]",
		Short: "Delete entries from the distributed cache",
		Long: `Delete entries from the distributed cache so the next request refetches
them. Keys are given without the configured prefix. Running servers keep
their in-memory copy until it expires.`,
		Example: `  shelfcache cache invalidate --trending
  shelfcache cache invalidate --author "Octavia Butler"
  shelfcache cache invalidate author:octavia-butler`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.newApp()
			defer a.Close()

			keys := append([]string(nil), args...)
			if trending {
				keys = append(keys, a.svc.TrendingKey())
			}
			for _, name := range authors {
				key := a.svc.AuthorKey(name)
				if key == "" {
					return errs.New(errs.ErrCodeInvalidInput, "author name %q has no letters or digits", name)
				}
				keys = append(keys, key)
			}
			if len(keys) == 0 {
				return errs.New(errs.ErrCodeInvalidInput, "nothing to invalidate: pass keys, --trending or --author")
			}
			for _, key := range keys {
				if err := errs.ValidateKey(key); err != nil {
					return err
				}
			}

			if !c.distributedEnabled() {
				printWarning(c.out, "No distributed cache configured")
				return nil
			}
			if err := a.dist.Ping(cmd.Context()); err != nil {
				return err
			}
			for _, key := range keys {
				a.svc.Invalidate(cmd.Context(), key)
				printSuccess(c.out, "Invalidated %s", key)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&trending, "trending", false, "invalidate the trending list")
	cmd.Flags().StringArrayVar(&authors, "author", nil, "invalidate an author by name (repeatable)")
	return cmd
}

// cachePingCommand creates the "cache ping" subcommand.
func (c *CLI) cachePingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the distributed cache is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := c.cfg.Distributed
			if !c.distributedEnabled() {
				printInfo(c.out, "Distributed cache disabled")
				return nil
			}

			dist := c.cfg.OpenDistributed(c.Logger)
			defer dist.Close()

			prog := newProgress(c.Logger)
			if err := dist.Ping(cmd.Context()); err != nil {
				printError(c.out, "%s at %s is unreachable", d.Backend, d.Addr)
				return err
			}
			prog.done("ping", "backend", d.Backend)
			printSuccess(c.out, "%s at %s is reachable", d.Backend, d.Addr)
			return nil
		},
	}
}

// cacheKeyCommand creates the "cache key" subcommand.
func (c *CLI) cacheKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "key <trending|author> [name]",
		Short: "Print the cache key for a lookup",
		Example: `  shelfcache cache key trending
  shelfcache cache key author "Ursula K. Le Guin"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.newApp()
			defer a.Close()

			var key string
			switch {
			case args[0] == "trending" && len(args) == 1:
				key = a.svc.TrendingKey()
			case args[0] == "author" && len(args) == 2:
				key = a.svc.AuthorKey(args[1])
			}
			if key == "" {
				return errs.New(errs.ErrCodeInvalidInput, "usage: cache key trending | cache key author <name>")
			}
			printKeyValue(c.out, "Key", key)
			if p := c.cfg.Distributed.Prefix; p != "" {
				printKeyValue(c.out, "Stored as", p+key)
			}
			return nil
		},
	}
}
