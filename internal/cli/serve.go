package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/shelfcache/internal/server"
	"github.com/matzehuels/shelfcache/pkg/observability"
)

func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr      string
		noMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until interrupted.

Endpoints:
  GET /api/books/trending     trending books
  GET /api/authors/{name}     author details
  GET /healthz                liveness and distributed cache status
  GET /metrics                Prometheus metrics (disable with --no-metrics)

Fresh and stale results are 200; a result still being fetched is 202 with
Retry-After, and clients should poll.`,
		Example: `  shelfcache serve
  shelfcache serve --addr :9000 --config /etc/shelfcache.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.cfg.Server.Addr
			}

			var m *observability.Metrics
			if !noMetrics {
				m = observability.NewMetrics()
				observability.SetCacheHooks(m)
				observability.SetRefreshHooks(m)
				observability.SetHTTPHooks(m)
				defer observability.Reset()
			}

			a := c.newApp()
			defer a.Close()

			opts := server.Options{Addr: addr, Logger: c.Logger, Metrics: m}
			if c.distributedEnabled() {
				opts.Distributed = a.dist
			}
			return server.New(a.svc, opts).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config)")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "disable the /metrics endpoint")
	return cmd
}
