package cli

import (
	"github.com/matzehuels/shelfcache/pkg/books"
	"github.com/matzehuels/shelfcache/pkg/cache"
	"github.com/matzehuels/shelfcache/pkg/config"
	"github.com/matzehuels/shelfcache/pkg/cover"
	"github.com/matzehuels/shelfcache/pkg/httputil"
	"github.com/matzehuels/shelfcache/pkg/integrations/hardcover"
	"github.com/matzehuels/shelfcache/pkg/integrations/openlibrary"
)

// app is the wired service graph shared by serve and get.
type app struct {
	dist *cache.Distributed
	svc  *books.Service
}

// newApp builds the upstream clients, cache tiers and service from c.cfg.
func (c *CLI) newApp() *app {
	cfg := c.cfg
	dist := cfg.OpenDistributed(c.Logger)

	hc := cfg.Hardcover
	if hc.Token() == "" {
		c.Logger.Warn("no Hardcover token set; trending requests will be rejected", "env", hc.TokenEnv)
	}
	trending := hardcover.NewClient(hc.Endpoint, hc.Token(), httputil.NewThrottledClient(hc.RequestsPerSecond), c.Logger)
	authors := openlibrary.NewClient(cfg.OpenLibrary.BaseURL, nil, c.Logger)

	svc := books.New(books.Options{
		Trending:      trending,
		Authors:       authors,
		Selector:      cover.NewSelector(cfg.Covers.LanguageID, cfg.Covers.Width),
		TrendingLimit: hc.TrendingLimit,
		Cache:         cfg.TieredOptions(dist, c.Logger),
	})
	return &app{dist: dist, svc: svc}
}

// Close stops background work, then the distributed tier.
func (a *app) Close() {
	a.svc.Close()
	_ = a.dist.Close()
}

func (c *CLI) distributedEnabled() bool {
	b := c.cfg.Distributed.Backend
	return b != "" && b != config.BackendNone
}
