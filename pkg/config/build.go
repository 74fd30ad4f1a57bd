package config

import (
	"github.com/charmbracelet/log"

	"github.com/matzehuels/shelfcache/pkg/cache"
	"github.com/matzehuels/shelfcache/pkg/httputil"
	"github.com/matzehuels/shelfcache/pkg/refresh"
	"github.com/matzehuels/shelfcache/pkg/tiered"
)

// RetryPolicy converts the [retry] section.
func (c Config) RetryPolicy() httputil.Policy {
	return httputil.Policy{
		Attempts:       c.Retry.Attempts,
		BaseDelay:      c.Retry.BaseDelay,
		InitialTimeout: c.Retry.InitialTimeout,
		MaxTimeout:     c.Retry.MaxTimeout,
		MaxDelay:       c.Retry.MaxDelay,
	}
}

// RefreshConfig converts the [refresh] section.
func (c Config) RefreshConfig() refresh.Config {
	return refresh.Config{
		MinInterval: c.Refresh.MinInterval,
		Threshold:   c.Refresh.Threshold,
		MaxJitter:   c.Refresh.MaxJitter,
		Concurrency: c.Refresh.Concurrency,
	}
}

// TieredOptions builds the options shared by every tiered manager.
func (c Config) TieredOptions(dist *cache.Distributed, logger *log.Logger) tiered.Options {
	rc := c.RefreshConfig()
	return tiered.Options{
		MemoryTTL:      c.Cache.MemoryTTL,
		DistributedTTL: c.Cache.DistributedTTL,
		Capacity:       c.Cache.Capacity,
		BoundedWait:    c.Cache.BoundedWait,
		Retry:          c.RetryPolicy(),
		Refresh:        &rc,
		Distributed:    dist,
		Logger:         logger,
	}
}

// OpenDistributed creates the shared cache selected by [distributed].
// Connections are lazy, so an unreachable server is not an error here; use
// Ping to check. Backend "none" yields a tier that always misses.
func (c Config) OpenDistributed(logger *log.Logger) *cache.Distributed {
	d := c.Distributed
	var backend cache.Cache
	switch d.Backend {
	case BackendRedis:
		backend = cache.NewRedis(cache.RedisConfig{
			Addrs:    d.Addrs(),
			Password: d.Password,
			DB:       d.DB,
			Timeout:  d.Timeout,
		})
	case BackendMemcached:
		backend = cache.NewMemcached(d.Timeout, d.Addrs()...)
	default:
		backend = cache.NewNullCache()
	}
	return cache.NewDistributed(cache.NewPrefixed(backend, d.Prefix), d.Timeout, logger)
}
