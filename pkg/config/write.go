package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
)

// fileConfig mirrors Config with durations spelled as strings ("5m0s"),
// the form viper parses back.
type fileConfig struct {
	Cache struct {
		MemoryTTL      string `toml:"memory_ttl"`
		DistributedTTL string `toml:"distributed_ttl"`
		Capacity       int    `toml:"capacity"`
		BoundedWait    string `toml:"bounded_wait"`
	} `toml:"cache"`
	Retry struct {
		Attempts       int    `toml:"attempts"`
		BaseDelay      string `toml:"base_delay"`
		InitialTimeout string `toml:"initial_timeout"`
		MaxTimeout     string `toml:"max_timeout"`
		MaxDelay       string `toml:"max_delay"`
	} `toml:"retry"`
	Refresh struct {
		MinInterval string  `toml:"min_interval"`
		Threshold   float64 `toml:"threshold"`
		MaxJitter   string  `toml:"max_jitter"`
		Concurrency int     `toml:"concurrency"`
	} `toml:"refresh"`
	Distributed struct {
		Backend  string `toml:"backend"`
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
		Timeout  string `toml:"timeout"`
	} `toml:"distributed"`
	Hardcover struct {
		Endpoint          string  `toml:"endpoint"`
		TokenEnv          string  `toml:"token_env"`
		RequestsPerSecond float64 `toml:"requests_per_second"`
		TrendingLimit     int     `toml:"trending_limit"`
	} `toml:"hardcover"`
	OpenLibrary struct {
		BaseURL string `toml:"base_url"`
	} `toml:"openlibrary"`
	Covers struct {
		Width      int `toml:"width"`
		LanguageID int `toml:"language_id"`
	} `toml:"covers"`
	Server struct {
		Addr string `toml:"addr"`
	} `toml:"server"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

func toFile(c Config) fileConfig {
	d := func(v time.Duration) string { return v.String() }

	var f fileConfig
	f.Cache.MemoryTTL = d(c.Cache.MemoryTTL)
	f.Cache.DistributedTTL = d(c.Cache.DistributedTTL)
	f.Cache.Capacity = c.Cache.Capacity
	f.Cache.BoundedWait = d(c.Cache.BoundedWait)

	f.Retry.Attempts = c.Retry.Attempts
	f.Retry.BaseDelay = d(c.Retry.BaseDelay)
	f.Retry.InitialTimeout = d(c.Retry.InitialTimeout)
	f.Retry.MaxTimeout = d(c.Retry.MaxTimeout)
	f.Retry.MaxDelay = d(c.Retry.MaxDelay)

	f.Refresh.MinInterval = d(c.Refresh.MinInterval)
	f.Refresh.Threshold = c.Refresh.Threshold
	f.Refresh.MaxJitter = d(c.Refresh.MaxJitter)
	f.Refresh.Concurrency = c.Refresh.Concurrency

	f.Distributed.Backend = c.Distributed.Backend
	f.Distributed.Addr = c.Distributed.Addr
	f.Distributed.Password = c.Distributed.Password
	f.Distributed.DB = c.Distributed.DB
	f.Distributed.Prefix = c.Distributed.Prefix
	f.Distributed.Timeout = d(c.Distributed.Timeout)

	f.Hardcover.Endpoint = c.Hardcover.Endpoint
	f.Hardcover.TokenEnv = c.Hardcover.TokenEnv
	f.Hardcover.RequestsPerSecond = c.Hardcover.RequestsPerSecond
	f.Hardcover.TrendingLimit = c.Hardcover.TrendingLimit

	f.OpenLibrary.BaseURL = c.OpenLibrary.BaseURL
	f.Covers.Width = c.Covers.Width
	f.Covers.LanguageID = c.Covers.LanguageID
	f.Server.Addr = c.Server.Addr
	f.Log.Level = c.Log.Level
	return f
}

// Encode writes c as TOML.
func Encode(w io.Writer, c Config) error {
	if err := toml.NewEncoder(w).Encode(toFile(c)); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "encode config")
	}
	return nil
}

// WriteFile writes c to path, creating parent directories. An existing
// file is left alone unless overwrite is set.
func WriteFile(path string, c Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errs.New(errs.ErrCodeInvalidInput, "%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "create config directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "open %s", path)
	}
	if err := Encode(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
