// Package config loads shelfcache settings from a TOML file, SHELFCACHE_*
// environment variables, and built-in defaults, in that order of precedence
// (environment wins over file).
//
// # File Location
//
// Without an explicit path, [Load] looks for shelfcache.toml in the working
// directory and then in the user config directory (~/.config/shelfcache on
// Linux). A missing file is not an error; the defaults apply.
//
// # Environment
//
// Every key can be overridden by its upper-cased, underscore-joined form:
// cache.memory_ttl becomes SHELFCACHE_CACHE_MEMORY_TTL.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	errs "github.com/matzehuels/shelfcache/pkg/errors"
)

const (
	appName   = "shelfcache"
	envPrefix = "SHELFCACHE"

	// FileName is the config file name looked up in the search paths.
	FileName = appName + ".toml"
)

// Config is the full set of settings.
type Config struct {
	Cache       CacheConfig       `mapstructure:"cache"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Distributed DistributedConfig `mapstructure:"distributed"`
	Hardcover   HardcoverConfig   `mapstructure:"hardcover"`
	OpenLibrary OpenLibraryConfig `mapstructure:"openlibrary"`
	Covers      CoversConfig      `mapstructure:"covers"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

type CacheConfig struct {
	MemoryTTL      time.Duration `mapstructure:"memory_ttl"`
	DistributedTTL time.Duration `mapstructure:"distributed_ttl"`
	Capacity       int           `mapstructure:"capacity"`
	BoundedWait    time.Duration `mapstructure:"bounded_wait"`
}

type RetryConfig struct {
	Attempts       int           `mapstructure:"attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	InitialTimeout time.Duration `mapstructure:"initial_timeout"`
	MaxTimeout     time.Duration `mapstructure:"max_timeout"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
}

type RefreshConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
	Threshold   float64       `mapstructure:"threshold"`
	MaxJitter   time.Duration `mapstructure:"max_jitter"`
	Concurrency int           `mapstructure:"concurrency"`
}

// DistributedConfig selects the shared cache. Backend is one of
// "redis", "memcached" or "none". Addr may list several comma-separated
// servers for memcached or a redis cluster.
type DistributedConfig struct {
	Backend  string        `mapstructure:"backend"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addrs splits Addr on commas.
func (d DistributedConfig) Addrs() []string {
	var out []string
	for _, a := range strings.Split(d.Addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

type HardcoverConfig struct {
	Endpoint          string  `mapstructure:"endpoint"`
	TokenEnv          string  `mapstructure:"token_env"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	TrendingLimit     int     `mapstructure:"trending_limit"`
}

// Token reads the API token from the environment variable named by TokenEnv.
// The token itself is never stored in the config file.
func (h HardcoverConfig) Token() string {
	if h.TokenEnv == "" {
		return ""
	}
	return os.Getenv(h.TokenEnv)
}

type OpenLibraryConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type CoversConfig struct {
	Width      int `mapstructure:"width"`
	LanguageID int `mapstructure:"language_id"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Backends accepted by DistributedConfig.Backend.
const (
	BackendRedis     = "redis"
	BackendMemcached = "memcached"
	BackendNone      = "none"
)

func setDefaults(v *viper.Viper) {
	// [cache]
	v.SetDefault("cache.memory_ttl", "5m")
	v.SetDefault("cache.distributed_ttl", "1h")
	v.SetDefault("cache.capacity", 1024)
	v.SetDefault("cache.bounded_wait", "2s")

	// [retry]
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.initial_timeout", "10s")
	v.SetDefault("retry.max_timeout", "60s")
	v.SetDefault("retry.max_delay", "30s")

	// [refresh]
	v.SetDefault("refresh.min_interval", "30s")
	v.SetDefault("refresh.threshold", 0.25)
	v.SetDefault("refresh.max_jitter", "3s")
	v.SetDefault("refresh.concurrency", 8)

	// [distributed]
	v.SetDefault("distributed.backend", BackendRedis)
	v.SetDefault("distributed.addr", "localhost:6379")
	v.SetDefault("distributed.password", "")
	v.SetDefault("distributed.db", 0)
	v.SetDefault("distributed.prefix", appName+":")
	v.SetDefault("distributed.timeout", "500ms")

	// [hardcover]
	v.SetDefault("hardcover.endpoint", "https://api.hardcover.app/v1/graphql")
	v.SetDefault("hardcover.token_env", "HARDCOVER_API_TOKEN")
	v.SetDefault("hardcover.requests_per_second", 1.0)
	v.SetDefault("hardcover.trending_limit", 20)

	// [openlibrary]
	v.SetDefault("openlibrary.base_url", "https://openlibrary.org")

	// [covers]
	v.SetDefault("covers.width", 800)
	v.SetDefault("covers.language_id", 1)

	// [server]
	v.SetDefault("server.addr", ":8080")

	// [log]
	v.SetDefault("log.level", "info")
}

// Default returns the built-in defaults.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Defaults always decode.
	_ = v.Unmarshal(&c)
	return c
}

// Load reads the configuration. An explicit path must exist; without one
// the search paths are tried and a missing file falls back to defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(appName)
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, errs.Wrap(errs.ErrCodeInvalidInput, err, "read config")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errs.Wrap(errs.ErrCodeInvalidInput, err, "decode config")
	}
	c.File = v.ConfigFileUsed()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Dir returns the per-user config directory (~/.config/shelfcache on Linux).
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

// Validate checks value ranges that the decoder cannot.
func (c Config) Validate() error {
	switch {
	case c.Cache.MemoryTTL <= 0:
		return errs.New(errs.ErrCodeInvalidInput, "cache.memory_ttl must be positive")
	case c.Cache.DistributedTTL <= 0:
		return errs.New(errs.ErrCodeInvalidInput, "cache.distributed_ttl must be positive")
	case c.Cache.Capacity <= 0:
		return errs.New(errs.ErrCodeInvalidInput, "cache.capacity must be positive")
	case c.Retry.Attempts < 1:
		return errs.New(errs.ErrCodeInvalidInput, "retry.attempts must be at least 1")
	case c.Refresh.Threshold < 0 || c.Refresh.Threshold > 1:
		return errs.New(errs.ErrCodeInvalidInput, "refresh.threshold must be within [0, 1]")
	case c.Refresh.Concurrency < 1:
		return errs.New(errs.ErrCodeInvalidInput, "refresh.concurrency must be at least 1")
	case c.Hardcover.TrendingLimit < 1:
		return errs.New(errs.ErrCodeInvalidInput, "hardcover.trending_limit must be at least 1")
	}

	switch c.Distributed.Backend {
	case BackendRedis, BackendMemcached:
		if len(c.Distributed.Addrs()) == 0 {
			return errs.New(errs.ErrCodeInvalidInput, "distributed.addr is required for %s", c.Distributed.Backend)
		}
	case BackendNone, "":
	default:
		return errs.New(errs.ErrCodeInvalidInput, "unknown distributed.backend %q", c.Distributed.Backend)
	}
	return nil
}
