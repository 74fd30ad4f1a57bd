package cache

import (
	"context"
	"fmt"
	"time"
)

// Keyer generates cache keys for the cached upstream queries.
type Keyer interface {
	// TrendingKey is the key for the trending books list of a given size.
	TrendingKey(limit int) string

	// AuthorKey is the key for an author, by normalized name.
	AuthorKey(name string) string
}

// DefaultKeyer produces plain, human-readable keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// TrendingKey returns "trending:books:<limit>".
func (DefaultKeyer) TrendingKey(limit int) string {
	return fmt.Sprintf("trending:books:%d", limit)
}

// AuthorKey returns "author:<name>".
func (DefaultKeyer) AuthorKey(name string) string {
	return "author:" + name
}

// ScopedKeyer wraps a Keyer with a prefix for tenant isolation, e.g. when
// several deployments share one Redis.
//
// Example usage:
//
//	stagingKeyer := NewScopedKeyer(NewDefaultKeyer(), "staging:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// TrendingKey generates a prefixed trending key.
func (k *ScopedKeyer) TrendingKey(limit int) string {
	return k.prefix + k.inner.TrendingKey(limit)
}

// AuthorKey generates a prefixed author key.
func (k *ScopedKeyer) AuthorKey(name string) string {
	return k.prefix + k.inner.AuthorKey(name)
}

// Prefixed namespaces every key of an inner [Cache].
type Prefixed struct {
	inner  Cache
	prefix string
}

// NewPrefixed wraps inner so that every key is stored as prefix+key.
// An empty prefix returns inner unchanged.
func NewPrefixed(inner Cache, prefix string) Cache {
	if prefix == "" {
		return inner
	}
	return &Prefixed{inner: inner, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return p.inner.Set(ctx, p.prefix+key, data, ttl)
}

func (p *Prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}

// Ping forwards to the inner cache when it supports it.
func (p *Prefixed) Ping(ctx context.Context) error {
	if pinger, ok := p.inner.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (p *Prefixed) Close() error {
	return p.inner.Close()
}

var (
	_ Cache  = (*Prefixed)(nil)
	_ Pinger = (*Prefixed)(nil)
)
