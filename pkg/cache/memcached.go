package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// maxMemcachedKey is memcached's key length limit.
const maxMemcachedKey = 250

// Memcached is a [Cache] backed by one or more memcached servers.
//
// memcached does not report an item's expiry on GET, so the expiry is
// stored as a 4-byte big-endian Unix timestamp in front of every value and
// checked on read.
type Memcached struct {
	client *memcache.Client
	now    func() time.Time
}

// NewMemcached creates a client for the given servers.
func NewMemcached(timeout time.Duration, servers ...string) *Memcached {
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &Memcached{client: client, now: time.Now}
}

// Get retrieves a value. The client has no context support, so ctx is only
// checked before the call.
func (m *Memcached) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := m.client.Get(memcachedKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(item.Value) < 4 {
		return nil, false, errors.New("memcached value missing expiry prefix")
	}
	if exp := binary.BigEndian.Uint32(item.Value); exp != 0 && m.now().Unix() >= int64(exp) {
		return nil, false, nil
	}
	return item.Value[4:], true, nil
}

// Set stores a value. A ttl <= 0 never expires.
func (m *Memcached) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var exp int64
	if ttl > 0 {
		exp = m.now().Add(ttl).Unix()
	}
	value := make([]byte, 4, 4+len(data))
	binary.BigEndian.PutUint32(value, uint32(exp))
	return m.client.Set(&memcache.Item{
		Key:        memcachedKey(key),
		Value:      append(value, data...),
		Expiration: int32(exp),
	})
}

// Delete removes a value. Deleting a missing key is not an error.
func (m *Memcached) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := m.client.Delete(memcachedKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Ping reads a sentinel key; a miss proves the servers answer.
func (m *Memcached) Ping(ctx context.Context) error {
	_, _, err := m.Get(ctx, "shelfcache:ping")
	return err
}

// Close does nothing; the client holds only idle connections.
func (m *Memcached) Close() error {
	return nil
}

// memcachedKey maps keys that memcached would reject (too long, spaces,
// control characters) onto "h:" plus their hex SHA-256.
func memcachedKey(key string) string {
	legal := len(key) <= maxMemcachedKey
	for i := 0; legal && i < len(key); i++ {
		legal = key[i] > ' ' && key[i] != 0x7f
	}
	if legal {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return "h:" + hex.EncodeToString(sum[:])
}

var (
	_ Cache  = (*Memcached)(nil)
	_ Pinger = (*Memcached)(nil)
)
