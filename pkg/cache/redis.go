package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a [Cache] backed by a Redis server, using GET, SETEX and DEL.
type Redis struct {
	client redis.UniversalClient
}

// RedisConfig holds connection settings for [NewRedis].
type RedisConfig struct {
	Addrs    []string      // One address for a single node, several for a cluster
	Password string        // Optional AUTH password
	DB       int           // Database index (single node only)
	Timeout  time.Duration // Dial/read/write timeout
}

// NewRedis connects lazily to the configured Redis.
func NewRedis(cfg RedisConfig) *Redis {
	return NewRedisFromClient(redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}))
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Get retrieves a value. redis.Nil is reported as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a value with SETEX, or a plain SET when ttl <= 0.
func (r *Redis) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return r.client.Set(ctx, key, data, 0).Err()
	}
	return r.client.SetEx(ctx, key, data, ttl).Err()
}

// Delete removes a value.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client and its pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

var (
	_ Cache  = (*Redis)(nil)
	_ Pinger = (*Redis)(nil)
)
