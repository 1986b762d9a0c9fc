package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
)

const (
	flagPlain      byte = 0
	flagCompressed byte = 1
)

// RedisCache is the distributed tier, shared by every process.
type RedisCache struct {
	client  redis.UniversalClient
	options *Options
}

// NewRedisCache creates a new Redis tier
func NewRedisCache(client redis.UniversalClient, opts *Options) *RedisCache {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &RedisCache{
		client:  client,
		options: opts,
	}
}

func (c *RedisCache) Name() string {
	return "distributed"
}

// Get retrieves a value from redis
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	value, err := c.decompress(data)
	if err != nil {
		return nil, fmt.Errorf("redis decompress error: %w", err)
	}
	return value, nil
}

// Put stores a value with the default TTL
func (c *RedisCache) Put(ctx context.Context, key string, value []byte) error {
	data, err := c.compress(value)
	if err != nil {
		return fmt.Errorf("redis compress error: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(key), data, c.options.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete removes a key from redis
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Ping checks if redis is available
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) buildKey(key string) string {
	if c.options.Namespace != "" {
		return c.options.Namespace + ":" + key
	}
	return key
}

// Every stored value carries a one byte header so that values written below
// and above the compression threshold can be told apart on read.
func (c *RedisCache) compress(data []byte) ([]byte, error) {
	if c.options.CompressionThreshold <= 0 || len(data) < c.options.CompressionThreshold {
		return append([]byte{flagPlain}, data...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(flagCompressed)

	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *RedisCache) decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	switch data[0] {
	case flagPlain:
		return data[1:], nil
	case flagCompressed:
		gz, err := gzip.NewReader(bytes.NewReader(data[1:]))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)
	default:
		return nil, fmt.Errorf("unknown value header %d", data[0])
	}
}
