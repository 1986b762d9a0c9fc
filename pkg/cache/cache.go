package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrCacheMiss is returned when a key is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

// Tier is an opaque byte-oriented key/value store with TTL semantics. Both
// the process-local and the distributed cache implement it.
type Tier interface {
	// Name identifies the tier in logs and metrics
	Name() string

	// Get returns the stored bytes or ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key using the tier's default TTL
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error
}

// Options represents cache configuration options
type Options struct {
	// DefaultTTL is the TTL applied on every Put
	DefaultTTL time.Duration

	// MaxEntries bounds the number of entries held by a local tier
	MaxEntries int

	// Namespace is a prefix for all cache keys
	Namespace string

	// CompressionThreshold is the minimum size in bytes to enable compression
	CompressionThreshold int
}

// DefaultOptions returns default cache options
func DefaultOptions() *Options {
	return &Options{
		DefaultTTL:           5 * time.Minute,
		MaxEntries:           10000,
		Namespace:            "",
		CompressionThreshold: 1024,
	}
}

// CacheKeyBuilder helps build cache keys with consistent formatting
type CacheKeyBuilder struct {
	namespace string
	separator string
}

// NewCacheKeyBuilder creates a new cache key builder
func NewCacheKeyBuilder(namespace string) *CacheKeyBuilder {
	return &CacheKeyBuilder{
		namespace: namespace,
		separator: ":",
	}
}

// keyPartEscaper keeps parts containing the separator from colliding with
// other part splits.
var keyPartEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Build builds a cache key from parts. Each part is escaped, so distinct
// part lists never produce the same key.
func (b *CacheKeyBuilder) Build(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	if b.namespace != "" {
		escaped = append(escaped, b.namespace)
	}
	for _, p := range parts {
		escaped = append(escaped, keyPartEscaper.Replace(p))
	}
	return strings.Join(escaped, b.separator)
}

// Pattern builds a pattern for cache invalidation
func (b *CacheKeyBuilder) Pattern(parts ...string) string {
	return b.Build(parts...) + "*"
}
