package cache

import (
	"context"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LocalCache is a bounded, TTL-expiring, process-local tier. It is safe for
// concurrent use; writers to the same key follow last-writer-wins.
type LocalCache struct {
	lru     *expirable.LRU[string, []byte]
	options *Options
}

// NewLocalCache creates a local tier holding at most opts.MaxEntries items
func NewLocalCache(opts *Options) *LocalCache {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &LocalCache{
		lru:     expirable.NewLRU[string, []byte](opts.MaxEntries, nil, opts.DefaultTTL),
		options: opts,
	}
}

func (c *LocalCache) Name() string {
	return "local"
}

// Get returns a copy of the stored bytes
func (c *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

// Put stores a copy of value so callers may reuse their buffer
func (c *LocalCache) Put(_ context.Context, key string, value []byte) error {
	c.lru.Add(key, append([]byte(nil), value...))
	return nil
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len returns the number of live entries
func (c *LocalCache) Len() int {
	return c.lru.Len()
}
