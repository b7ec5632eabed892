package registry

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/carbonwise/go-forecaster/feature"
	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	bundle    *Bundle
	expiresAt time.Time
}

// CacheStats counts lookups served by a Cached store.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// Cached is a read-through, write-through LRU in front of a Store. Cached bundles are shared
// between callers and must not be modified.
type Cached struct {
	Store

	cache *lru.Cache[Key, cacheEntry]
	ttl   time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCached wraps store with an LRU holding up to size bundles. A ttl of 0 keeps entries until
// they are evicted.
func NewCached(store Store, size int, ttl time.Duration) (*Cached, error) {
	cache, err := lru.New[Key, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cached{Store: store, cache: cache, ttl: ttl}, nil
}

func (c *Cached) Save(ctx context.Context, key Key, b *Bundle) error {
	if err := c.Store.Save(ctx, key, b); err != nil {
		c.cache.Remove(key)
		return err
	}
	// the stored copy is sanitized, so the next Load reads it back from the store
	c.cache.Remove(key)
	return nil
}

func (c *Cached) Load(ctx context.Context, key Key) (*Bundle, error) {
	if e, ok := c.cache.Get(key); ok {
		if c.ttl <= 0 || time.Now().Before(e.expiresAt) {
			c.hits.Add(1)
			return e.bundle, nil
		}
		c.cache.Remove(key)
	}
	c.misses.Add(1)

	b, err := c.Store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	e := cacheEntry{bundle: b}
	if c.ttl > 0 {
		e.expiresAt = time.Now().Add(c.ttl)
	}
	c.cache.Add(key, e)
	return b, nil
}

func (c *Cached) Delete(ctx context.Context, r feature.Resource, entity string) error {
	for _, k := range c.cache.Keys() {
		if k.Resource == r && k.Entity == entity {
			c.cache.Remove(k)
		}
	}
	return c.Store.Delete(ctx, r, entity)
}

func (c *Cached) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Len returns the number of cached bundles.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// Close closes the wrapped store if it holds a connection.
func (c *Cached) Close() error {
	c.cache.Purge()
	if cl, ok := c.Store.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
