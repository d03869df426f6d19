package render

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vango-dev/motion/pkg/component"
)

// DefaultCacheSize is the number of renders a Cache keeps when asked for a
// non-positive size.
const DefaultCacheSize = 64

type cacheKey struct {
	typ string
	fp  component.Fingerprint
}

// Cache is a renderer that memoizes output by render fingerprint.
//
// A fingerprint covers every input of a render, so equal fingerprints of the
// same component type produce equal output. Components whose fingerprint
// fails or is empty bypass the cache. Refresh renders past the cache.
type Cache struct {
	next  component.Renderer
	cache *lru.Cache[cacheKey, component.Output]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Cached wraps next in an LRU cache holding size renders.
func Cached(next component.Renderer, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, component.Output](size)
	if err != nil {
		return nil, fmt.Errorf("render: create cache: %w", err)
	}
	return &Cache{next: next, cache: cache}, nil
}

// Render implements component.Renderer.
func (c *Cache) Render(comp component.Component) (component.Output, error) {
	key, ok := keyOf(comp)
	if !ok {
		return c.next.Render(comp)
	}
	if out, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return out, nil
	}
	c.misses.Add(1)
	return c.store(key, comp)
}

// Refresh implements component.Refresher. It always renders and replaces
// the cached output.
func (c *Cache) Refresh(comp component.Component) (component.Output, error) {
	key, ok := keyOf(comp)
	if !ok {
		return c.next.Render(comp)
	}
	return c.store(key, comp)
}

func (c *Cache) store(key cacheKey, comp component.Component) (component.Output, error) {
	out, err := c.next.Render(comp)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, out)
	return out, nil
}

func keyOf(comp component.Component) (cacheKey, bool) {
	fp, err := comp.RenderFingerprint()
	if err != nil || fp == "" {
		return cacheKey{}, false
	}
	return cacheKey{typ: fmt.Sprintf("%T", comp), fp: fp}, true
}

// Stats returns cache hits and misses.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached renders.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Purge drops every cached render.
func (c *Cache) Purge() {
	c.cache.Purge()
}
