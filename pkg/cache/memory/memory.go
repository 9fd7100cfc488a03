// Package memory provides an in-process implementation of cache.Cache with
// LRU eviction and per-entry expiry. Expired entries are removed when they
// are read; there is no background sweep.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/cache"
)

// DefaultMaxEntries bounds the cache when no size is given.
const DefaultMaxEntries = 500

// entry holds a cached result and its position in the LRU list.
type entry struct {
	key       string
	result    api.AuthResult
	expiresAt time.Time
	lruElem   *list.Element
}

// Cache is a size- and time-bounded result cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int
	now     func() time.Time
}

// Ensure Cache implements cache.Cache at compile time.
var _ cache.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most maxSize entries. A maxSize <= 0
// uses DefaultMaxEntries.
func New(maxSize int, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	c := &Cache{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached result. Reading an entry marks it as
// recently used; reading an expired entry removes it.
func (c *Cache) Get(_ context.Context, key string) (*api.AuthResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.remove(e)
		return nil, false, nil
	}

	c.lruList.MoveToFront(e.lruElem)
	result := e.result
	return &result, true, nil
}

// Put stores result under key. Results with a non-positive ttl are not
// stored. The least recently used entry is evicted when the cache is full.
func (c *Cache) Put(_ context.Context, key string, result *api.AuthResult, ttl time.Duration) error {
	if result == nil || ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)

	if e, ok := c.entries[key]; ok {
		e.result = *result
		e.expiresAt = expiresAt
		c.lruList.MoveToFront(e.lruElem)
		return nil
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	e := &entry{key: key, result: *result, expiresAt: expiresAt}
	e.lruElem = c.lruList.PushFront(e)
	c.entries[key] = e
	return nil
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.lruList.Init()
	return nil
}

// Len returns the number of stored entries, including expired ones not
// yet read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently used entry.
// Must be called with c.mu held.
func (c *Cache) evictOldest() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	c.remove(back.Value.(*entry))
}

// Must be called with c.mu held.
func (c *Cache) remove(e *entry) {
	c.lruList.Remove(e.lruElem)
	delete(c.entries, e.key)
}
