package kma

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

// SourceFetcher fetches one feed for one hour.
type SourceFetcher interface {
	FetchSource(ctx context.Context, source domain.SourceType, tick time.Time) (domain.RawBlob, error)
}

// CachedClient keeps recently fetched blobs per (source, hour) so that a tick
// run twice for the same hour, e.g. on start and then on schedule, hits the
// API once.
type CachedClient struct {
	inner SourceFetcher
	cache *lruCache
}

// NewCachedClient wraps inner with an LRU cache of maxEntries blobs.
func NewCachedClient(inner SourceFetcher, maxEntries int) *CachedClient {
	return &CachedClient{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

// FetchSource returns the cached blob for the hour, fetching on a miss.
func (c *CachedClient) FetchSource(ctx context.Context, source domain.SourceType, tick time.Time) (domain.RawBlob, error) {
	key := string(source) + "|" + domain.CanonicalTimestamp(tick.Truncate(time.Hour))
	if blob, ok := c.cache.get(key); ok {
		return blob, nil
	}
	blob, err := c.inner.FetchSource(ctx, source, tick)
	if err != nil {
		return blob, err
	}
	// Empty bodies are not cached so a feed published late can still be picked up.
	if blob.Text != "" {
		c.cache.put(key, blob)
	}
	return blob, nil
}

// lruCache is a simple thread-safe LRU cache of RawBlobs.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.RawBlob
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.RawBlob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.RawBlob{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.RawBlob) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
