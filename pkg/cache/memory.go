package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMaxBytes caps the in-memory cache at 256 MiB unless configured
// otherwise. Trait buffers for a large project fit comfortably; composited
// items churn through under recency eviction.
const DefaultMaxBytes = 256 << 20

// MemoryCache is a bounded in-process cache with per-entry TTLs and
// least-recently-used eviction under size pressure. It backs the resource
// cache of a generation session: workers read concurrently, inserts happen
// per key, and entries may be dropped at any time without affecting
// correctness.
type MemoryCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	entries  map[string]*list.Element
	lru      *list.List // front = most recent
}

type memoryEntry struct {
	key       string
	data      []byte
	expiresAt time.Time // zero means no expiration
}

// NewMemoryCache creates a memory cache bounded to maxBytes of stored data.
// maxBytes <= 0 uses DefaultMaxBytes.
func NewMemoryCache(maxBytes int64) *MemoryCache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &MemoryCache{
		maxBytes: maxBytes,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get retrieves a value and marks it most recently used.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*memoryEntry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.removeLocked(el)
		return nil, false, nil
	}
	c.lru.MoveToFront(el)
	return e.data, true, nil
}

// Set stores a value, evicting least-recently-used entries until the cache
// fits its byte bound. Values larger than the bound are silently not stored.
func (c *MemoryCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if int64(len(data)) > c.maxBytes {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}

	e := &memoryEntry{key: key, data: data}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = c.lru.PushFront(e)
	c.curBytes += int64(len(data))

	for c.curBytes > c.maxBytes {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
	return nil
}

// Delete removes a value.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Shrink drops least-recently-used entries until at most targetBytes remain.
// The scheduler calls this when it detects memory pressure; a target of 0
// empties the cache.
func (c *MemoryCache) Shrink(targetBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.curBytes > targetBytes {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// Size returns the current stored byte count.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Len returns the current entry count.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close empties the cache.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.curBytes = 0
	return nil
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	e := el.Value.(*memoryEntry)
	c.lru.Remove(el)
	delete(c.entries, e.key)
	c.curBytes -= int64(len(e.data))
}

// Ensure MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)
