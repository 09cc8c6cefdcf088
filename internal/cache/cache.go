package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

// DefaultByteBudget is the default cache size (CACHE_BYTES default
// 256 MiB).
const DefaultByteBudget = 256 * 1024 * 1024

// Index is the optional durable backing for eviction metadata (see
// cache/sqlite). A Cache works fully in-memory without one. It only ever
// records *metadata* (key, size, created_at) — never the cached bytes —
// so it cannot serve a Get() hit by itself; a process restart still
// refetches content on first use, it just starts with accurate prior
// occupancy accounting instead of an empty index.
type Index interface {
	Remember(key string, size int, createdAt time.Time) error
	Forget(key string) error
	Load() (map[string]domain.CacheEntry, error)
}

// Cache is a process-local, content-addressed LRU over CacheEntry values,
// bounded by total byte size. Entries are immutable once written; eviction
// is purely size-driven. Safe for concurrent reads; writes to a given key
// are serialized.
type Cache struct {
	mu        sync.Mutex
	byteCap   int
	usedBytes int
	entries   map[string]*list.Element // key -> node in lru
	lru       *list.List               // front = most recently used
	keyLocks  map[string]*sync.Mutex
	index     Index
}

type node struct {
	entry domain.CacheEntry
}

// New creates a Cache with the given byte budget. budget <= 0 uses
// DefaultByteBudget.
func New(budget int, index Index) *Cache {
	if budget <= 0 {
		budget = DefaultByteBudget
	}
	c := &Cache{
		byteCap:  budget,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		keyLocks: make(map[string]*sync.Mutex),
		index:    index,
	}
	return c
}

// Get returns the cached bytes for key, if present.
func (c *Cache) Get(key string) (domain.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.CacheEntry{}, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*node).entry, true
}

// lockFor returns (and lazily creates) the per-key write lock.
func (c *Cache) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.keyLocks[key] = l
	}
	return l
}

// Put stores bytes under key if not already present. Because values are
// content-addressed, a racing duplicate write is a harmless no-op (last
// writer wins).
func (c *Cache) Put(key string, data []byte) domain.CacheEntry {
	keyLock := c.lockFor(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	if existing, ok := c.Get(key); ok {
		return existing
	}

	entry := domain.CacheEntry{
		Key:       key,
		Bytes:     data,
		CreatedAt: time.Now(),
		Size:      len(data),
	}

	c.mu.Lock()
	c.insertLocked(key, entry)
	c.evictLocked()
	c.mu.Unlock()

	if c.index != nil {
		_ = c.index.Remember(key, entry.Size, entry.CreatedAt)
	}
	return entry
}

func (c *Cache) insertLocked(key string, entry domain.CacheEntry) {
	if el, ok := c.entries[key]; ok {
		c.usedBytes -= el.Value.(*node).entry.Size
		el.Value = &node{entry: entry}
		c.usedBytes += entry.Size
		c.lru.MoveToFront(el)
		return
	}
	el := c.lru.PushFront(&node{entry: entry})
	c.entries[key] = el
	c.usedBytes += entry.Size
}

func (c *Cache) evictLocked() {
	for c.usedBytes > c.byteCap {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}
		n := oldest.Value.(*node)
		c.lru.Remove(oldest)
		delete(c.entries, n.entry.Key)
		c.usedBytes -= n.entry.Size
		if c.index != nil {
			_ = c.index.Forget(n.entry.Key)
		}
	}
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// UsedBytes reports the current total size of cached values.
func (c *Cache) UsedBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}
