package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"
)

// Item is a cached value with its expiry (unix nanos, 0 = never).
type Item struct {
	V   any
	Exp int64
}

// Cache is an in-memory LRU cache with per-item TTL, safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*entry
	order    *list.List // MRU at front
	maxItems int        // 0 = unlimited
	stop     chan struct{}
}

type entry struct {
	key  string
	item Item
	elem *list.Element
}

var (
	defaultCache *Cache
	once         sync.Once
	defaultMax   = 500
)

// New returns a cache holding at most maxItems entries. A positive sweep
// starts a janitor goroutine that drops expired entries until Close.
func New(maxItems int, sweep time.Duration) *Cache {
	if maxItems < 0 {
		maxItems = 0
	}
	c := &Cache{items: make(map[string]*entry), order: list.New(), maxItems: maxItems, stop: make(chan struct{})}
	if sweep > 0 {
		go c.janitor(sweep)
	}
	return c
}

// Default returns the process-wide cache.
func Default() *Cache {
	once.Do(func() {
		defaultCache = New(defaultMax, time.Minute)
	})
	return defaultCache
}

// SetMaxItems resizes the default cache, evicting LRU entries if needed.
func SetMaxItems(n int) {
	Default().Resize(n)
}

func (c *Cache) Resize(n int) {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	c.maxItems = n
	for c.maxItems > 0 && c.order.Len() > c.maxItems {
		c.evictLRUNoLock()
	}
	c.mu.Unlock()
}

// Get returns the value for key if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if e.item.Exp != 0 && e.item.Exp < time.Now().UnixNano() {
		c.removeNoLock(key)
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	return e.item.V, true
}

// Set stores v under key. ttl<=0 means no expiry.
func (c *Cache) Set(key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		e.item = Item{V: v, Exp: exp}
		c.order.MoveToFront(e.elem)
		return
	}
	e := &entry{key: key, item: Item{V: v, Exp: exp}}
	e.elem = c.order.PushFront(e)
	c.items[key] = e
	if c.maxItems > 0 && c.order.Len() > c.maxItems {
		c.evictLRUNoLock()
	}
}

func (c *Cache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.removeNoLock(key)
	c.mu.Unlock()
}

// Len counts entries, expired ones included until they are swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the janitor.
func (c *Cache) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *Cache) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			now := time.Now().UnixNano()
			c.mu.Lock()
			for k, e := range c.items {
				if e.item.Exp != 0 && e.item.Exp < now {
					c.removeNoLock(k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// KeyFromStrings builds a compact stable key from parts.
func KeyFromStrings(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(p))
	}
	return string(h.Sum(nil))
}

// removeNoLock removes key; caller holds c.mu.
func (c *Cache) removeNoLock(key string) {
	if e, ok := c.items[key]; ok {
		c.order.Remove(e.elem)
		delete(c.items, key)
	}
}

// evictLRUNoLock drops the least recently used entry; caller holds c.mu.
func (c *Cache) evictLRUNoLock() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.order.Remove(back)
	if e, ok := back.Value.(*entry); ok {
		delete(c.items, e.key)
	}
}
