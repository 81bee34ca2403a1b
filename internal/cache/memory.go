package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process LRU cache with optional expiry and a tag index.
type Memory struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List
	tags  map[string]map[string]struct{}
}

type memoryEntry struct {
	key     string
	value   map[string]float64
	tags    []string
	expires time.Time
}

// NewMemory creates a cache holding at most capacity entries. A zero ttl keeps
// entries until they are evicted or invalidated.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		tags:     make(map[string]map[string]struct{}),
	}
}

// Load implements Cache.
func (c *Memory) Load(ctx context.Context, key string) (map[string]float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	entry := elem.Value.(*memoryEntry)
	if !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		c.remove(elem)
		return nil, false, nil
	}
	c.lru.MoveToFront(elem)
	return copyValue(entry.value), true, nil
}

// Save implements Cache, evicting the least recently used entry when full.
func (c *Memory) Save(ctx context.Context, key string, value map[string]float64, tags []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}

	entry := &memoryEntry{key: key, value: copyValue(value), tags: append([]string(nil), tags...)}
	if c.ttl > 0 {
		entry.expires = c.now().Add(c.ttl)
	}
	c.items[key] = c.lru.PushFront(entry)
	for _, tag := range tags {
		keys, ok := c.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}

	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
	return nil
}

// InvalidateTag implements Cache.
func (c *Memory) InvalidateTag(ctx context.Context, tag string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.tags[tag]
	n := 0
	for key := range keys {
		if elem, ok := c.items[key]; ok {
			c.remove(elem)
			n++
		}
	}
	delete(c.tags, tag)
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// remove drops elem and its tag memberships. Callers hold c.mu.
func (c *Memory) remove(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	c.lru.Remove(elem)
	delete(c.items, entry.key)
	for _, tag := range entry.tags {
		if keys, ok := c.tags[tag]; ok {
			delete(keys, entry.key)
			if len(keys) == 0 {
				delete(c.tags, tag)
			}
		}
	}
}
