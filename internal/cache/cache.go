// Package cache keeps recently decoded clips in memory so that repeat-track
// playback and queue hopping do not re-decode the same file. LRU eviction
// with a byte budget; decoded PCM is large, so the budget matters.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/dgnsrekt/atk/internal/source"
)

// Stats holds cache performance counters.
type Stats struct {
	Capacity  int64
	Size      int64
	ItemCount int
	Hits      int64
	Misses    int64
	Evictions int64

	LastAccess time.Time
}

// ClipCache is an LRU of decoded clips keyed by file path. Safe for
// concurrent use.
type ClipCache struct {
	capacity int64
	size     int64

	items    map[string]*list.Element
	eviction *list.List

	mu    sync.Mutex
	stats Stats

	decode func(string) (*source.Clip, error)
}

type entry struct {
	key  string
	clip *source.Clip
	size int64
}

// New creates a clip cache with the given byte capacity. Zero or negative
// capacity disables caching entirely, every Load decodes fresh.
func New(capacity int64) *ClipCache {
	return &ClipCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		stats:    Stats{Capacity: capacity},
		decode:   source.Load,
	}
}

// Load returns the clip for path, decoding it on a miss.
func (c *ClipCache) Load(path string) (*source.Clip, error) {
	c.mu.Lock()
	if elem, ok := c.items[path]; ok {
		c.eviction.MoveToFront(elem)
		c.stats.Hits++
		c.stats.LastAccess = time.Now()
		clip := elem.Value.(*entry).clip
		c.mu.Unlock()
		return clip, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	// Decode outside the lock; concurrent misses on the same path may
	// decode twice, the second result simply replaces the first.
	clip, err := c.decode(path)
	if err != nil {
		return nil, err
	}
	c.put(path, clip)
	return clip, nil
}

// Contains reports whether path is cached, without touching recency.
func (c *ClipCache) Contains(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[path]
	return ok
}

// Invalidate drops the entry for path, if present.
func (c *ClipCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[path]; ok {
		c.removeLocked(elem)
	}
}

// Clear drops every cached clip.
func (c *ClipCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.size = 0
	c.stats.Size = 0
	c.stats.ItemCount = 0
}

// Stats returns a snapshot of the counters.
func (c *ClipCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.size
	s.ItemCount = len(c.items)
	return s
}

func (c *ClipCache) put(path string, clip *source.Clip) {
	clipSize := int64(len(clip.Samples)) * 4

	c.mu.Lock()
	defer c.mu.Unlock()

	if clipSize > c.capacity {
		return
	}
	if elem, ok := c.items[path]; ok {
		c.removeLocked(elem)
	}
	for c.size+clipSize > c.capacity && c.eviction.Len() > 0 {
		c.evictOldestLocked()
	}

	elem := c.eviction.PushFront(&entry{key: path, clip: clip, size: clipSize})
	c.items[path] = elem
	c.size += clipSize
}

func (c *ClipCache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.eviction.Remove(elem)
	delete(c.items, e.key)
	c.size -= e.size
}

func (c *ClipCache) evictOldestLocked() {
	oldest := c.eviction.Back()
	if oldest == nil {
		return
	}
	c.removeLocked(oldest)
	c.stats.Evictions++
}
