// Package cache provides translation result caching: a bounded in-memory
// LRU in front of an optional persistent badger store.
package cache

import (
	"container/list"
	"sync"
)

// DefaultSize is the default number of entries held by an LRU.
const DefaultSize = 100

// Key identifies a translation by exact text and language pair.
type Key struct {
	Text   string
	Source string
	Target string
}

type lruItem struct {
	key   Key
	value string
}

// LRU is a fixed-capacity least-recently-used map from Key to translated text.
// It is safe for concurrent use.
type LRU struct {
	mu    sync.Mutex
	size  int
	ll    *list.List
	items map[Key]*list.Element
}

// NewLRU returns an LRU holding at most size entries.
// A non-positive size selects DefaultSize.
func NewLRU(size int) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	return &LRU{
		size:  size,
		ll:    list.New(),
		items: make(map[Key]*list.Element, size),
	}
}

// Get returns the cached value and marks it most recently used.
func (c *LRU) Get(k Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[k]
	if !ok {
		return "", false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruItem).value, true
}

// Add stores a value, evicting the least recently used entry when full.
func (c *LRU) Add(k Key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[k]; ok {
		el.Value.(*lruItem).value = value
		c.ll.MoveToFront(el)
		return
	}

	c.items[k] = c.ll.PushFront(&lruItem{key: k, value: value})
	if c.ll.Len() > c.size {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*lruItem).key)
	}
}

// Remove drops k and reports whether it was present.
func (c *LRU) Remove(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[k]
	if !ok {
		return false
	}
	c.ll.Remove(el)
	delete(c.items, k)
	return true
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Purge drops every entry.
func (c *LRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}
