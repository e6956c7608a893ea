/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache is the fixed-capacity LRU that accelerates record reads.
// Unlike the teacher's query cache it carries no TTL and no table-level
// invalidation sweep: correctness is owned entirely by the KV substrate,
// and callers invalidate individual keys explicitly on write.
package cache

import (
	"container/list"
	"sync"
)

type entry[V any] struct {
	key     string
	value   V
	element *list.Element
}

// Stats reports point-in-time cache counters for the /api/stats endpoint.
type Stats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
}

// Cache is a fixed-capacity, generic LRU map from string key to decoded
// value. Get/Set/Delete are all safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*entry[V]
	order   *list.List

	hits   int64
	misses int64
}

// New creates a Cache with the given capacity. A non-positive capacity
// means unbounded.
func New[V any](maxSize int) *Cache[V] {
	return &Cache[V]{
		maxSize: maxSize,
		items:   make(map[string]*entry[V]),
		order:   list.New(),
	}
}

// Get returns the cached value for key, if present.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set inserts or updates key, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		c.order.MoveToFront(e.element)
		return
	}

	el := c.order.PushFront(key)
	c.items[key] = &entry[V]{key: key, value: value, element: el}

	if c.maxSize > 0 && len(c.items) > c.maxSize {
		c.evictOldest()
	}
}

// Delete removes key from the cache, if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

func (c *Cache[V]) removeLocked(key string) {
	e, ok := c.items[key]
	if !ok {
		return
	}
	c.order.Remove(e.element)
	delete(c.items, key)
}

func (c *Cache[V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	key := oldest.Value.(string)
	c.order.Remove(oldest)
	delete(c.items, key)
}

// Stats returns a snapshot of cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:    len(c.items),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
