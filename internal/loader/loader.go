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

// Package loader collapses concurrent cache-fill loads of the same key into
// a single call to the underlying KV substrate, wrapping
// golang.org/x/sync/singleflight rather than a hand-rolled in-flight map.
package loader

import (
	"github.com/hivebase/hivebase/internal/cache"

	"golang.org/x/sync/singleflight"
)

// Loader wraps a Cache with get(key, load): a cache hit returns
// immediately; a cache miss joins (or starts) exactly one in-flight call to
// load for that key.
type Loader[V any] struct {
	cache *cache.Cache[V]
	group singleflight.Group
}

func New[V any](c *cache.Cache[V]) *Loader[V] {
	return &Loader[V]{cache: c}
}

// Get returns the cached value for key, or invokes load exactly once across
// any number of concurrent callers racing on the same cold key. found is
// false when load reports the key does not exist (in which case nothing is
// cached).
func (l *Loader[V]) Get(key string, load func() (V, bool, error)) (value V, found bool, err error) {
	if v, ok := l.cache.Get(key); ok {
		return v, true, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		loaded, found, err := load()
		if err != nil {
			return nil, err
		}
		if found {
			l.cache.Set(key, loaded)
		}
		return loadResult[V]{value: loaded, found: found}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}

	res := v.(loadResult[V])
	return res.value, res.found, nil
}

type loadResult[V any] struct {
	value V
	found bool
}

// Invalidate removes key from the underlying cache. Used by the engine
// after a write commits, or when a stale entry must be dropped.
func (l *Loader[V]) Invalidate(key string) {
	l.cache.Delete(key)
}

// Cache exposes the underlying cache, for stats reporting and for the
// write buffer's post-commit cache application.
func (l *Loader[V]) Cache() *cache.Cache[V] {
	return l.cache
}
