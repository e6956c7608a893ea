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

// Package metrics assembles the JSON snapshots served at GET /api/stats and
// GET /api/stats/buffer out of the counters each core component already
// exposes: it collects, it does not compute.
package metrics

import (
	"sync/atomic"

	"github.com/hivebase/hivebase/internal/broadcast"
	"github.com/hivebase/hivebase/internal/cache"
	"github.com/hivebase/hivebase/internal/kv"
	"github.com/hivebase/hivebase/internal/ratelimit"
	"github.com/hivebase/hivebase/internal/writebuffer"
)

// RequestCounters tracks coarse request volume for /api/stats. The HTTP
// layer increments these; nothing else does.
type RequestCounters struct {
	total    int64
	rejected int64
}

func (c *RequestCounters) IncTotal()    { atomic.AddInt64(&c.total, 1) }
func (c *RequestCounters) IncRejected() { atomic.AddInt64(&c.rejected, 1) }

// KVStats reports per-keyspace key counts.
type KVStats struct {
	Main    int `json:"main"`
	Indexes int `json:"indexes"`
	Meta    int `json:"meta"`
}

// RateLimitStats reports the limiter's current effective settings.
type RateLimitStats struct {
	RPS   float64 `json:"rps"`
	Burst float64 `json:"burst"`
}

// Stats is the GET /api/stats body.
type Stats struct {
	Requests struct {
		Total    int64 `json:"total"`
		Rejected int64 `json:"rejected"`
	} `json:"requests"`
	Cache      cache.Stats    `json:"cache"`
	KV         KVStats        `json:"kv"`
	Broadcast  int            `json:"broadcastSinks"`
	RateLimit  RateLimitStats `json:"rateLimit"`
}

// BufferStats is the GET /api/stats/buffer body.
type BufferStats struct {
	Mode           string `json:"mode"`
	QueueDepth     int    `json:"queueDepth"`
	PendingIngress int    `json:"pendingIngress"`
}

// Collector pulls a live snapshot from every component it's handed at
// construction time.
type Collector struct {
	store     *kv.Store
	cache     *cache.Cache[map[string]interface{}]
	buffer    *writebuffer.WriteBuffer
	broadcast *broadcast.Broadcaster
	limiter   *ratelimit.Limiter
	requests  *RequestCounters
}

func NewCollector(store *kv.Store, c *cache.Cache[map[string]interface{}], buffer *writebuffer.WriteBuffer, b *broadcast.Broadcaster, limiter *ratelimit.Limiter, requests *RequestCounters) *Collector {
	return &Collector{store: store, cache: c, buffer: buffer, broadcast: b, limiter: limiter, requests: requests}
}

func (c *Collector) Stats() Stats {
	main, indexes, meta := c.store.Sizes()
	rps, burst := c.limiter.Snapshot()

	var s Stats
	s.Requests.Total = atomic.LoadInt64(&c.requests.total)
	s.Requests.Rejected = atomic.LoadInt64(&c.requests.rejected)
	s.Cache = c.cache.Stats()
	s.KV = KVStats{Main: main, Indexes: indexes, Meta: meta}
	s.Broadcast = c.broadcast.SinkCount()
	s.RateLimit = RateLimitStats{RPS: rps, Burst: burst}
	return s
}

func (c *Collector) BufferStats() BufferStats {
	return BufferStats{
		Mode:           c.buffer.Mode().String(),
		QueueDepth:     c.buffer.QueueDepth(),
		PendingIngress: c.buffer.PendingIngress(),
	}
}
