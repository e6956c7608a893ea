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

// Package ratelimit is a per-key token bucket limiter used at the HTTP
// edge. It is not part of the storage core; its job is to shed load before
// requests reach the engine, and to tighten itself automatically when the
// write buffer starts reporting overload.
//
// No token-bucket library appears anywhere in the retrieval pack's go.mod
// files, so this is a deliberate, small hand-rolled exception to the
// otherwise-library-first rule for glue code.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a per-key (typically per-client-IP) token bucket. Its rate
// and burst can be lowered at runtime in response to backpressure signals
// from the write buffer, and restored once pressure subsides.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	baseRPS   float64
	baseBurst float64

	rps   float64
	burst float64

	lastSweep time.Time
}

// New constructs a Limiter with the given steady-state rate (requests per
// second) and burst capacity.
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets:   make(map[string]*bucket),
		baseRPS:   rps,
		baseBurst: float64(burst),
		rps:       rps,
		burst:     float64(burst),
		lastSweep: time.Now(),
	}
}

// Allow consumes one token for key, returning false if the bucket is
// empty.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * l.rps
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastRefill = now

	if now.Sub(l.lastSweep) > 5*time.Minute {
		l.sweepLocked(now)
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweepLocked drops buckets that have been idle long enough to have
// refilled to capacity anyway, bounding map growth under many distinct
// clients. Caller holds l.mu.
func (l *Limiter) sweepLocked(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastRefill) > 10*time.Minute {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Throttle lowers the effective rate and burst to a fraction of their base
// values, called when the write buffer starts returning OverloadError.
func (l *Limiter) Throttle(factor float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if factor <= 0 || factor > 1 {
		factor = 1
	}
	l.rps = l.baseRPS * factor
	l.burst = l.baseBurst * factor
	if l.burst < 1 {
		l.burst = 1
	}
}

// Restore returns the limiter to its configured base rate and burst.
func (l *Limiter) Restore() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = l.baseRPS
	l.burst = l.baseBurst
}

// Snapshot reports the limiter's current effective rate and burst, for
// /api/stats.
func (l *Limiter) Snapshot() (rps, burst float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rps, l.burst
}
