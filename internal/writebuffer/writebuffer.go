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

/*
Package writebuffer coalesces concurrent write intents into batches and
commits them through exactly one flush worker.

The buffer owns two queues: an ingress list of pending intents (their ops,
their cache updates, their completion channel) and a FIFO flush queue of
frozen batches awaiting disk. Ingress accumulates until either a flush
timer fires (flushInterval, nominally 20-50ms) or the ingress hits
maxBufferSize, at which point it is swapped into a batch and handed to the
flush queue. A single worker goroutine drains the flush queue: this is
deliberate — concurrent commits against the same KV substrate contend
pathologically, while one committer with growing batch sizes turns
offered load into throughput.
*/
package writebuffer

import (
	"runtime"
	"sync"
	"time"

	hbErrors "github.com/hivebase/hivebase/internal/errors"
	"github.com/hivebase/hivebase/internal/kv"
	"github.com/hivebase/hivebase/internal/logging"
)

// Mode selects when a write's callback fires relative to its disk commit.
type Mode int

const (
	// ModeSafe fires an intent's callback only after its batch commits.
	ModeSafe Mode = iota
	// ModeOptimistic applies cache updates and fires the callback on
	// enqueue; the disk commit happens in the background and a failure
	// there is logged rather than surfaced to the original caller.
	ModeOptimistic
)

// overloadThreshold is the pending-batch depth past which new intents are
// rejected with an OverloadError instead of being queued.
const overloadThreshold = 50

// yieldEvery is how many queued batches trigger a scheduler yield inside
// the flush loop, so a deep queue doesn't starve ingress.
const yieldEvery = 8

// CacheUpdate is applied to the record cache after an intent's batch
// commits (or immediately, under ModeOptimistic).
type CacheUpdate struct {
	Key       string
	Value     []byte
	Tombstone bool
}

type intent struct {
	ops          []kv.Op
	cacheUpdates []CacheUpdate
	done         chan error
	acked        bool // true once ModeOptimistic has already returned to the caller
}

type batch struct {
	ops     []kv.Op
	intents []*intent
}

// WriteBuffer is the single point through which the engine commits
// mutations. Add is the only exported write path; everything else is
// internal coalescing machinery.
type WriteBuffer struct {
	store      *kv.Store
	applyCache func(CacheUpdate)
	logger     *logging.Logger

	flushInterval time.Duration
	maxBufferSize int

	mu      sync.Mutex
	ingress []*intent
	timer   *time.Timer

	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []*batch
	draining  bool
	workerOn  bool

	modeMu sync.RWMutex
	mode   Mode

	shutdownOnce sync.Once
	stopped      chan struct{}
}

// New constructs a WriteBuffer and starts its flush worker. applyCache is
// invoked once per CacheUpdate after (or, under ModeOptimistic, concurrent
// with) the owning batch's commit.
func New(store *kv.Store, applyCache func(CacheUpdate), flushInterval time.Duration, maxBufferSize int, logger *logging.Logger) *WriteBuffer {
	wb := &WriteBuffer{
		store:         store,
		applyCache:    applyCache,
		logger:        logger,
		flushInterval: flushInterval,
		maxBufferSize: maxBufferSize,
		stopped:       make(chan struct{}),
	}
	wb.queueCond = sync.NewCond(&wb.queueMu)
	go wb.worker()
	return wb
}

// SetMode changes the process-wide durability mode.
func (wb *WriteBuffer) SetMode(m Mode) {
	wb.modeMu.Lock()
	defer wb.modeMu.Unlock()
	wb.mode = m
}

func (wb *WriteBuffer) currentMode() Mode {
	wb.modeMu.RLock()
	defer wb.modeMu.RUnlock()
	return wb.mode
}

// String renders the mode for stats reporting.
func (m Mode) String() string {
	if m == ModeOptimistic {
		return "optimistic"
	}
	return "safe"
}

// QueueDepth reports the number of batches currently waiting on the flush
// worker, for the /api/stats/buffer endpoint.
func (wb *WriteBuffer) QueueDepth() int {
	wb.queueMu.Lock()
	defer wb.queueMu.Unlock()
	return len(wb.queue)
}

// PendingIngress reports the number of intents accumulated since the last
// flush.
func (wb *WriteBuffer) PendingIngress() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return len(wb.ingress)
}

// Mode reports the current durability mode.
func (wb *WriteBuffer) Mode() Mode {
	return wb.currentMode()
}

// Add submits an atomic write intent and blocks until its outcome is
// known: under ModeSafe that means the batch has committed; under
// ModeOptimistic it returns as soon as the intent is queued.
func (wb *WriteBuffer) Add(ops []kv.Op, cacheUpdates []CacheUpdate) error {
	it := &intent{ops: ops, cacheUpdates: cacheUpdates, done: make(chan error, 1)}

	wb.queueMu.Lock()
	draining := wb.draining
	depth := len(wb.queue)
	wb.queueMu.Unlock()

	if depth > overloadThreshold {
		return hbErrors.Overload("write buffer flush queue is full")
	}

	if draining {
		return wb.submitSync(it)
	}

	optimistic := wb.currentMode() == ModeOptimistic
	if optimistic {
		for _, cu := range it.cacheUpdates {
			wb.applyCache(cu)
		}
		it.acked = true
	}

	wb.mu.Lock()
	wb.ingress = append(wb.ingress, it)
	first := len(wb.ingress) == 1
	full := len(wb.ingress) >= wb.maxBufferSize
	if first && !full {
		wb.armTimerLocked()
	}
	wb.mu.Unlock()

	if full {
		wb.flush()
	}

	if optimistic {
		return nil
	}
	return <-it.done
}

func (wb *WriteBuffer) armTimerLocked() {
	if wb.timer != nil {
		wb.timer.Stop()
	}
	wb.timer = time.AfterFunc(wb.flushInterval, wb.flush)
}

// flush swaps the ingress list into a batch and hands it to the flush
// queue. Safe to call concurrently and redundantly (e.g. once from the
// timer and once from a maxBufferSize trip): the second caller simply
// finds an empty ingress and is a no-op.
func (wb *WriteBuffer) flush() {
	wb.mu.Lock()
	if wb.timer != nil {
		wb.timer.Stop()
		wb.timer = nil
	}
	if len(wb.ingress) == 0 {
		wb.mu.Unlock()
		return
	}
	intents := wb.ingress
	wb.ingress = nil
	wb.mu.Unlock()

	b := &batch{intents: intents}
	for _, it := range intents {
		b.ops = append(b.ops, it.ops...)
	}

	wb.queueMu.Lock()
	wb.queue = append(wb.queue, b)
	wb.queueCond.Signal()
	wb.queueMu.Unlock()
}

// worker is the single flush-queue drainer. Exactly one instance of this
// loop ever runs for a given WriteBuffer.
func (wb *WriteBuffer) worker() {
	wb.queueMu.Lock()
	wb.workerOn = true
	wb.queueMu.Unlock()

	drained := 0
	for {
		wb.queueMu.Lock()
		for len(wb.queue) == 0 {
			if wb.draining {
				wb.queueMu.Unlock()
				close(wb.stopped)
				return
			}
			wb.queueCond.Wait()
		}
		b := wb.queue[0]
		wb.queue = wb.queue[1:]
		depth := len(wb.queue)
		wb.queueMu.Unlock()

		wb.commit(b)

		drained++
		if depth > yieldEvery && drained%yieldEvery == 0 {
			runtime.Gosched()
		}
	}
}

func (wb *WriteBuffer) commit(b *batch) {
	err := wb.store.Batch(b.ops)

	for _, it := range b.intents {
		if err == nil {
			if !it.acked {
				for _, cu := range it.cacheUpdates {
					wb.applyCache(cu)
				}
			}
			if !it.acked {
				it.done <- nil
			}
			continue
		}

		if it.acked {
			if wb.logger != nil {
				wb.logger.Error("background commit failed for optimistic write", "error", err)
			}
			continue
		}
		it.done <- err
	}
}

// submitSync is the drain-mode write path: it bypasses coalescing
// entirely and commits the intent's ops directly, applying cache updates
// and returning synchronously.
func (wb *WriteBuffer) submitSync(it *intent) error {
	if err := wb.store.Batch(it.ops); err != nil {
		return err
	}
	for _, cu := range it.cacheUpdates {
		wb.applyCache(cu)
	}
	return nil
}

// Shutdown drains the buffer: no more intents are coalesced, any
// remaining ingress is flushed to the queue, and Shutdown blocks until the
// queue is empty and the worker has exited.
func (wb *WriteBuffer) Shutdown() {
	wb.shutdownOnce.Do(func() {
		wb.mu.Lock()
		if wb.timer != nil {
			wb.timer.Stop()
		}
		remaining := wb.ingress
		wb.ingress = nil
		wb.mu.Unlock()

		wb.queueMu.Lock()
		wb.draining = true
		if len(remaining) > 0 {
			b := &batch{intents: remaining}
			for _, it := range remaining {
				b.ops = append(b.ops, it.ops...)
			}
			wb.queue = append(wb.queue, b)
		}
		wb.queueCond.Broadcast()
		wb.queueMu.Unlock()

		<-wb.stopped
	})
}
