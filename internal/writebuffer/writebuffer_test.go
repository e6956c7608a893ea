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

package writebuffer

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hivebase/hivebase/internal/kv"
)

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddSafeModeWaitsForCommit(t *testing.T) {
	store := newTestStore(t)
	var applied int32
	wb := New(store, func(CacheUpdate) { atomic.AddInt32(&applied, 1) }, 10*time.Millisecond, 100, nil)
	defer wb.Shutdown()

	err := wb.Add([]kv.Op{kv.Put(kv.Main, "k", []byte("v"))}, []CacheUpdate{{Key: "k"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if v, gerr := store.Get(kv.Main, "k"); gerr != nil || string(v) != "v" {
		t.Errorf("expected committed value, got (%q, %v)", v, gerr)
	}
	if atomic.LoadInt32(&applied) != 1 {
		t.Errorf("expected cache update applied exactly once, got %d", applied)
	}
}

func TestAddOptimisticModeReturnsBeforeCommit(t *testing.T) {
	store := newTestStore(t)
	var applied int32
	wb := New(store, func(CacheUpdate) { atomic.AddInt32(&applied, 1) }, time.Hour, 1000, nil)
	wb.SetMode(ModeOptimistic)
	defer wb.Shutdown()

	err := wb.Add([]kv.Op{kv.Put(kv.Main, "k", []byte("v"))}, []CacheUpdate{{Key: "k"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if atomic.LoadInt32(&applied) != 1 {
		t.Errorf("expected optimistic cache update to apply synchronously, got %d", applied)
	}
}

func TestFlushTriggersOnMaxBufferSize(t *testing.T) {
	store := newTestStore(t)
	wb := New(store, func(CacheUpdate) {}, time.Hour, 3, nil)
	defer wb.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			wb.Add([]kv.Op{kv.Put(kv.Main, key, []byte("v"))}, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		key := string(rune('a' + i))
		if _, err := store.Get(kv.Main, key); err != nil {
			t.Errorf("expected key %q committed once buffer hit maxBufferSize, got %v", key, err)
		}
	}
}

func TestFlushTriggersOnTimer(t *testing.T) {
	store := newTestStore(t)
	wb := New(store, func(CacheUpdate) {}, 10*time.Millisecond, 1000, nil)
	defer wb.Shutdown()

	if err := wb.Add([]kv.Op{kv.Put(kv.Main, "k", []byte("v"))}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Add already blocks until commit under ModeSafe, so by the time it
	// returns the timer must already have fired.
	if _, err := store.Get(kv.Main, "k"); err != nil {
		t.Errorf("expected timer-triggered flush to have committed, got %v", err)
	}
}

func TestOverloadRejectsWhenQueueIsDeep(t *testing.T) {
	store := newTestStore(t)
	wb := New(store, func(CacheUpdate) {}, time.Hour, 1, nil)
	defer wb.Shutdown()

	wb.queueMu.Lock()
	for i := 0; i <= overloadThreshold; i++ {
		wb.queue = append(wb.queue, &batch{})
	}
	wb.queueMu.Unlock()

	err := wb.Add([]kv.Op{kv.Put(kv.Main, "k", []byte("v"))}, nil)
	if err == nil {
		t.Fatal("expected an overload error when the flush queue is deep")
	}
}

func TestShutdownDrainsRemainingIngress(t *testing.T) {
	store := newTestStore(t)
	wb := New(store, func(CacheUpdate) {}, time.Hour, 1000, nil)

	done := make(chan error, 1)
	go func() {
		done <- wb.Add([]kv.Op{kv.Put(kv.Main, "k", []byte("v"))}, nil)
	}()

	// give Add a moment to land on ingress before the timer would ever fire
	time.Sleep(5 * time.Millisecond)
	wb.Shutdown()

	if err := <-done; err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Get(kv.Main, "k"); err != nil {
		t.Errorf("expected shutdown to flush pending ingress, got %v", err)
	}
}

func TestAddAfterShutdownGoesThroughSyncPath(t *testing.T) {
	store := newTestStore(t)
	wb := New(store, func(CacheUpdate) {}, time.Hour, 1000, nil)
	wb.Shutdown()

	if err := wb.Add([]kv.Op{kv.Put(kv.Main, "k", []byte("v"))}, nil); err != nil {
		t.Fatalf("Add after shutdown: %v", err)
	}
	if _, err := store.Get(kv.Main, "k"); err != nil {
		t.Errorf("expected post-shutdown Add to still commit synchronously, got %v", err)
	}
}

func TestModeStringer(t *testing.T) {
	if ModeSafe.String() != "safe" {
		t.Errorf("ModeSafe.String() = %q, want safe", ModeSafe.String())
	}
	if ModeOptimistic.String() != "optimistic" {
		t.Errorf("ModeOptimistic.String() = %q, want optimistic", ModeOptimistic.String())
	}
}
