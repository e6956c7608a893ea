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

package kv

import (
	"fmt"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(Main, "nope"); err != ErrNotFound {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestBatchPutThenGet(t *testing.T) {
	s := openTestStore(t)
	if err := s.Batch([]Op{Put(Main, "users:1", []byte(`{"id":"1"}`))}); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	v, err := s.Get(Main, "users:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != `{"id":"1"}` {
		t.Errorf("Get = %q, want %q", v, `{"id":"1"}`)
	}
}

func TestBatchIsAllOrNothingAcrossKeyspaces(t *testing.T) {
	s := openTestStore(t)
	ops := []Op{
		Put(Main, "users:1", []byte("main-value")),
		Put(Indexes, "idx:users:email:a:1", []byte{}),
		Put(Meta, "schema:users", []byte("schema-value")),
	}
	if err := s.Batch(ops); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	for _, check := range []struct {
		ks  Keyspace
		key string
	}{
		{Main, "users:1"},
		{Indexes, "idx:users:email:a:1"},
		{Meta, "schema:users"},
	} {
		if _, err := s.Get(check.ks, check.key); err != nil {
			t.Errorf("expected key %q in keyspace %d to be present after batch, got %v", check.key, check.ks, err)
		}
	}
}

func TestBatchDeleteRemovesKey(t *testing.T) {
	s := openTestStore(t)
	s.Batch([]Op{Put(Main, "k", []byte("v"))})
	s.Batch([]Op{Del(Main, "k")})

	if _, err := s.Get(Main, "k"); err != ErrNotFound {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
}

func TestRangeReturnsAscendingOrderWithinBounds(t *testing.T) {
	s := openTestStore(t)
	s.Batch([]Op{
		Put(Main, "users:1", []byte("1")),
		Put(Main, "users:2", []byte("2")),
		Put(Main, "users:3", []byte("3")),
		Put(Main, "posts:1", []byte("other")),
	})

	entries := s.Range(Main, "users:", "users:\xFF", 0)
	if len(entries) != 3 {
		t.Fatalf("Range returned %d entries, want 3", len(entries))
	}
	for i, want := range []string{"users:1", "users:2", "users:3"} {
		if entries[i].Key != want {
			t.Errorf("entries[%d].Key = %q, want %q", i, entries[i].Key, want)
		}
	}
}

func TestRangeHonorsLimit(t *testing.T) {
	s := openTestStore(t)
	s.Batch([]Op{
		Put(Main, "a", []byte("1")),
		Put(Main, "b", []byte("2")),
		Put(Main, "c", []byte("3")),
	})

	entries := s.Range(Main, "a", "z", 2)
	if len(entries) != 2 {
		t.Errorf("Range with limit=2 returned %d entries", len(entries))
	}
}

// TestRangeAcrossInternalNodeBoundaryDoesNotDropKeys reproduces the case
// where the requested range spans a B-tree internal node: enough keys are
// inserted to force multiple tree levels, then a range is drawn so that its
// end bound falls exactly on a separator key. Every key in [start, end)
// must still come back, including those in the left subtree of the
// separator.
func TestRangeAcrossInternalNodeBoundaryDoesNotDropKeys(t *testing.T) {
	s := openTestStore(t)

	const n = 200
	ops := make([]Op, 0, n)
	for i := 0; i < n; i++ {
		ops = append(ops, Put(Main, fmt.Sprintf("k:%04d", i), []byte("v")))
	}
	if err := s.Batch(ops); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	entries := s.Range(Main, "k:", "k:\xFF", 0)
	if len(entries) != n {
		t.Fatalf("Range returned %d entries, want %d", len(entries), n)
	}
	for i, e := range entries {
		want := fmt.Sprintf("k:%04d", i)
		if e.Key != want {
			t.Errorf("entries[%d].Key = %q, want %q", i, e.Key, want)
		}
	}

	// A bounded scan ending partway through the key space must also
	// include every in-range key, not just those in the rightmost subtree
	// of whichever internal node holds the end bound.
	entries = s.Range(Main, "k:", "k:0100", 0)
	if len(entries) != 100 {
		t.Fatalf("Range(..., \"k:0100\") returned %d entries, want 100", len(entries))
	}
	for i, e := range entries {
		want := fmt.Sprintf("k:%04d", i)
		if e.Key != want {
			t.Errorf("entries[%d].Key = %q, want %q", i, e.Key, want)
		}
	}
}

func TestSizesReportsPerKeyspaceCounts(t *testing.T) {
	s := openTestStore(t)
	s.Batch([]Op{
		Put(Main, "a", []byte("1")),
		Put(Main, "b", []byte("2")),
		Put(Indexes, "idx:a", []byte{}),
		Put(Meta, "schema:a", []byte("s")),
	})

	main, indexes, meta := s.Sizes()
	if main != 2 || indexes != 1 || meta != 1 {
		t.Errorf("Sizes = (%d, %d, %d), want (2, 1, 1)", main, indexes, meta)
	}
}

func TestReplayRebuildsStateFromWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Batch([]Op{Put(Main, "users:1", []byte("payload"))}); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	v, err := reopened.Get(Main, "users:1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(v) != "payload" {
		t.Errorf("Get after reopen = %q, want %q", v, "payload")
	}
}

func TestGetReturnsACopyNotTreeOwnedBytes(t *testing.T) {
	s := openTestStore(t)
	s.Batch([]Op{Put(Main, "k", []byte("original"))})

	v, err := s.Get(Main, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	v[0] = 'X'

	v2, err := s.Get(Main, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v2) != "original" {
		t.Errorf("mutating a Get result affected stored value: %q", v2)
	}
}
