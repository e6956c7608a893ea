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
	"errors"
	"sync"
)

// Keyspace identifies one of the three independently-ordered namespaces the
// substrate exposes.
type Keyspace int

const (
	Main Keyspace = iota
	Indexes
	Meta
)

// ErrNotFound is returned by Get when the key does not exist in the given
// keyspace.
var ErrNotFound = errors.New("kv: key not found")

// OpKind distinguishes a put from a delete inside a Batch.
type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
)

// Op is a single entry in an atomic batch.
type Op struct {
	Kind     OpKind
	Keyspace Keyspace
	Key      string
	Value    []byte
}

func Put(ks Keyspace, key string, value []byte) Op {
	return Op{Kind: OpPut, Keyspace: ks, Key: key, Value: value}
}

func Del(ks Keyspace, key string) Op {
	return Op{Kind: OpDelete, Keyspace: ks, Key: key}
}

// Store is the ordered KV substrate: three B-tree keyspaces backed by one
// write-ahead log. Store.Batch is the sole durability and atomicity
// boundary — it is the only interface the write buffer (C6) is meant to
// call for writes; direct tree mutation outside of Batch would break the
// atomic-multi-key contract invariant 8 of the data model requires.
type Store struct {
	mu   sync.RWMutex
	wal  *wal
	main *bTree
	idx  *bTree
	meta *bTree

	// sync controls whether Batch fsyncs the WAL before returning.
	// The write buffer flips this per its durability mode.
	sync bool
}

// Open opens (or creates) a store at path, replaying its WAL to rebuild all
// three keyspaces.
func Open(path string) (*Store, error) {
	w, err := openWAL(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		wal:  w,
		main: newBTree(16),
		idx:  newBTree(16),
		meta: newBTree(16),
	}

	if err := w.replay(func(op Op) {
		tree := s.treeFor(op.Keyspace)
		switch op.Kind {
		case OpPut:
			tree.Insert(op.Key, op.Value)
		case OpDelete:
			tree.Delete(op.Key)
		}
	}); err != nil {
		w.close()
		return nil, err
	}

	return s, nil
}

// SetSync toggles whether Batch fsyncs the WAL after appending. Called by
// the write buffer to implement the safe/optimistic durability modes.
func (s *Store) SetSync(sync bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync = sync
}

func (s *Store) treeFor(ks Keyspace) *bTree {
	switch ks {
	case Indexes:
		return s.idx
	case Meta:
		return s.meta
	default:
		return s.main
	}
}

// Get retrieves a value from a keyspace. Returns ErrNotFound if absent.
func (s *Store) Get(ks Keyspace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.treeFor(ks).Search(key)
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy: callers must not be able to mutate tree-owned bytes.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Range returns every entry in [low, high) within a keyspace, in ascending
// key order, honoring limit when limit > 0.
func (s *Store) Range(ks Keyspace, low, high string, limit int) []KV {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.treeFor(ks).Range(low, high, limit)
}

// Batch applies every op atomically: one WAL append covers the whole list,
// followed by one lock-held update of the affected trees. Either all ops
// land or none do — invariant 8 depends on this.
func (s *Store) Batch(ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.wal.appendBatch(ops); err != nil {
		return err
	}
	if s.sync {
		if err := s.wal.sync(); err != nil {
			return err
		}
	}

	for _, op := range ops {
		tree := s.treeFor(op.Keyspace)
		switch op.Kind {
		case OpPut:
			tree.Insert(op.Key, op.Value)
		case OpDelete:
			tree.Delete(op.Key)
		}
	}
	return nil
}

// Sync forces the WAL to disk. Exposed so the write buffer can fsync in the
// background under optimistic mode.
func (s *Store) Sync() error {
	return s.wal.sync()
}

// Close closes the underlying WAL file.
func (s *Store) Close() error {
	return s.wal.close()
}

// Sizes returns the number of keys held in each keyspace, used by the
// /api/stats endpoint.
func (s *Store) Sizes() (main, indexes, meta int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.main.Size(), s.idx.Size(), s.meta.Size()
}
