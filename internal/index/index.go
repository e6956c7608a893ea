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

// Package index maintains secondary and uniqueness index entries in lock
// step with primary-row writes. It never touches the substrate itself: it
// only computes the kv.Op list a write must additionally carry, mirroring
// the diff-based OnInsert/OnUpdate/OnDelete shape of the teacher's index
// manager but working off field descriptors instead of a fixed column set.
package index

import (
	hbErrors "github.com/hivebase/hivebase/internal/errors"
	"github.com/hivebase/hivebase/internal/keycodec"
	"github.com/hivebase/hivebase/internal/kv"
	"github.com/hivebase/hivebase/internal/schema"
)

// Diff computes the index-keyspace ops needed to move a record's indexed
// and unique fields from oldRecord to newRecord. Pass a nil oldRecord for
// an insert and a nil newRecord for a delete.
func Diff(collection, id string, oldRecord, newRecord map[string]interface{}, s *schema.Schema) []kv.Op {
	var ops []kv.Op

	for _, f := range s.Fields {
		if !f.Indexed && !f.Unique {
			continue
		}

		oldVal, oldPresent := fieldValue(oldRecord, f.Name)
		newVal, newPresent := fieldValue(newRecord, f.Name)

		if oldPresent && (!newPresent || !equalValues(oldVal, newVal)) {
			oldNorm := keycodec.NormalizeValue(oldVal)
			if f.Indexed {
				ops = append(ops, kv.Del(kv.Indexes, keycodec.IndexKey(collection, f.Name, oldNorm, id)))
			}
			if f.Unique {
				ops = append(ops, kv.Del(kv.Indexes, keycodec.UniqueKey(collection, f.Name, oldNorm)))
			}
		}

		if newPresent && (!oldPresent || !equalValues(oldVal, newVal)) {
			newNorm := keycodec.NormalizeValue(newVal)
			if f.Indexed {
				ops = append(ops, kv.Put(kv.Indexes, keycodec.IndexKey(collection, f.Name, newNorm, id), []byte{}))
			}
			if f.Unique {
				ops = append(ops, kv.Put(kv.Indexes, keycodec.UniqueKey(collection, f.Name, newNorm), []byte(id)))
			}
		}
	}

	return ops
}

func fieldValue(record map[string]interface{}, name string) (interface{}, bool) {
	if record == nil {
		return nil, false
	}
	v, ok := record[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func equalValues(a, b interface{}) bool {
	return keycodec.NormalizeValue(a) == keycodec.NormalizeValue(b)
}

// CheckUniqueness verifies that every unique field in newRecord does not
// already belong to a different record. excludingID is the id of the
// record being updated (empty on insert), so a record is allowed to keep
// its own value.
func CheckUniqueness(store *kv.Store, collection string, newRecord map[string]interface{}, s *schema.Schema, excludingID string) error {
	for _, f := range s.UniqueFields() {
		v, present := fieldValue(newRecord, f.Name)
		if !present {
			continue
		}
		norm := keycodec.NormalizeValue(v)
		key := keycodec.UniqueKey(collection, f.Name, norm)

		existing, err := store.Get(kv.Indexes, key)
		if err == kv.ErrNotFound {
			continue
		}
		if err != nil {
			return hbErrors.Substrate(err)
		}
		if string(existing) != excludingID {
			return hbErrors.Uniqueness(collection, f.Name)
		}
	}
	return nil
}

// ScanEquals returns the record ids whose field equals value, in ascending
// id order, via the secondary index. Used by the engine's fast path for an
// equality filter on an indexed field.
func ScanEquals(store *kv.Store, collection, field string, value interface{}, limit int) []string {
	norm := keycodec.NormalizeValue(value)
	low, high := keycodec.IndexRange(collection, field, norm)
	entries := store.Range(kv.Indexes, low, high, limit)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, _, _, id, ok := keycodec.SplitIndexKey(e.Key); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
