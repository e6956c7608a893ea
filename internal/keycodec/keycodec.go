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

// Package keycodec is the canonical encoding of primary-row, secondary
// index, uniqueness index, and schema keys over the ordered KV substrate.
//
// It generalizes the row:<table>:<id> / schema:<table> prefix convention
// documented in the teacher's storage engine to the three-keyspace layout
// (main/indexes/meta) HiveBase's substrate exposes.
package keycodec

import (
	"fmt"
	"strconv"
	"strings"
)

// numberPad is the fixed width used to zero-pad numeric field values so
// that lexicographic order over the index keyspace matches numeric order.
const numberPad = 20

// HighSentinel is appended to a prefix's low bound to form an inclusive
// prefix range's high bound over the ordered KV substrate.
const HighSentinel = "\xFF"

// RecordKey returns the primary-row key for a record in the main keyspace.
func RecordKey(collection, id string) string {
	return collection + ":" + id
}

// CollectionRange returns the [low, high) bounds for a prefix scan over
// every primary row in collection.
func CollectionRange(collection string) (low, high string) {
	low = collection + ":"
	return low, low + HighSentinel
}

// SplitRecordKey parses a primary-row key back into collection and id.
func SplitRecordKey(key string) (collection, id string, ok bool) {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// NormalizeValue renders a field value into the canonical string form used
// inside index and uniqueness keys. Numbers are zero-padded so ordering by
// key bytes matches ordering by value.
func NormalizeValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return normalizeNumber(t)
	case int:
		return normalizeNumber(float64(t))
	case int64:
		return normalizeNumber(float64(t))
	default:
		return fmt.Sprintf("%v", t)
	}
}

func normalizeNumber(f float64) string {
	// Shift into a non-negative range so zero-padded decimal digits sort
	// the same way the underlying numbers do. 1e15 comfortably covers
	// any value a JSON record field is likely to carry.
	const offset = 1e15
	shifted := int64((f + offset) * 1000)
	s := strconv.FormatInt(shifted, 10)
	if len(s) < numberPad {
		s = strings.Repeat("0", numberPad-len(s)) + s
	}
	return s
}

// IndexKey returns the secondary-index key for a single (field, value, id)
// triple: idx:<collection>:<field>:<normValue>:<id>.
func IndexKey(collection, field, normValue, id string) string {
	return "idx:" + collection + ":" + field + ":" + normValue + ":" + id
}

// IndexRange returns the [low, high) bounds for every index entry with the
// given (collection, field, value).
func IndexRange(collection, field, normValue string) (low, high string) {
	low = "idx:" + collection + ":" + field + ":" + normValue + ":"
	return low, low + HighSentinel
}

// IndexFieldRange returns the [low, high) bounds for every index entry for
// the given (collection, field), across all values.
func IndexFieldRange(collection, field string) (low, high string) {
	low = "idx:" + collection + ":" + field + ":"
	return low, low + HighSentinel
}

// SplitIndexKey parses an index key back into its components.
func SplitIndexKey(key string) (collection, field, normValue, id string, ok bool) {
	parts := strings.SplitN(key, ":", 5)
	if len(parts) != 5 || parts[0] != "idx" {
		return "", "", "", "", false
	}
	return parts[1], parts[2], parts[3], parts[4], true
}

// UniqueKey returns the uniqueness key for a (collection, field, value)
// triple: uniq:<collection>:<field>:<normValue>.
func UniqueKey(collection, field, normValue string) string {
	return "uniq:" + collection + ":" + field + ":" + normValue
}

// SchemaKey returns the meta-keyspace key holding a collection's schema.
func SchemaKey(collection string) string {
	return "schema:" + collection
}
