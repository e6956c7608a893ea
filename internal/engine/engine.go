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

// Package engine orchestrates the CRUD lifecycle: schema validation,
// single-flight reads, optimistic-concurrency version checks, uniqueness
// enforcement, index maintenance, write-buffer commit, and deferred
// change-feed emission. It is the one place that knows the full shape of a
// mutation; everything below it (kv, index, writebuffer, broadcast) only
// knows its own narrow contract.
package engine

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hivebase/hivebase/internal/broadcast"
	hbErrors "github.com/hivebase/hivebase/internal/errors"
	"github.com/hivebase/hivebase/internal/index"
	"github.com/hivebase/hivebase/internal/keycodec"
	"github.com/hivebase/hivebase/internal/kv"
	"github.com/hivebase/hivebase/internal/loader"
	"github.com/hivebase/hivebase/internal/logging"
	"github.com/hivebase/hivebase/internal/schema"
	"github.com/hivebase/hivebase/internal/writebuffer"
)

// Record is a decoded document. System fields (id, created, updated,
// _version) live alongside user fields in the same map.
type Record = map[string]interface{}

// retryBackoffs are the exponential back-off delays used between version
// conflict retries: 10ms, 20ms, 40ms.
var retryBackoffs = []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}

// idAlphabet excludes visually ambiguous characters, matching the
// character-selection approach used for admin password generation.
const idAlphabet = "abcdefghjkmnpqrstuvwxyz0123456789"

// Engine is the CRUD orchestrator. It is safe for concurrent use.
type Engine struct {
	store       *kv.Store
	schemas     *schema.Registry
	records     *loader.Loader[Record]
	buffer      *writebuffer.WriteBuffer
	broadcaster *broadcast.Broadcaster
	logger      *logging.Logger

	maxScanLimit int
}

// New wires an Engine over its collaborators. records is the single-flight
// record cache; buffer must have been constructed with an applyCache
// callback that writes back into records's underlying cache (see
// NewCacheBridge).
func New(store *kv.Store, schemas *schema.Registry, records *loader.Loader[Record], buffer *writebuffer.WriteBuffer, broadcaster *broadcast.Broadcaster, maxScanLimit int, logger *logging.Logger) *Engine {
	return &Engine{
		store:        store,
		schemas:      schemas,
		records:      records,
		buffer:       buffer,
		broadcaster:  broadcaster,
		logger:       logger,
		maxScanLimit: maxScanLimit,
	}
}

// CacheUpdateFor decodes a writebuffer.CacheUpdate back into the loader's
// Record cache. cmd/hivebase wires this as the buffer's applyCache
// callback so the engine and the write buffer share one cache instance.
func CacheUpdateFor(records *loader.Loader[Record]) func(writebuffer.CacheUpdate) {
	return func(cu writebuffer.CacheUpdate) {
		if cu.Tombstone {
			records.Invalidate(cu.Key)
			return
		}
		var rec Record
		if err := json.Unmarshal(cu.Value, &rec); err != nil {
			records.Invalidate(cu.Key)
			return
		}
		records.Cache().Set(cu.Key, rec)
	}
}

func newRecordID() string {
	b := make([]byte, 15)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails on a broken system entropy source;
		// fall back to a timestamp-derived id rather than panicking.
		return fmt.Sprintf("t%d", time.Now().UnixNano())
	}
	out := make([]byte, 15)
	for i, v := range b {
		out[i] = idAlphabet[int(v)%len(idAlphabet)]
	}
	return string(out)
}

func (e *Engine) rawGet(collection, id string) (Record, bool, error) {
	key := keycodec.RecordKey(collection, id)
	rec, found, err := e.records.Get(key, func() (Record, bool, error) {
		raw, err := e.store.Get(kv.Main, key)
		if err == kv.ErrNotFound {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, hbErrors.Substrate(err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, false, hbErrors.Substrate(err)
		}
		return rec, true, nil
	})
	return rec, found, err
}

func sanitize(s *schema.Schema, record Record) Record {
	if record == nil {
		return nil
	}
	out := make(Record, len(record))
	for k, v := range record {
		if f, ok := s.Field(k); ok && f.Private {
			continue
		}
		out[k] = v
	}
	return out
}

func cloneRecord(record Record) Record {
	out := make(Record, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}

func recordVersion(record Record) int64 {
	switch v := record["_version"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Get returns the sanitized record for id, or NotFound.
func (e *Engine) Get(collection, id string) (Record, error) {
	s, err := e.schemas.Get(collection)
	if err != nil {
		return nil, err
	}
	rec, found, err := e.rawGet(collection, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, hbErrors.NotFound(collection, id)
	}
	return sanitize(s, rec), nil
}

// GetRaw returns id's record without stripping Private fields. It exists
// for glue that needs to see those fields itself, such as auth checking a
// stored password hash; the REST surface must never call this directly.
func (e *Engine) GetRaw(collection, id string) (Record, error) {
	if _, err := e.schemas.Get(collection); err != nil {
		return nil, err
	}
	rec, found, err := e.rawGet(collection, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, hbErrors.NotFound(collection, id)
	}
	return rec, nil
}

// Create inserts a new record, assigning its id, timestamps and initial
// version.
func (e *Engine) Create(collection string, data Record) (Record, error) {
	s, err := e.schemas.Get(collection)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	id := newRecordID()

	newRecord := cloneRecord(data)
	newRecord["id"] = id
	newRecord["created"] = now
	newRecord["updated"] = now
	newRecord["_version"] = int64(1)

	if err := e.schemas.Validate(s, newRecord); err != nil {
		return nil, err
	}
	if err := index.CheckUniqueness(e.store, collection, newRecord, s, ""); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(newRecord)
	if err != nil {
		return nil, hbErrors.Substrate(err)
	}

	key := keycodec.RecordKey(collection, id)
	ops := append([]kv.Op{kv.Put(kv.Main, key, encoded)}, index.Diff(collection, id, nil, newRecord, s)...)
	cacheUpdates := []writebuffer.CacheUpdate{{Key: key, Value: encoded}}

	if err := e.buffer.Add(ops, cacheUpdates); err != nil {
		return nil, err
	}

	sanitized := sanitize(s, newRecord)
	e.deferBroadcast(collection, "create", sanitized)
	return sanitized, nil
}

// Update applies patch to an existing record, retrying on VersionConflict.
// expectedVersion, when non-nil, must match the record's current
// _version or the update fails without being applied.
func (e *Engine) Update(collection, id string, patch Record, expectedVersion *int64) (Record, error) {
	var result Record
	err := e.retryOnVersionConflict(func() error {
		r, err := e.doUpdate(collection, id, patch, expectedVersion)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (e *Engine) doUpdate(collection, id string, patch Record, expectedVersion *int64) (Record, error) {
	s, err := e.schemas.Get(collection)
	if err != nil {
		return nil, err
	}

	old, found, err := e.rawGet(collection, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, hbErrors.NotFound(collection, id)
	}

	oldVersion := recordVersion(old)
	if expectedVersion != nil && *expectedVersion != oldVersion {
		return nil, hbErrors.VersionConflict(collection, id, *expectedVersion, oldVersion)
	}

	newRecord := cloneRecord(old)
	for k, v := range patch {
		if k == "id" || k == "created" || k == "updated" || k == "_version" {
			continue
		}
		newRecord[k] = v
	}
	newRecord["id"] = id
	newRecord["created"] = old["created"]
	newRecord["updated"] = time.Now().UTC().Format(time.RFC3339Nano)
	newRecord["_version"] = oldVersion + 1

	if err := e.schemas.Validate(s, newRecord); err != nil {
		return nil, err
	}
	if err := index.CheckUniqueness(e.store, collection, newRecord, s, id); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(newRecord)
	if err != nil {
		return nil, hbErrors.Substrate(err)
	}

	key := keycodec.RecordKey(collection, id)
	ops := append([]kv.Op{kv.Put(kv.Main, key, encoded)}, index.Diff(collection, id, old, newRecord, s)...)
	cacheUpdates := []writebuffer.CacheUpdate{{Key: key, Value: encoded}}

	if err := e.buffer.Add(ops, cacheUpdates); err != nil {
		return nil, err
	}

	sanitized := sanitize(s, newRecord)
	e.deferBroadcast(collection, "update", sanitized)
	return sanitized, nil
}

// Delete removes a record, retrying on VersionConflict.
func (e *Engine) Delete(collection, id string, expectedVersion *int64) error {
	return e.retryOnVersionConflict(func() error {
		return e.doDelete(collection, id, expectedVersion)
	})
}

func (e *Engine) doDelete(collection, id string, expectedVersion *int64) error {
	s, err := e.schemas.Get(collection)
	if err != nil {
		return err
	}

	old, found, err := e.rawGet(collection, id)
	if err != nil {
		return err
	}
	if !found {
		return hbErrors.NotFound(collection, id)
	}

	oldVersion := recordVersion(old)
	if expectedVersion != nil && *expectedVersion != oldVersion {
		return hbErrors.VersionConflict(collection, id, *expectedVersion, oldVersion)
	}

	key := keycodec.RecordKey(collection, id)
	ops := append([]kv.Op{kv.Del(kv.Main, key)}, index.Diff(collection, id, old, nil, s)...)
	cacheUpdates := []writebuffer.CacheUpdate{{Key: key, Tombstone: true}}

	if err := e.buffer.Add(ops, cacheUpdates); err != nil {
		return err
	}

	e.deferBroadcast(collection, "delete", sanitize(s, old))
	return nil
}

// deferBroadcast fires the change event on the next scheduler tick so it
// never sits on the mutation's return path.
func (e *Engine) deferBroadcast(collection, action string, data Record) {
	go func() {
		time.Sleep(0)
		e.broadcaster.Broadcast(collection, action, data)
	}()
}

func (e *Engine) retryOnVersionConflict(fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if hbErrors.CategoryOf(err) != hbErrors.CategoryVersionConflict {
			return err
		}
		if attempt >= len(retryBackoffs) {
			return err
		}
		time.Sleep(retryBackoffs[attempt])
	}
}

// ListOptions parameterizes List.
type ListOptions struct {
	Filter  map[string]interface{}
	Sort    string
	Page    int
	PerPage int
}

// ListResult is the paginated response shape used by the REST surface.
type ListResult struct {
	Items      []Record
	Page       int
	PerPage    int
	TotalItems int
	TotalPages int
}

// List enumerates a collection's records, using a secondary index for a
// single equality filter on an indexed field when one is present, and
// falling back to a guarded full scan otherwise.
func (e *Engine) List(collection string, opts ListOptions) (ListResult, error) {
	s, err := e.schemas.Get(collection)
	if err != nil {
		return ListResult{}, err
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 30
	}
	if perPage > 100 {
		perPage = 100
	}

	ids, scannedFull := e.candidateIDs(collection, s, opts.Filter)

	if opts.Sort == "" {
		return e.listFastPath(s, collection, ids, opts.Filter, page, perPage)
	}
	return e.listSortPath(s, collection, ids, opts.Filter, opts.Sort, page, perPage, scannedFull)
}

// candidateIDs finds at most one indexed filter field to drive an index
// range scan; absent that it falls back to a guarded full primary-key
// scan. The second return value reports whether the full-scan guard cut
// the candidate set short.
func (e *Engine) candidateIDs(collection string, s *schema.Schema, filter map[string]interface{}) ([]string, bool) {
	for _, f := range s.IndexedFields() {
		if v, ok := filter[f.Name]; ok {
			return index.ScanEquals(e.store, collection, f.Name, v, 0), false
		}
	}

	low, high := keycodec.CollectionRange(collection)
	entries := e.store.Range(kv.Main, low, high, e.maxScanLimit+1)

	truncated := len(entries) > e.maxScanLimit
	if truncated {
		if e.logger != nil {
			e.logger.Warn("list scan hit MAX_SCAN_LIMIT guard", "collection", collection, "limit", e.maxScanLimit)
		}
		entries = entries[:e.maxScanLimit]
	}

	ids := make([]string, 0, len(entries))
	for _, kvEntry := range entries {
		if _, id, ok := keycodec.SplitRecordKey(kvEntry.Key); ok {
			ids = append(ids, id)
		}
	}
	return ids, truncated
}

func (e *Engine) fetchAndFilter(collection string, ids []string, filter map[string]interface{}) []Record {
	var out []Record
	for _, id := range ids {
		rec, found, err := e.rawGet(collection, id)
		if err != nil || !found {
			continue
		}
		if matchesFilter(rec, filter) {
			out = append(out, rec)
		}
	}
	return out
}

func (e *Engine) listFastPath(s *schema.Schema, collection string, ids []string, filter map[string]interface{}, page, perPage int) (ListResult, error) {
	start := perPage * (page - 1)
	end := start + perPage

	total := 0
	items := make([]Record, 0, perPage)
	for _, id := range ids {
		rec, found, err := e.rawGet(collection, id)
		if err != nil || !found {
			continue
		}
		if !matchesFilter(rec, filter) {
			continue
		}
		if total >= start && total < end {
			items = append(items, sanitize(s, rec))
		}
		total++
	}

	return ListResult{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages(total, perPage),
	}, nil
}

const sortPathWarnThreshold = 1000

func (e *Engine) listSortPath(s *schema.Schema, collection string, ids []string, filter map[string]interface{}, sortSpec string, page, perPage int, alreadyTruncated bool) (ListResult, error) {
	matched := e.fetchAndFilter(collection, ids, filter)

	if alreadyTruncated && e.logger != nil {
		e.logger.Warn("list sort path sorting a candidate set already cut short by MAX_SCAN_LIMIT", "collection", collection)
	}
	if len(matched) > sortPathWarnThreshold && e.logger != nil {
		e.logger.Warn("list sort path materialized a large result set", "collection", collection, "count", len(matched))
	}

	field := sortSpec
	desc := false
	if strings.HasPrefix(sortSpec, "-") {
		desc = true
		field = sortSpec[1:]
	}

	sort.SliceStable(matched, func(i, j int) bool {
		less := compareValues(matched[i][field], matched[j][field])
		if desc {
			return less > 0
		}
		return less < 0
	})

	total := len(matched)
	start := perPage * (page - 1)
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	items := make([]Record, 0, end-start)
	for _, rec := range matched[start:end] {
		items = append(items, sanitize(s, rec))
	}

	return ListResult{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages(total, perPage),
	}, nil
}

func totalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(perPage)))
}

// matchesFilter applies loose equality across every filter field.
func matchesFilter(record Record, filter map[string]interface{}) bool {
	for k, want := range filter {
		if !looseEqual(record[k], want) {
			return false
		}
	}
	return true
}

// looseEqual compares two primitive values, coercing between string and
// number representations so a URL query string filter matches a numeric
// field.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// compareValues orders two field values for the sort path, again with
// loose string/number coercion.
func compareValues(a, b interface{}) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}
