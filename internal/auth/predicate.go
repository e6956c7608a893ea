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

package auth

import (
	"github.com/hivebase/hivebase/internal/engine"
)

// Principal is the identity the HTTP layer derives from a bearer token: an
// authenticated user id plus whether it belongs to the superuser
// collection. The engine never sees this type.
type Principal struct {
	UserID      string
	IsSuperuser bool
}

// Rule grants a caller access to a collection, optionally restricted to
// rows where Column equals the caller's own identity value.
//
// A Rule with an empty Column grants unrestricted access to the
// collection. This mirrors the grant-with-optional-row-filter shape a
// row-level security system exposes, generalized here to a single
// column/value equality predicate rather than an arbitrary WHERE clause.
type Rule struct {
	Collection string
	Column     string
}

// Predicate reports whether a caller with the given identity value may see
// record. It is evaluated by the HTTP layer against every candidate
// record; the engine itself has no notion of a caller identity.
type Predicate func(record engine.Record) bool

// AllowAll is the predicate used for collections with no row-level rule
// and for superuser callers.
func AllowAll(engine.Record) bool { return true }

// PredicateFor builds the row filter a caller's Rule set implies for
// collection. Row-level restriction is opt-in: a collection with no rule
// is unrestricted, matching the plain collection/records contract the
// REST surface otherwise exposes. A rule with an empty Column still
// requires a rule to exist but grants every row; a rule with a Column
// restricts to rows the caller owns.
func PredicateFor(rules []Rule, collection string, principal Principal) Predicate {
	if principal.IsSuperuser {
		return AllowAll
	}

	for _, r := range rules {
		if r.Collection != collection {
			continue
		}
		if r.Column == "" {
			return AllowAll
		}
		column := r.Column
		callerID := principal.UserID
		return func(record engine.Record) bool {
			v, _ := record[column].(string)
			return v == callerID
		}
	}

	return AllowAll
}

// FilterRecords applies pred to a slice of records, e.g. after Engine.List
// returns a page whose rows still need row-level narrowing.
func FilterRecords(records []engine.Record, pred Predicate) []engine.Record {
	out := make([]engine.Record, 0, len(records))
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}
