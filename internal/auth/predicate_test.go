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
	"testing"

	"github.com/hivebase/hivebase/internal/engine"
)

func TestPredicateForSuperuserBypassesRules(t *testing.T) {
	rules := []Rule{{Collection: "notes", Column: "owner"}}
	pred := PredicateFor(rules, "notes", Principal{UserID: "anyone", IsSuperuser: true})

	if !pred(engine.Record{"owner": "someone-else"}) {
		t.Errorf("expected a superuser predicate to allow every row")
	}
}

func TestPredicateForNoMatchingRuleAllowsAll(t *testing.T) {
	rules := []Rule{{Collection: "notes", Column: "owner"}}
	pred := PredicateFor(rules, "widgets", Principal{UserID: "u1"})

	if !pred(engine.Record{"owner": "someone-else"}) {
		t.Errorf("expected a collection with no rule to be unrestricted")
	}
}

func TestPredicateForEmptyColumnAllowsAll(t *testing.T) {
	rules := []Rule{{Collection: "notes", Column: ""}}
	pred := PredicateFor(rules, "notes", Principal{UserID: "u1"})

	if !pred(engine.Record{"owner": "someone-else"}) {
		t.Errorf("expected an empty-column rule to grant unrestricted access")
	}
}

func TestPredicateForColumnRestrictsToOwner(t *testing.T) {
	rules := []Rule{{Collection: "notes", Column: "owner"}}
	pred := PredicateFor(rules, "notes", Principal{UserID: "u1"})

	if !pred(engine.Record{"owner": "u1"}) {
		t.Errorf("expected the caller's own row to be allowed")
	}
	if pred(engine.Record{"owner": "u2"}) {
		t.Errorf("expected another caller's row to be denied")
	}
}

func TestFilterRecordsKeepsOnlyAllowedRows(t *testing.T) {
	records := []engine.Record{
		{"owner": "u1"}, {"owner": "u2"}, {"owner": "u1"},
	}
	pred := func(r engine.Record) bool { return r["owner"] == "u1" }

	filtered := FilterRecords(records, pred)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 records to survive filtering, got %d", len(filtered))
	}
	for _, r := range filtered {
		if r["owner"] != "u1" {
			t.Errorf("unexpected record leaked through filter: %+v", r)
		}
	}
}

func TestAllowAllAlwaysReturnsTrue(t *testing.T) {
	if !AllowAll(nil) {
		t.Errorf("expected AllowAll to allow a nil record")
	}
	if !AllowAll(engine.Record{"anything": true}) {
		t.Errorf("expected AllowAll to allow any record")
	}
}
