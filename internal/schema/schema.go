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

// Package schema holds the per-collection field registry: what fields a
// collection carries, which are required/unique/indexed/private, and the
// validation of payloads against those declarations.
package schema

import (
	"encoding/json"
	"fmt"

	hbErrors "github.com/hivebase/hivebase/internal/errors"
	"github.com/hivebase/hivebase/internal/keycodec"
	"github.com/hivebase/hivebase/internal/kv"
)

// FieldType is one of the four primitive kinds a field may declare.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeSystem  FieldType = "system"
)

// Field describes a single collection field.
type Field struct {
	Name     string      `json:"name"`
	Type     FieldType   `json:"type"`
	Required bool        `json:"required,omitempty"`
	Unique   bool        `json:"unique,omitempty"`
	Indexed  bool        `json:"indexed,omitempty"`
	Private  bool        `json:"private,omitempty"`
	Default  interface{} `json:"default,omitempty"`
}

// Schema is the ordered field list for one collection.
type Schema struct {
	Collection string  `json:"collection"`
	Fields     []Field `json:"fields"`
}

// Field looks up a field descriptor by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IndexedFields returns every field marked indexed.
func (s *Schema) IndexedFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Indexed {
			out = append(out, f)
		}
	}
	return out
}

// UniqueFields returns every field marked unique.
func (s *Schema) UniqueFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Unique {
			out = append(out, f)
		}
	}
	return out
}

// systemFields are always present and never type-checked.
var systemFields = []Field{
	{Name: "id", Type: TypeSystem},
	{Name: "created", Type: TypeSystem},
	{Name: "updated", Type: TypeSystem, Indexed: true},
}

// authFieldsFor returns the extra fields auto-materialized for collections
// that behave like a login table (spec.md §3: "users, any superuser-like
// collection").
func authFieldsFor(collection string) []Field {
	return []Field{
		{Name: "email", Type: TypeString, Required: true, Indexed: true, Unique: true},
		{Name: "password", Type: TypeString, Required: true, Private: true},
	}
}

// IsAuthCollection reports whether collection is auto-materialized with
// login fields on first reference.
func IsAuthCollection(collection string) bool {
	return collection == "users" || collection == "_superusers"
}

func withSystemFields(fields []Field) []Field {
	out := make([]Field, 0, len(systemFields)+len(fields))
	have := map[string]bool{}
	for _, f := range systemFields {
		out = append(out, f)
		have[f.Name] = true
	}
	for _, f := range fields {
		if have[f.Name] {
			continue
		}
		out = append(out, f)
		have[f.Name] = true
	}
	return out
}

// Registry persists and validates schemas through the meta keyspace.
type Registry struct {
	store *kv.Store
}

func NewRegistry(store *kv.Store) *Registry {
	return &Registry{store: store}
}

// Get returns the schema for collection, auto-materializing auth
// collections on first access.
func (r *Registry) Get(collection string) (*Schema, error) {
	raw, err := r.store.Get(kv.Meta, keycodec.SchemaKey(collection))
	if err == nil {
		var s Schema
		if uerr := json.Unmarshal(raw, &s); uerr != nil {
			return nil, hbErrors.Substrate(uerr)
		}
		return &s, nil
	}
	if err != kv.ErrNotFound {
		return nil, hbErrors.Substrate(err)
	}

	if IsAuthCollection(collection) {
		s := &Schema{Collection: collection, Fields: withSystemFields(authFieldsFor(collection))}
		if err := r.Put(collection, s); err != nil {
			return nil, err
		}
		return s, nil
	}

	// No schema on record: an unregistered collection is still writable
	// (schemas are permissive) with only the system fields enforced.
	return &Schema{Collection: collection, Fields: withSystemFields(nil)}, nil
}

// Put persists schema, filling in system fields if the caller omitted them.
func (r *Registry) Put(collection string, s *Schema) error {
	s.Collection = collection
	s.Fields = withSystemFields(stripSystemFields(s.Fields))

	data, err := json.Marshal(s)
	if err != nil {
		return hbErrors.Substrate(err)
	}
	op := kv.Put(kv.Meta, keycodec.SchemaKey(collection), data)
	if err := r.store.Batch([]kv.Op{op}); err != nil {
		return hbErrors.Substrate(err)
	}
	return nil
}

func stripSystemFields(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Name == "id" || f.Name == "created" || f.Name == "updated" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Validate enforces required-field presence and scalar type agreement for
// every non-system field. It returns a *hbErrors.HiveError of
// CategoryValidation with one issue string per problem found.
func (r *Registry) Validate(s *Schema, record map[string]interface{}) error {
	var issues []string

	for _, f := range s.Fields {
		if f.Type == TypeSystem {
			continue
		}

		v, present := record[f.Name]
		empty := !present || v == nil || v == ""

		if f.Required && empty {
			issues = append(issues, fmt.Sprintf("%s: required field missing", f.Name))
			continue
		}
		if empty {
			continue
		}

		if !typeMatches(f.Type, v) {
			issues = append(issues, fmt.Sprintf("%s: expected %s, got %T", f.Name, f.Type, v))
		}
	}

	if len(issues) > 0 {
		return hbErrors.Validation("schema validation failed for collection "+s.Collection, issues...)
	}
	return nil
}

func typeMatches(t FieldType, v interface{}) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		default:
			return false
		}
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	default:
		return true
	}
}
