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

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hivebase/hivebase/internal/auth"
	"github.com/hivebase/hivebase/internal/engine"
	hbErrors "github.com/hivebase/hivebase/internal/errors"
	"github.com/hivebase/hivebase/internal/schema"
)

type listResponse struct {
	Items      []engine.Record `json:"items"`
	Page       int             `json:"page"`
	PerPage    int             `json:"perPage"`
	TotalItems int             `json:"totalItems"`
	TotalPages int             `json:"totalPages"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	principal := s.principal(r)
	pred := auth.PredicateFor(s.rules, collection, principal)

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))

	filter, err := parseFilter(q.Get("filter"))
	if err != nil {
		writeError(w, hbErrors.Validation("invalid filter: "+err.Error()))
		return
	}
	if filter == nil {
		filter = queryFilter(q)
	}

	result, err := s.engine.List(collection, engine.ListOptions{
		Filter:  filter,
		Sort:    q.Get("sort"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	items := auth.FilterRecords(result.Items, pred)
	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PerPage:    result.PerPage,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// parseFilter accepts a JSON object string for the filter query param. A
// non-JSON value (or an empty string) falls back to the field=value form
// handled by queryFilter.
func parseFilter(raw string) (map[string]interface{}, error) {
	if raw == "" || raw[0] != '{' {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// queryFilter builds a filter from a single "field=value" style filter
// query parameter, e.g. ?filter=status=active.
func queryFilter(q map[string][]string) map[string]interface{} {
	raw, ok := q["filter"]
	if !ok || len(raw) == 0 || raw[0] == "" {
		return nil
	}
	for i := 0; i < len(raw[0]); i++ {
		if raw[0][i] == '=' {
			return map[string]interface{}{raw[0][:i]: raw[0][i+1:]}
		}
	}
	return nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	id := r.PathValue("id")
	principal := s.principal(r)
	pred := auth.PredicateFor(s.rules, collection, principal)

	rec, err := s.engine.Get(collection, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !pred(rec) {
		writeError(w, hbErrors.NotFound(collection, id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")

	var data engine.Record
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, hbErrors.Validation("invalid JSON body"))
		return
	}

	if schema.IsAuthCollection(collection) {
		if plaintext, ok := data["password"].(string); ok && plaintext != "" {
			hash, err := auth.HashPassword(plaintext)
			if err != nil {
				writeError(w, err)
				return
			}
			data["password"] = hash
		}
	}

	rec, err := s.engine.Create(collection, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, hbErrors.Validation("invalid JSON body"))
		return
	}

	var expected *int64
	if v, ok := body["_expectedVersion"]; ok {
		if f, ok := v.(float64); ok {
			ev := int64(f)
			expected = &ev
		}
		delete(body, "_expectedVersion")
	}

	rec, err := s.engine.Update(collection, id, engine.Record(body), expected)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	id := r.PathValue("id")

	var expected *int64
	if v := r.URL.Query().Get("version"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			expected = &n
		}
	}

	if err := s.engine.Delete(collection, id, expected); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}
