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

	"github.com/hivebase/hivebase/internal/engine"
	hbErrors "github.com/hivebase/hivebase/internal/errors"
)

type batchOp struct {
	Method     string         `json:"method"`
	Collection string         `json:"collection"`
	ID         string         `json:"id,omitempty"`
	Data       engine.Record  `json:"data,omitempty"`
	Version    *int64         `json:"version,omitempty"`
}

type batchRequest struct {
	Requests []batchOp `json:"requests"`
}

type batchItemResult struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItemResult `json:"results"`
}

// handleBatch runs each sub-request through the engine independently: the
// array itself is not one KV-substrate transaction, only each individual
// CRUD operation is (per the atomic-commit invariant the engine already
// gives every single write).
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, hbErrors.Validation("invalid JSON body"))
		return
	}
	if len(req.Requests) > s.cfg.MaxBatchSize {
		writeError(w, hbErrors.Validation("batch exceeds MAX_BATCH_SIZE"))
		return
	}

	results := make([]batchItemResult, len(req.Requests))
	for i, op := range req.Requests {
		results[i] = s.runBatchOp(op)
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (s *Server) runBatchOp(op batchOp) batchItemResult {
	switch op.Method {
	case "create":
		rec, err := s.engine.Create(op.Collection, op.Data)
		return resultOf(rec, err)
	case "update":
		rec, err := s.engine.Update(op.Collection, op.ID, op.Data, op.Version)
		return resultOf(rec, err)
	case "delete":
		err := s.engine.Delete(op.Collection, op.ID, op.Version)
		return resultOf(map[string]interface{}{"success": true, "id": op.ID}, err)
	case "get":
		rec, err := s.engine.Get(op.Collection, op.ID)
		return resultOf(rec, err)
	default:
		return batchItemResult{Success: false, Error: "unknown batch method " + op.Method}
	}
}

func resultOf(result interface{}, err error) batchItemResult {
	if err != nil {
		return batchItemResult{Success: false, Error: err.Error()}
	}
	return batchItemResult{Success: true, Result: result}
}
