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

	hbErrors "github.com/hivebase/hivebase/internal/errors"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Collection string `json:"collection"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  interface{} `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, hbErrors.Validation("invalid JSON body"))
		return
	}
	if req.Collection == "" {
		req.Collection = "users"
	}

	token, user, err := s.authr.Login(req.Collection, req.Email, req.Password)
	if err != nil {
		// The login route always answers 401 on failure, per the bit-exact
		// REST contract, rather than the general Forbidden->403 mapping.
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}
