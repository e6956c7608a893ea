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

// Package httpapi is the REST and server-sent-events surface HiveBase
// exposes to clients. It owns no state of its own beyond routing and
// per-request bookkeeping: every operation is delegated to internal/engine,
// internal/auth, internal/broadcast, internal/ratelimit and
// internal/metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hivebase/hivebase/internal/auth"
	"github.com/hivebase/hivebase/internal/broadcast"
	"github.com/hivebase/hivebase/internal/config"
	recordengine "github.com/hivebase/hivebase/internal/engine"
	hbErrors "github.com/hivebase/hivebase/internal/errors"
	"github.com/hivebase/hivebase/internal/health"
	"github.com/hivebase/hivebase/internal/logging"
	"github.com/hivebase/hivebase/internal/metrics"
	"github.com/hivebase/hivebase/internal/ratelimit"
)

// Server is a thin net/http wrapper, in the same small-ServeMux-server
// shape the teacher uses for its health and metrics endpoints.
type Server struct {
	engine      *recordengine.Engine
	authr       *auth.Authenticator
	broadcaster *broadcast.Broadcaster
	limiter     *ratelimit.Limiter
	collector   *metrics.Collector
	requests    *metrics.RequestCounters
	checker     *health.Checker
	rules       []auth.Rule
	cfg         *config.Config
	logger      *logging.Logger

	httpServer *http.Server
}

// Deps bundles the collaborators Server needs. Everything here is built by
// cmd/hivebase and handed down; httpapi constructs none of it itself.
type Deps struct {
	Engine      *recordengine.Engine
	Authr       *auth.Authenticator
	Broadcaster *broadcast.Broadcaster
	Limiter     *ratelimit.Limiter
	Collector   *metrics.Collector
	Requests    *metrics.RequestCounters
	Checker     *health.Checker
	Rules       []auth.Rule
	Config      *config.Config
	Logger      *logging.Logger
}

func New(d Deps) *Server {
	s := &Server{
		engine:      d.Engine,
		authr:       d.Authr,
		broadcaster: d.Broadcaster,
		limiter:     d.Limiter,
		collector:   d.Collector,
		requests:    d.Requests,
		checker:     d.Checker,
		rules:       d.Rules,
		cfg:         d.Config,
		logger:      d.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", s.withMiddleware(s.handleLogin))
	mux.HandleFunc("GET /api/collections/{collection}/records", s.withMiddleware(s.handleList))
	mux.HandleFunc("GET /api/collections/{collection}/records/{id}", s.withMiddleware(s.handleGet))
	mux.HandleFunc("POST /api/collections/{collection}/records", s.withMiddleware(s.handleCreate))
	mux.HandleFunc("PATCH /api/collections/{collection}/records/{id}", s.withMiddleware(s.handleUpdate))
	mux.HandleFunc("DELETE /api/collections/{collection}/records/{id}", s.withMiddleware(s.handleDelete))
	mux.HandleFunc("POST /api/batch", s.withMiddleware(s.handleBatch))
	mux.HandleFunc("GET /api/realtime", s.withMiddleware(s.handleRealtime))
	mux.HandleFunc("GET /api/stats", s.withMiddleware(s.handleStats))
	mux.HandleFunc("GET /api/stats/buffer", s.withMiddleware(s.handleBufferStats))
	mux.HandleFunc("GET /health", s.withMiddleware(s.handleHealth))

	s.httpServer = &http.Server{
		Addr:         "",
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the SSE stream is long-lived
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe starts the HTTP server on the configured port. It blocks
// until Shutdown is called or the listener fails.
func (s *Server) ListenAndServe() error {
	s.httpServer.Addr = ":" + strconv.Itoa(s.cfg.Port)
	s.logger.Info("http server listening", "port", s.cfg.Port)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// withMiddleware applies rate limiting and request counting to every
// route. Authentication is per-handler: some routes (login, health,
// stats) are intentionally open.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests.IncTotal()

		key := clientKey(r)
		if !s.limiter.Allow(key) {
			s.requests.IncRejected()
			w.Header().Set("Retry-After", "1")
			writeError(w, hbErrors.Overload("rate limit exceeded"))
			return
		}

		next(w, r)
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.SplitN(fwd, ",", 2)[0]
	}
	return r.RemoteAddr
}

// principal resolves the caller's identity from an Authorization: Bearer
// header. Its absence is not an error: the caller is treated as
// anonymous, and PredicateFor governs whether that's enough.
func (s *Server) principal(r *http.Request) auth.Principal {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return auth.Principal{}
	}
	token := strings.TrimPrefix(h, "Bearer ")
	claims, err := s.authr.ParseToken(token)
	if err != nil {
		return auth.Principal{}
	}
	return auth.Principal{UserID: claims.UserID, IsSuperuser: claims.Collection == "_superusers"}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a *hbErrors.HiveError to its HTTP status per the
// external-interface contract; anything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch hbErrors.CategoryOf(err) {
	case hbErrors.CategoryForbidden:
		status = http.StatusForbidden
	case hbErrors.CategoryValidation:
		status = http.StatusBadRequest
	case hbErrors.CategoryNotFound:
		status = http.StatusNotFound
	case hbErrors.CategoryUniqueness, hbErrors.CategoryVersionConflict:
		status = http.StatusConflict
	case hbErrors.CategoryOverload:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
	})
}
