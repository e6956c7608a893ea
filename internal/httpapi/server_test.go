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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hivebase/hivebase/internal/auth"
	"github.com/hivebase/hivebase/internal/broadcast"
	"github.com/hivebase/hivebase/internal/cache"
	"github.com/hivebase/hivebase/internal/config"
	"github.com/hivebase/hivebase/internal/engine"
	"github.com/hivebase/hivebase/internal/health"
	"github.com/hivebase/hivebase/internal/kv"
	"github.com/hivebase/hivebase/internal/loader"
	"github.com/hivebase/hivebase/internal/metrics"
	"github.com/hivebase/hivebase/internal/ratelimit"
	"github.com/hivebase/hivebase/internal/schema"
	"github.com/hivebase/hivebase/internal/writebuffer"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	c := cache.New[engine.Record](1000)
	ldr := loader.New[engine.Record](c)
	schemas := schema.NewRegistry(store)
	buffer := writebuffer.New(store, engine.CacheUpdateFor(ldr), 5*time.Millisecond, 100, nil)
	t.Cleanup(buffer.Shutdown)
	b := broadcast.New()
	t.Cleanup(b.Shutdown)

	eng := engine.New(store, schemas, ldr, buffer, b, 1000, nil)
	authr := auth.NewAuthenticator(eng, "test-secret", time.Hour)
	limiter := ratelimit.New(1000, 1000)
	requests := &metrics.RequestCounters{}
	collector := metrics.NewCollector(store, c, buffer, b, limiter, requests)
	checker := health.NewChecker("test")
	checker.Register("kv", func() health.CheckResult { return health.CheckResult{Status: health.StatusHealthy} })

	cfg := &config.Config{MaxBatchSize: 100, Port: 0}

	return New(Deps{
		Engine: eng, Authr: authr, Broadcaster: b, Limiter: limiter,
		Collector: collector, Requests: requests, Checker: checker, Rules: nil,
		Config: cfg, Logger: nil,
	})
}

func doRequest(s *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateThenGetRoundTripsThroughTheMux(t *testing.T) {
	s := newTestServer(t)

	createRec := doRequest(s, "POST", "/api/collections/widgets/records", map[string]interface{}{"name": "gadget"})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", createRec.Code, createRec.Body.String())
	}

	var created engine.Record
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}

	getRec := doRequest(s, "GET", "/api/collections/widgets/records/"+created["id"].(string), nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", getRec.Code, getRec.Body.String())
	}
}

func TestGetMissingRecordReturns404(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, "GET", "/api/collections/widgets/records/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCreateWithInvalidJSONReturns400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/collections/widgets/records", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateWithWrongExpectedVersionReturns409(t *testing.T) {
	s := newTestServer(t)
	createRec := doRequest(s, "POST", "/api/collections/widgets/records", map[string]interface{}{"name": "gadget"})
	var created engine.Record
	json.Unmarshal(createRec.Body.Bytes(), &created)

	updateRec := doRequest(s, "PATCH", "/api/collections/widgets/records/"+created["id"].(string), map[string]interface{}{
		"name": "gadget2", "_expectedVersion": 99,
	})
	if updateRec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409, body = %s", updateRec.Code, updateRec.Body.String())
	}
}

func TestDeleteThenGetReturns404(t *testing.T) {
	s := newTestServer(t)
	createRec := doRequest(s, "POST", "/api/collections/widgets/records", map[string]interface{}{"name": "gadget"})
	var created engine.Record
	json.Unmarshal(createRec.Body.Bytes(), &created)
	id := created["id"].(string)

	delRec := doRequest(s, "DELETE", "/api/collections/widgets/records/"+id, nil)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", delRec.Code)
	}

	getRec := doRequest(s, "GET", "/api/collections/widgets/records/"+id, nil)
	if getRec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", getRec.Code)
	}
}

func TestLoginFailureAlwaysReturns401RegardlessOfCause(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/auth/login", map[string]interface{}{
		"email": "nobody@example.com", "password": "whatever",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLoginSuccessReturnsTokenAndUser(t *testing.T) {
	s := newTestServer(t)
	hash, _ := auth.HashPassword("hunter2")
	if _, err := s.engine.Create("users", engine.Record{"email": "a@example.com", "password": hash}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	rec := doRequest(s, "POST", "/api/auth/login", map[string]interface{}{
		"email": "a@example.com", "password": "hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Token == "" {
		t.Errorf("expected a non-empty token")
	}
}

func TestBatchRunsEachSubRequestIndependently(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/batch", map[string]interface{}{
		"requests": []map[string]interface{}{
			{"method": "create", "collection": "widgets", "data": map[string]interface{}{"name": "a"}},
			{"method": "unknown", "collection": "widgets"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("batch status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body batchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(body.Results))
	}
	if !body.Results[0].Success {
		t.Errorf("expected the create sub-request to succeed: %+v", body.Results[0])
	}
	if body.Results[1].Success {
		t.Errorf("expected the unknown-method sub-request to fail")
	}
}

func TestRateLimitRejectionReturns503WithRetryAfter(t *testing.T) {
	s := newTestServer(t)
	s.limiter = ratelimit.New(1, 1) // one token total, no headroom

	first := doRequest(s, "GET", "/api/collections/widgets/records", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}

	second := doRequest(s, "GET", "/api/collections/widgets/records", nil)
	if second.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Errorf("expected a Retry-After header on rate-limit rejection")
	}
}

func TestHealthEndpointReportsHealthy(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var resp health.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != health.StatusHealthy {
		t.Errorf("Status = %v, want healthy", resp.Status)
	}
}

func TestRealtimeSubscribesAndUnsubscribesOnDisconnect(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/realtime", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.httpServer.Handler.ServeHTTP(rec, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for s.broadcaster.SinkCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.broadcaster.SinkCount() != 1 {
		t.Fatalf("expected the realtime handler to subscribe a sink, SinkCount = %d", s.broadcaster.SinkCount())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the realtime handler to return once the client disconnects")
	}

	if s.broadcaster.SinkCount() != 0 {
		t.Errorf("expected disconnect to unsubscribe the sink, SinkCount = %d", s.broadcaster.SinkCount())
	}
}

func TestStatsEndpointReturnsCounters(t *testing.T) {
	s := newTestServer(t)
	doRequest(s, "GET", "/api/collections/widgets/records", nil)

	rec := doRequest(s, "GET", "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats metrics.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Requests.Total < 1 {
		t.Errorf("expected at least one counted request, got %d", stats.Requests.Total)
	}
}
