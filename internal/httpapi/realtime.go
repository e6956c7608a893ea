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
	"fmt"
	"net/http"
)

// sseSink adapts an http.ResponseWriter/Flusher pair to broadcast.Sink,
// framing every event as text/event-stream. It reports backpressure
// (ok=false) whenever the underlying connection can no longer be flushed,
// which for net/http means the client has gone away.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	closed  chan struct{}
}

func newSSESink(w http.ResponseWriter) (*sseSink, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseSink{w: w, flusher: flusher, closed: make(chan struct{})}, true
}

func (s *sseSink) WriteEvent(event string, payload []byte) (bool, error) {
	select {
	case <-s.closed:
		return false, nil
	default:
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return false, err
	}
	s.flusher.Flush()
	return true, nil
}

func (s *sseSink) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

// handleRealtime upgrades the connection to a server-sent-event stream and
// keeps it open until the client disconnects or the broadcaster evicts it
// (backpressure or heartbeat timeout).
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink, ok := newSSESink(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.broadcaster.Subscribe(sink)
	defer s.broadcaster.Unsubscribe(sink)

	<-r.Context().Done()
	sink.Close()
}
