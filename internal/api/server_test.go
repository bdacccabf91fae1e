package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/secaudit/headgrade/internal/eventlog"
	"github.com/secaudit/headgrade/internal/rules"
	"github.com/secaudit/headgrade/internal/scanner"
	sharedErrors "github.com/secaudit/headgrade/internal/shared/errors"
)

type stubScans struct {
	calls  atomic.Int64
	rec    *eventlog.ScanRecord
	err    error
	client string
	force  bool
}

func (s *stubScans) Scan(ctx context.Context, rawURL, client string, force bool) (*eventlog.ScanRecord, error) {
	s.calls.Add(1)
	s.client = client
	s.force = force
	if s.err != nil {
		return nil, s.err
	}
	return s.rec, nil
}

func (s *stubScans) Stats() scanner.Stats {
	return scanner.Stats{Requests: 7, CacheHits: 3}
}

func newTestServer(stub *stubScans) *Server {
	return NewServer(Config{Scans: stub})
}

func TestHandleScan_Success(t *testing.T) {
	stub := &stubScans{rec: &eventlog.ScanRecord{
		Hostname: "example.com",
		Grade:    rules.GradeA,
	}}
	srv := newTestServer(stub)

	req := httptest.NewRequest(http.MethodGet, "/scan?url=https://example.com&force=1", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	var rec eventlog.ScanRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if rec.Hostname != "example.com" || rec.Grade != rules.GradeA {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if !stub.force {
		t.Error("force=1 query parameter should request a forced scan")
	}
	if stub.client != "10.0.0.1" {
		t.Errorf("Client identity = %q, want peer address without port", stub.client)
	}
}

func TestHandleScan_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{fmt.Errorf("%w: bad scheme", sharedErrors.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: client 1.2.3.4 is in cool-down", sharedErrors.ErrRateLimited), http.StatusTooManyRequests},
		{fmt.Errorf("%w: connection refused", sharedErrors.ErrProbe), http.StatusBadGateway},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		srv := newTestServer(&stubScans{err: tt.err})
		req := httptest.NewRequest(http.MethodGet, "/scan?url=x", nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		if w.Code != tt.wantStatus {
			t.Errorf("error %v: status = %d, want %d", tt.err, w.Code, tt.wantStatus)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Errorf("error %v: invalid JSON body", tt.err)
		} else if body["error"] == "" {
			t.Errorf("error %v: empty error message", tt.err)
		}
	}
}

func TestHandleScan_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubScans{})
	req := httptest.NewRequest(http.MethodPost, "/scan?url=https://example.com", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want 405", w.Code)
	}
}

func TestStaticEndpointsBypassScanPath(t *testing.T) {
	stub := &stubScans{}
	srv := newTestServer(stub)

	for _, path := range []string{"/healthz", "/robots.txt"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, w.Code)
		}
	}
	if got := stub.calls.Load(); got != 0 {
		t.Errorf("Static endpoints must not invoke the scanner, got %d calls", got)
	}
}

func TestHandleStats(t *testing.T) {
	srv := newTestServer(&stubScans{})
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var stats scanner.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if stats.Requests != 7 || stats.CacheHits != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "203.0.113.7", "10.0.0.1:1234", "203.0.113.7"},
		{"forwarded chain", "203.0.113.7, 70.41.3.18, 150.172.238.178", "10.0.0.1:1234", "203.0.113.7"},
		{"forwarded with spaces", "  203.0.113.7  ", "10.0.0.1:1234", "203.0.113.7"},
		{"peer address fallback", "", "10.0.0.1:1234", "10.0.0.1"},
		{"no identity at all", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/scan", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := ClientIdentity(req); got != tt.want {
				t.Errorf("ClientIdentity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithRateLimit_LimitsPerIP(t *testing.T) {
	srv := NewServer(Config{
		Scans:     &stubScans{rec: &eventlog.ScanRecord{}},
		RateLimit: 1,
		RateBurst: 1,
	})

	first := httptest.NewRequest(http.MethodGet, "/scan?url=https://example.com", nil)
	first.RemoteAddr = "10.0.0.9:1000"
	w1 := httptest.NewRecorder()
	srv.ServeHTTP(w1, first)
	if w1.Code != http.StatusOK {
		t.Fatalf("First request status = %d, want 200", w1.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/scan?url=https://example.com", nil)
	second.RemoteAddr = "10.0.0.9:1001"
	w2 := httptest.NewRecorder()
	srv.ServeHTTP(w2, second)
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("Second request status = %d, want 429", w2.Code)
	}

	other := httptest.NewRequest(http.MethodGet, "/scan?url=https://example.com", nil)
	other.RemoteAddr = "10.0.0.10:1000"
	w3 := httptest.NewRecorder()
	srv.ServeHTTP(w3, other)
	if w3.Code != http.StatusOK {
		t.Errorf("Different IP status = %d, want 200", w3.Code)
	}
}

func TestWithRateLimit_ExemptsStaticEndpoints(t *testing.T) {
	srv := NewServer(Config{
		Scans:     &stubScans{},
		RateLimit: 1,
		RateBurst: 1,
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.9:1000"
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d to /healthz status = %d, want 200", i, w.Code)
		}
	}
}
