package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	prev := global
	global = zap.New(core)
	t.Cleanup(func() { global = prev })
	return logs
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	InitNop()

	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archive", nil))

	if seen == "" {
		t.Fatal("expected request id in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header %q does not match context id %q", got, seen)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", rec.Code)
	}
}

func TestMiddlewareRequestIDFromClient(t *testing.T) {
	InitNop()
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		header string
		keep   bool
	}{
		{"abc-123", true},
		{"has space", false},
		{"line\nbreak", false},
		{strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", tt.header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if (got == tt.header) != tt.keep {
			t.Errorf("header %q: kept=%v, want %v", tt.header, got == tt.header, tt.keep)
		}
		if got == "" {
			t.Errorf("header %q: expected an id", tt.header)
		}
	}
}

func TestMiddlewareLogLevels(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	ok := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	fail := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if logs.Len() != 0 {
		t.Fatalf("health checks should not log at info, got %d entries", logs.Len())
	}

	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/metadata", nil))
	fail.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/metadata", nil))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["status"] != int64(200) {
		t.Errorf("unexpected success entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["status"] != int64(503) {
		t.Errorf("unexpected failure entry %+v", entries[1])
	}
	if entries[0].ContextMap()["request_id"] == "" {
		t.Error("expected request_id field")
	}
}

func TestWithContextFallsBackToGlobal(t *testing.T) {
	InitNop()
	if WithContext(context.Background()) != L() {
		t.Error("expected global logger for bare context")
	}
}

func TestResponseWriterCountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	rw.Write([]byte("hello"))
	rw.Write([]byte(" world"))
	if rw.Size != 11 {
		t.Errorf("expected 11 bytes, got %d", rw.Size)
	}
	if rw.Status != http.StatusOK {
		t.Errorf("expected implicit 200, got %d", rw.Status)
	}
	if NewResponseWriter(rw) != rw {
		t.Error("expected wrapping to be idempotent")
	}
}
