package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	if seen == "" {
		t.Fatal("expected a request id in context")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("response header %q != context id %q", rec.Header().Get("X-Request-ID"), seen)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestID(r.Context()); got != "abc" {
			t.Errorf("request id = %q", got)
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestSetLevel(t *testing.T) {
	if err := Init(Config{Level: "info", Format: "json"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if Level() != "debug" {
		t.Errorf("level = %s", Level())
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestResolveFormat(t *testing.T) {
	if ResolveFormat("json") != "json" || ResolveFormat("console") != "console" {
		t.Error("explicit formats must be kept")
	}
	if f := ResolveFormat("auto"); f != "json" && f != "console" {
		t.Errorf("auto resolved to %q", f)
	}
}

func TestMiddlewareLevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := current.Swap(zap.New(core))
	t.Cleanup(func() { current.Store(prev) })

	tests := []struct {
		path   string
		status int
		want   zapcore.Level
	}{
		{"/api/state", http.StatusOK, zapcore.InfoLevel},
		{"/health", http.StatusOK, zapcore.DebugLevel},
		{"/api/projects/select", http.StatusNotFound, zapcore.WarnLevel},
		{"/api/runner/run", http.StatusBadGateway, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

		entries := logs.TakeAll()
		if len(entries) != 1 {
			t.Fatalf("%s: got %d entries", tt.path, len(entries))
		}
		if entries[0].Level != tt.want {
			t.Errorf("%s %d: level = %s, want %s", tt.path, tt.status, entries[0].Level, tt.want)
		}
	}
}
