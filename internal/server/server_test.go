package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rafid/crosspost/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("CROSSPOST_AUTH_JWTSECRET", "test-secret-0123456789abcdef")
	t.Setenv("CROSSPOST_CACHE_PATH", filepath.Join(dir, "cache.db"))
	t.Setenv("CROSSPOST_AUTH_DBPATH", filepath.Join(dir, "auth.db"))

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	t.Cleanup(func() {
		srv.identity.Close()
		srv.sessions.Close()
		srv.cacheDB.Close()
	})
	return srv
}

func TestRoutesMounted(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/auth/me", http.StatusOK},
		{http.MethodGet, "/posts/", http.StatusOK},
		{http.MethodGet, "/posts/upcoming", http.StatusOK},
		{http.MethodGet, "/posts/stats", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.status)
		}
	}
}

func TestRegistrationThroughFullStack(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"name":"Rafi","email":"rafi@example.com","password":"longenough"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:9999"
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d, body %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("response missing X-Request-ID header")
	}
}

func TestCredentialRateLimit(t *testing.T) {
	t.Setenv("CROSSPOST_RATELIMIT_PERSECOND", "1")
	t.Setenv("CROSSPOST_RATELIMIT_BURST", "2")
	srv := newTestServer(t)

	last := 0
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
		req.RemoteAddr = "10.1.1.1:1000"
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third login attempt = %d, want 429", last)
	}
}
