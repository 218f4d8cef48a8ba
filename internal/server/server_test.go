package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
	"github.com/alanyoungcy/dutchbot/internal/risk"
	"github.com/alanyoungcy/dutchbot/internal/server/handler"
)

type staticConfigStore struct{}

func (staticConfigStore) Load(context.Context) (domain.BotConfig, error) {
	return domain.SafeDefaults(), nil
}
func (staticConfigStore) EnsureDefault(context.Context, domain.BotConfig) error { return nil }

func newTestServer(apiKey string) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	status := handler.NewStatusHandler(domain.Run{
		ID:        "run-1",
		Mode:      domain.ModePaper,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}, risk.NewGuard(logger), staticConfigStore{}, nil, logger)

	return NewServer(Config{Port: 0, APIKey: apiKey}, status, nil, logger)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthExemptFromAuth(t *testing.T) {
	s := newTestServer("secret")
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health without credentials = %d, want 200", rec.Code)
	}
}

func TestStatusRequiresAuth(t *testing.T) {
	s := newTestServer("secret")

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without credentials = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := do(t, s, req); rec.Code != http.StatusOK {
		t.Errorf("status with key = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if rec := do(t, s, req); rec.Code != http.StatusOK {
		t.Errorf("config with bearer token = %d, want 200", rec.Code)
	}
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	s := newTestServer("")
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status with auth disabled = %d, want 200", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer("secret")

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := do(t, s, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
	// The API is read-only; the advertised surface must not invite writes.
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS" {
		t.Errorf("allow-methods = %q, want GET, OPTIONS", got)
	}
}
