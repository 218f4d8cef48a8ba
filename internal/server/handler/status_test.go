package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
	"github.com/alanyoungcy/dutchbot/internal/risk"
)

type fakeConfigStore struct {
	cfg domain.BotConfig
	err error
}

func (f *fakeConfigStore) Load(context.Context) (domain.BotConfig, error) { return f.cfg, f.err }
func (f *fakeConfigStore) EnsureDefault(context.Context, domain.BotConfig) error {
	return nil
}

type fakeCache struct {
	markets []domain.Market
	err     error
}

func (f *fakeCache) SetAll(context.Context, []domain.Market) error { return nil }
func (f *fakeCache) List(context.Context) ([]domain.Market, error) { return f.markets, f.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(configs domain.ConfigStore, cache domain.MarketCache) *StatusHandler {
	run := domain.Run{
		ID:        "run-1",
		Mode:      domain.ModePaper,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().Add(-time.Minute),
	}
	guard := risk.NewGuard(testLogger())
	guard.RecordTradeOpen(47.5)
	return NewStatusHandler(run, guard, configs, cache, testLogger())
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(&fakeConfigStore{}, nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusSnapshot(t *testing.T) {
	cache := &fakeCache{markets: []domain.Market{{ID: "m1"}, {ID: "m2"}}}
	h := newTestHandler(&fakeConfigStore{}, cache)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Run           domain.Run `json:"run"`
		UptimeSeconds int64      `json:"uptime_seconds"`
		Risk          risk.State `json:"risk"`
		MarketCount   int        `json:"market_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Run.ID != "run-1" || body.Run.Status != domain.RunStatusRunning {
		t.Errorf("run = %+v", body.Run)
	}
	if body.UptimeSeconds < 59 {
		t.Errorf("uptime_seconds = %d", body.UptimeSeconds)
	}
	if body.Risk.OpenUsd != 47.5 {
		t.Errorf("risk.open_usd = %v", body.Risk.OpenUsd)
	}
	if body.MarketCount != 2 {
		t.Errorf("market_count = %d", body.MarketCount)
	}
}

func TestStatusToleratesCacheFailure(t *testing.T) {
	h := newTestHandler(&fakeConfigStore{}, &fakeCache{err: errors.New("redis down")})

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, cache failures must not break the endpoint", rec.Code)
	}
	var body struct {
		MarketCount int `json:"market_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.MarketCount != 0 {
		t.Errorf("market_count = %d", body.MarketCount)
	}
}

func TestConfigView(t *testing.T) {
	cfg := domain.SafeDefaults()
	cfg.MinEdge = 0.035
	h := newTestHandler(&fakeConfigStore{cfg: cfg}, nil)

	rec := httptest.NewRecorder()
	h.Config(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got domain.BotConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MinEdge != 0.035 || got.Mode != domain.ModePaper {
		t.Errorf("config = %+v", got)
	}
}

func TestConfigStoreFailure(t *testing.T) {
	h := newTestHandler(&fakeConfigStore{err: errors.New("pg down")}, nil)

	rec := httptest.NewRecorder()
	h.Config(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
