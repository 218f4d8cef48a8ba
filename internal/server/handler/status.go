package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
	"github.com/alanyoungcy/dutchbot/internal/risk"
)

// StatusHandler serves the read-only operator endpoints: liveness, the run
// status snapshot, and the active trading configuration. The dashboard polls
// these; nothing here mutates bot state.
type StatusHandler struct {
	run     domain.Run
	guard   *risk.Guard
	configs domain.ConfigStore
	cache   domain.MarketCache // optional
	logger  *slog.Logger
}

func NewStatusHandler(run domain.Run, guard *risk.Guard, configs domain.ConfigStore, cache domain.MarketCache, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		run:     run,
		guard:   guard,
		configs: configs,
		cache:   cache,
		logger:  logger.With(slog.String("handler", "status")),
	}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *StatusHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Status reports the current run, risk accounting, and the last discovered
// market set.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.run.StartedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	var markets []domain.Market
	if h.cache != nil {
		var err error
		if markets, err = h.cache.List(r.Context()); err != nil {
			h.logger.Warn("market cache read failed", slog.String("error", err.Error()))
			markets = nil
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":            h.run,
		"uptime_seconds": uptime,
		"risk":           h.guard.Snapshot(),
		"market_count":   len(markets),
		"markets":        markets,
	})
}

// Config returns the active trading configuration as the bot sees it.
// GET /api/config
func (h *StatusHandler) Config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.Load(r.Context())
	if err != nil {
		h.logger.Error("config load failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "config store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
