// Package risk enforces the bot's capital and loss limits. Every trade must
// pass the guard before any order is submitted, and every outcome is recorded
// back so exposure tracking stays truthful.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// State is a snapshot of the guard's accounting.
type State struct {
	OpenUsd         float64   `json:"open_usd"`
	DailyLossUsd    float64   `json:"daily_loss_usd"`
	TradesThisHour  int       `json:"trades_this_hour"`
	HourWindowStart time.Time `json:"hour_window_start"`
	Halted          bool      `json:"halted"`
}

// Guard gates trade entry against the configured limits and tracks open
// exposure, realized losses, and trade rate. The halt latch is one-way: once
// tripped it stays tripped for the life of the process.
type Guard struct {
	mu    sync.Mutex
	state State
	now   func() time.Time

	logger *slog.Logger
}

func NewGuard(logger *slog.Logger) *Guard {
	return &Guard{
		now:    time.Now,
		logger: logger.With("component", "risk"),
	}
}

// Check evaluates whether a trade costing cost dollars may be opened. It
// returns an empty string when approved, otherwise a human-readable rejection
// reason. Checks short-circuit in severity order: halt, kill switch, hourly
// rate, open exposure, daily loss.
func (g *Guard) Check(opp domain.ArbOpportunity, cfg domain.BotConfig) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Halted {
		return "bot is halted"
	}
	if cfg.KillSwitch {
		return "kill switch is active"
	}

	now := g.now()
	if g.state.HourWindowStart.IsZero() {
		g.state.HourWindowStart = now
	} else if now.Sub(g.state.HourWindowStart) > time.Hour {
		g.state.HourWindowStart = now
		g.state.TradesThisHour = 0
	}
	if g.state.TradesThisHour >= cfg.MaxTradesPerHour {
		return fmt.Sprintf("hourly trade cap reached (%d/%d)", g.state.TradesThisHour, cfg.MaxTradesPerHour)
	}

	if g.state.OpenUsd+opp.EstimatedUsdCost > cfg.MaxOpenUsdTotal {
		return fmt.Sprintf("max open USD would be exceeded (open=%.2f, new=%.2f, cap=%.2f)",
			g.state.OpenUsd, opp.EstimatedUsdCost, cfg.MaxOpenUsdTotal)
	}

	if g.state.DailyLossUsd >= cfg.MaxDailyLossUsd {
		return fmt.Sprintf("daily loss limit reached (%.2f/%.2f)", g.state.DailyLossUsd, cfg.MaxDailyLossUsd)
	}

	return ""
}

// RecordTradeOpen reserves exposure for a trade about to be submitted. It is
// called before the broker round-trip so concurrent evaluation can never
// oversubscribe the open cap.
func (g *Guard) RecordTradeOpen(costUsd float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.OpenUsd += costUsd
	g.state.TradesThisHour++
	if g.state.HourWindowStart.IsZero() {
		g.state.HourWindowStart = g.now()
	}
	g.logger.Debug("trade opened", "cost_usd", costUsd, "open_usd", g.state.OpenUsd, "trades_this_hour", g.state.TradesThisHour)
}

// RecordTradeClosed releases a position's cost basis and books any shortfall
// between proceeds and cost as daily loss.
func (g *Guard) RecordTradeClosed(costBasisUsd, proceedsUsd float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.OpenUsd -= costBasisUsd
	if g.state.OpenUsd < 0 {
		g.state.OpenUsd = 0
	}
	if deficit := costBasisUsd - proceedsUsd; deficit > 0 {
		g.state.DailyLossUsd += deficit
	}
	g.logger.Debug("trade closed", "cost_basis_usd", costBasisUsd, "proceeds_usd", proceedsUsd,
		"open_usd", g.state.OpenUsd, "daily_loss_usd", g.state.DailyLossUsd)
}

// RecordFlattenLoss books the realized loss from flattening a one-sided
// position and releases the matching exposure.
func (g *Guard) RecordFlattenLoss(lossUsd float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.DailyLossUsd += lossUsd
	g.state.OpenUsd -= lossUsd
	if g.state.OpenUsd < 0 {
		g.state.OpenUsd = 0
	}
	g.logger.Warn("flatten loss recorded", "loss_usd", lossUsd,
		"open_usd", g.state.OpenUsd, "daily_loss_usd", g.state.DailyLossUsd)
}

// Halt trips the one-way halt latch.
func (g *Guard) Halt(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Halted {
		return
	}
	g.state.Halted = true
	g.logger.Error("bot halted", "reason", reason)
}

// Halted reports whether the halt latch has tripped.
func (g *Guard) Halted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Halted
}

// Snapshot returns a copy of the current accounting state.
func (g *Guard) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
