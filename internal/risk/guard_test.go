package risk

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

func newTestGuard() *Guard {
	return NewGuard(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func guardConfig() domain.BotConfig {
	cfg := domain.SafeDefaults()
	cfg.KillSwitch = false
	cfg.MaxOpenUsdTotal = 200
	cfg.MaxDailyLossUsd = 100
	cfg.MaxTradesPerHour = 60
	return cfg
}

func opp(cost float64) domain.ArbOpportunity {
	return domain.ArbOpportunity{MarketID: "m1", EstimatedUsdCost: cost}
}

func TestCheckApproves(t *testing.T) {
	g := newTestGuard()
	if reason := g.Check(opp(15), guardConfig()); reason != "" {
		t.Errorf("expected approval, got %q", reason)
	}
}

func TestCheckKillSwitch(t *testing.T) {
	g := newTestGuard()
	cfg := guardConfig()
	cfg.KillSwitch = true
	if reason := g.Check(opp(15), cfg); reason != "kill switch is active" {
		t.Errorf("reason = %q", reason)
	}
}

func TestCheckOpenExposureCap(t *testing.T) {
	g := newTestGuard()
	g.RecordTradeOpen(190)

	reason := g.Check(opp(15), guardConfig())
	if !strings.Contains(reason, "max open USD would be exceeded") {
		t.Errorf("reason = %q", reason)
	}

	// A smaller trade still fits under the cap.
	if reason := g.Check(opp(10), guardConfig()); reason != "" {
		t.Errorf("expected approval for exact fit, got %q", reason)
	}
}

func TestCheckDailyLossLatch(t *testing.T) {
	g := newTestGuard()
	g.RecordFlattenLoss(100)

	reason := g.Check(opp(5), guardConfig())
	if !strings.Contains(reason, "daily loss limit reached") {
		t.Errorf("reason = %q", reason)
	}
}

func TestCheckHourlyCapAndWindowReset(t *testing.T) {
	g := newTestGuard()
	current := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return current }

	cfg := guardConfig()
	cfg.MaxTradesPerHour = 2

	g.RecordTradeOpen(1)
	g.RecordTradeOpen(1)
	if reason := g.Check(opp(1), cfg); !strings.Contains(reason, "hourly trade cap") {
		t.Errorf("reason = %q", reason)
	}

	// 59 minutes later the window has not rolled.
	current = current.Add(59 * time.Minute)
	if reason := g.Check(opp(1), cfg); !strings.Contains(reason, "hourly trade cap") {
		t.Errorf("reason = %q", reason)
	}

	// Past the hour the counter resets before the cap check.
	current = current.Add(2 * time.Minute)
	if reason := g.Check(opp(1), cfg); reason != "" {
		t.Errorf("expected approval after window reset, got %q", reason)
	}
	if got := g.Snapshot().TradesThisHour; got != 0 {
		t.Errorf("trades this hour after reset = %d", got)
	}
}

func TestHaltIsOneWay(t *testing.T) {
	g := newTestGuard()
	g.Halt("transport error")
	g.Halt("second call is a no-op")

	if !g.Halted() {
		t.Fatal("guard must report halted")
	}
	if reason := g.Check(opp(1), guardConfig()); reason != "bot is halted" {
		t.Errorf("reason = %q", reason)
	}

	// Halt outranks the kill switch in the reason ordering.
	cfg := guardConfig()
	cfg.KillSwitch = true
	if reason := g.Check(opp(1), cfg); reason != "bot is halted" {
		t.Errorf("reason = %q", reason)
	}
}

func TestRecordTradeClosedBooksDeficit(t *testing.T) {
	g := newTestGuard()
	g.RecordTradeOpen(50)
	g.RecordTradeClosed(50, 47.5)

	st := g.Snapshot()
	if st.OpenUsd != 0 {
		t.Errorf("open usd = %.2f, want 0", st.OpenUsd)
	}
	if st.DailyLossUsd != 2.5 {
		t.Errorf("daily loss = %.2f, want 2.5", st.DailyLossUsd)
	}

	// Profitable closes book no loss.
	g.RecordTradeOpen(40)
	g.RecordTradeClosed(40, 42)
	if got := g.Snapshot().DailyLossUsd; got != 2.5 {
		t.Errorf("daily loss after profit = %.2f, want 2.5", got)
	}
}

func TestExposureClampsAtZero(t *testing.T) {
	g := newTestGuard()
	g.RecordTradeOpen(10)
	g.RecordTradeClosed(25, 25) // closing more basis than is open
	if got := g.Snapshot().OpenUsd; got != 0 {
		t.Errorf("open usd = %.2f, want clamp at 0", got)
	}

	g.RecordFlattenLoss(5)
	if got := g.Snapshot().OpenUsd; got != 0 {
		t.Errorf("open usd after flatten = %.2f, want clamp at 0", got)
	}
	if got := g.Snapshot().DailyLossUsd; got != 5 {
		t.Errorf("daily loss = %.2f, want 5", got)
	}
}
