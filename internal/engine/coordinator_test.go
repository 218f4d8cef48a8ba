package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/broker"
	"github.com/alanyoungcy/dutchbot/internal/domain"
	"github.com/alanyoungcy/dutchbot/internal/events"
	"github.com/alanyoungcy/dutchbot/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakes -----------------------------------------------------------------

type fakeConfigStore struct {
	cfg domain.BotConfig
	err error
}

func (f *fakeConfigStore) Load(context.Context) (domain.BotConfig, error) {
	return f.cfg, f.err
}

func (f *fakeConfigStore) EnsureDefault(context.Context, domain.BotConfig) error { return nil }

type fakeSource struct {
	markets []domain.Market
	err     error
	calls   int
}

func (f *fakeSource) DiscoverMarkets(context.Context) ([]domain.Market, error) {
	f.calls++
	return f.markets, f.err
}

type fakeFetcher struct {
	books map[string]domain.MarketOrderbook
}

func (f *fakeFetcher) FetchOrderbook(_ context.Context, m domain.Market) (domain.MarketOrderbook, bool) {
	book, ok := f.books[m.ID]
	return book, ok
}

// scriptBroker returns canned pair results and records calls.
type scriptBroker struct {
	mode         domain.TradingMode
	pair         domain.PairResult
	pairErr      error
	flattenOK    bool
	flattenErr   error
	placed       int
	flattened    []float64
	flattenPrice float64
}

func (b *scriptBroker) Mode() domain.TradingMode { return b.mode }

func (b *scriptBroker) PlaceArbOrders(context.Context, domain.ArbOpportunity, domain.BotConfig) (domain.PairResult, error) {
	b.placed++
	return b.pair, b.pairErr
}

func (b *scriptBroker) FlattenPosition(_ context.Context, _ string, shares, exitPrice float64, _ domain.BotConfig) (bool, error) {
	b.flattened = append(b.flattened, shares)
	b.flattenPrice = exitPrice
	return b.flattenOK, b.flattenErr
}

type fakeQuoter struct {
	bid float64
	err error
}

func (f *fakeQuoter) BestBid(context.Context, string) (float64, error) { return f.bid, f.err }

// captureStore collects every inserted event.
type captureStore struct {
	events []domain.BotEvent
}

func (c *captureStore) Insert(_ context.Context, ev domain.BotEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *captureStore) ListBefore(context.Context, time.Time) ([]domain.BotEvent, error) {
	return nil, nil
}

func (c *captureStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (c *captureStore) kinds() []domain.EventKind {
	out := make([]domain.EventKind, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (c *captureStore) has(kind domain.EventKind) bool {
	for _, ev := range c.events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func (c *captureStore) find(kind domain.EventKind) (domain.BotEvent, bool) {
	for _, ev := range c.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return domain.BotEvent{}, false
}

// --- harness ---------------------------------------------------------------

type harness struct {
	coord  *Coordinator
	store  *fakeConfigStore
	source *fakeSource
	broker *scriptBroker
	guard  *risk.Guard
	sink   *captureStore
}

func qualifyingBook(m domain.Market) domain.MarketOrderbook {
	return domain.MarketOrderbook{
		MarketID:   m.ID,
		Title:      m.Title,
		YesTokenID: m.YesTokenID,
		NoTokenID:  m.NoTokenID,
		YesBestAsk: &domain.OrderbookLevel{Price: 0.47, Size: 80},
		NoBestAsk:  &domain.OrderbookLevel{Price: 0.48, Size: 120},
	}
}

func activeConfig() domain.BotConfig {
	cfg := domain.SafeDefaults()
	cfg.KillSwitch = false
	cfg.MaxUsdPerTrade = 100
	return cfg
}

func filledPair(shares float64) domain.PairResult {
	return domain.PairResult{
		Yes: domain.OrderResult{OrderID: "y1", Status: domain.LegFilled, FilledShares: shares, AvgPrice: 0.47},
		No:  domain.OrderResult{OrderID: "n1", Status: domain.LegFilled, FilledShares: shares, AvgPrice: 0.48},
	}
}

func newHarness(t *testing.T, cfg domain.BotConfig, bkr *scriptBroker) *harness {
	t.Helper()

	m := domain.Market{ID: "m1", Title: "Bitcoin Up or Down", YesTokenID: "y", NoTokenID: "n", Active: true}
	store := &fakeConfigStore{cfg: cfg}
	source := &fakeSource{markets: []domain.Market{m}}
	fetcher := &fakeFetcher{books: map[string]domain.MarketOrderbook{"m1": qualifyingBook(m)}}
	guard := risk.NewGuard(testLogger())
	sink := &captureStore{}
	recorder := events.NewRecorder(sink, nil, "run-1", testLogger())

	factory := func(mode domain.TradingMode) (broker.Broker, error) {
		bkr.mode = mode
		return bkr, nil
	}

	coord, err := NewCoordinator(context.Background(), store, source, fetcher, guard, factory, &fakeQuoter{bid: 0.45}, recorder, nil,
		Options{ScanInterval: time.Millisecond, ConfigRefresh: time.Millisecond, AllowLiveExecution: false},
		testLogger())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	return &harness{coord: coord, store: store, source: source, broker: bkr, guard: guard, sink: sink}
}

// --- tests -----------------------------------------------------------------

func TestCycleFilledTrade(t *testing.T) {
	h := newHarness(t, activeConfig(), &scriptBroker{pair: filledPair(80)})

	h.coord.runCycle(context.Background())

	for _, kind := range []domain.EventKind{
		domain.EventHeartbeat, domain.EventOpportunity, domain.EventOrderSubmitted, domain.EventFilled,
	} {
		if !h.sink.has(kind) {
			t.Errorf("missing %s event; got %v", kind, h.sink.kinds())
		}
	}
	if h.broker.placed != 1 {
		t.Errorf("placed = %d", h.broker.placed)
	}

	st := h.guard.Snapshot()
	if st.OpenUsd != 0 {
		t.Errorf("open usd = %.2f, want fully released", st.OpenUsd)
	}
	if st.DailyLossUsd != 0 {
		t.Errorf("daily loss = %.2f", st.DailyLossUsd)
	}
	if st.TradesThisHour != 1 {
		t.Errorf("trades this hour = %d", st.TradesThisHour)
	}
}

func TestCycleKillSwitchSkipsScan(t *testing.T) {
	h := newHarness(t, domain.SafeDefaults(), &scriptBroker{})

	h.coord.runCycle(context.Background())

	if h.source.calls != 0 {
		t.Error("discovery must not run while the kill switch is active")
	}
	if !h.sink.has(domain.EventHeartbeat) {
		t.Error("heartbeat must be emitted even when skipping")
	}
	if h.broker.placed != 0 {
		t.Error("no orders while the kill switch is active")
	}
}

func TestCycleConfigLoadFailureFailsSafe(t *testing.T) {
	h := newHarness(t, activeConfig(), &scriptBroker{pair: filledPair(80)})
	h.store.err = errors.New("db unreachable")

	// Force a reload past the cooldown.
	h.coord.refresh.last = time.Time{}
	h.coord.runCycle(context.Background())

	// Safe defaults carry the kill switch; nothing may trade.
	if h.broker.placed != 0 {
		t.Error("must not trade on safe defaults")
	}
	if h.source.calls != 0 {
		t.Error("safe defaults must skip the scan")
	}
}

func TestCycleRiskRejectionEmitsSkip(t *testing.T) {
	cfg := activeConfig()
	cfg.MaxOpenUsdTotal = 10 // 0.95*80 = 76 exceeds it
	h := newHarness(t, cfg, &scriptBroker{pair: filledPair(80)})

	h.coord.runCycle(context.Background())

	ev, ok := h.sink.find(domain.EventSkipped)
	if !ok {
		t.Fatalf("no SKIPPED event; got %v", h.sink.kinds())
	}
	if ev.Message == "" {
		t.Error("skip must carry the rejection reason")
	}
	if h.broker.placed != 0 {
		t.Error("rejected trades must not reach the broker")
	}
}

func TestCycleLiveWithoutOperatorApprovalSkips(t *testing.T) {
	cfg := activeConfig()
	cfg.Mode = domain.ModeLive
	cfg.ExecutionEnabled = true // store says yes; the operator flag says no
	h := newHarness(t, cfg, &scriptBroker{pair: filledPair(80)})

	h.coord.runCycle(context.Background())

	ev, ok := h.sink.find(domain.EventSkipped)
	if !ok || ev.Message != "live execution is disabled" {
		t.Fatalf("skip event = %+v ok=%v", ev, ok)
	}
	if h.broker.placed != 0 {
		t.Error("live orders require the operator-side flag")
	}
}

func TestCycleOneSidedFillFlattens(t *testing.T) {
	pair := domain.PairResult{
		Yes: domain.OrderResult{Status: domain.LegFilled, FilledShares: 80, AvgPrice: 0.47},
		No:  domain.OrderResult{Status: domain.LegUnfilled},
	}
	h := newHarness(t, activeConfig(), &scriptBroker{pair: pair, flattenOK: true})

	h.coord.runCycle(context.Background())

	if len(h.broker.flattened) != 1 || h.broker.flattened[0] != 80 {
		t.Fatalf("flattened = %v, want one 80-share unwind", h.broker.flattened)
	}
	// Exit price comes from the live best bid.
	if h.broker.flattenPrice != 0.45 {
		t.Errorf("flatten price = %.4f, want quoted 0.45", h.broker.flattenPrice)
	}
	if !h.sink.has(domain.EventPartialFillFlattened) {
		t.Errorf("missing PARTIAL_FILL_FLATTENED; got %v", h.sink.kinds())
	}

	st := h.guard.Snapshot()
	wantLoss := (0.47 - 0.45) * 80
	if diff := st.DailyLossUsd - wantLoss; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("daily loss = %.4f, want %.4f", st.DailyLossUsd, wantLoss)
	}
	if st.OpenUsd != 0 {
		t.Errorf("open usd = %.2f, want fully released", st.OpenUsd)
	}
	if h.guard.Halted() {
		t.Error("a successful flatten must not halt")
	}
}

func TestCycleEqualPartialFillsSettleWithoutFlatten(t *testing.T) {
	pair := domain.PairResult{
		Yes: domain.OrderResult{OrderID: "y1", Status: domain.LegPartial, FilledShares: 30, AvgPrice: 0.47},
		No:  domain.OrderResult{OrderID: "n1", Status: domain.LegPartial, FilledShares: 30, AvgPrice: 0.48},
	}
	h := newHarness(t, activeConfig(), &scriptBroker{pair: pair})

	h.coord.runCycle(context.Background())

	// Equal partials are a complete hedge; flattening (least of all a
	// zero-share order) must never be attempted.
	if len(h.broker.flattened) != 0 {
		t.Fatalf("flattened = %v, want no flatten for a hedged position", h.broker.flattened)
	}
	if h.guard.Halted() {
		t.Fatal("equal partial fills must not halt the bot")
	}

	ev, ok := h.sink.find(domain.EventFilled)
	if !ok {
		t.Fatalf("missing FILLED event; got %v", h.sink.kinds())
	}
	if ev.Meta["yes_filled"] != 30.0 || ev.Meta["no_filled"] != 30.0 {
		t.Errorf("fill meta = %+v", ev.Meta)
	}

	st := h.guard.Snapshot()
	if st.OpenUsd != 0 {
		t.Errorf("open usd = %.2f, want fully released", st.OpenUsd)
	}
	if st.DailyLossUsd != 0 {
		t.Errorf("daily loss = %.2f, want none on a hedged close", st.DailyLossUsd)
	}
}

func TestCycleFlattenFailureHalts(t *testing.T) {
	pair := domain.PairResult{
		Yes: domain.OrderResult{Status: domain.LegFilled, FilledShares: 80, AvgPrice: 0.47},
		No:  domain.OrderResult{Status: domain.LegUnfilled},
	}
	h := newHarness(t, activeConfig(), &scriptBroker{pair: pair, flattenOK: false})

	h.coord.runCycle(context.Background())

	if !h.guard.Halted() {
		t.Fatal("a failed flatten must halt the bot")
	}
	if !h.sink.has(domain.EventError) || !h.sink.has(domain.EventHalt) {
		t.Errorf("expected ERROR and HALT events; got %v", h.sink.kinds())
	}
}

func TestCycleBothUnfilledReleases(t *testing.T) {
	pair := domain.PairResult{
		Yes: domain.OrderResult{Status: domain.LegUnfilled},
		No:  domain.OrderResult{Status: domain.LegUnfilled},
	}
	h := newHarness(t, activeConfig(), &scriptBroker{pair: pair})

	h.coord.runCycle(context.Background())

	ev, ok := h.sink.find(domain.EventSkipped)
	if !ok || ev.Message != "both legs unfilled" {
		t.Fatalf("skip event = %+v ok=%v", ev, ok)
	}
	st := h.guard.Snapshot()
	if st.OpenUsd != 0 || st.DailyLossUsd != 0 {
		t.Errorf("state = %+v, want clean release", st)
	}
}

func TestCycleTransportErrorReleases(t *testing.T) {
	pair := domain.PairResult{
		Yes: domain.OrderResult{Status: domain.LegFilled, FilledShares: 80, AvgPrice: 0.47},
		No:  domain.OrderResult{Status: domain.LegTransportError, Err: errors.New("connection reset")},
	}
	h := newHarness(t, activeConfig(), &scriptBroker{pair: pair})

	h.coord.runCycle(context.Background())

	if !h.sink.has(domain.EventError) {
		t.Errorf("expected ERROR event; got %v", h.sink.kinds())
	}
	if st := h.guard.Snapshot(); st.OpenUsd != 0 {
		t.Errorf("open usd = %.2f, want released", st.OpenUsd)
	}
	if h.guard.Halted() {
		t.Error("a transport error alone must not halt")
	}
}

func TestModeChangeSwapsBroker(t *testing.T) {
	h := newHarness(t, activeConfig(), &scriptBroker{pair: filledPair(80)})
	if h.coord.bkr.Mode() != domain.ModePaper {
		t.Fatalf("initial mode = %s", h.coord.bkr.Mode())
	}

	cfg := activeConfig()
	cfg.Mode = domain.ModeLive
	h.store.cfg = cfg
	h.coord.refresh.last = time.Time{}

	h.coord.runCycle(context.Background())

	if h.coord.bkr.Mode() != domain.ModeLive {
		t.Errorf("broker mode after swap = %s", h.coord.bkr.Mode())
	}
}

func TestRunExitsWhenHalted(t *testing.T) {
	pair := domain.PairResult{
		Yes: domain.OrderResult{Status: domain.LegFilled, FilledShares: 80, AvgPrice: 0.47},
		No:  domain.OrderResult{Status: domain.LegUnfilled},
	}
	h := newHarness(t, activeConfig(), &scriptBroker{pair: pair, flattenOK: false})

	done := make(chan error, 1)
	go func() { done <- h.coord.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after halt = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after the guard halted")
	}
}

func TestRefresherCooldown(t *testing.T) {
	current := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	r := newRefresher(3 * time.Second)
	r.now = func() time.Time { return current }

	if !r.Due() {
		t.Fatal("first call must be due")
	}
	if r.Due() {
		t.Error("immediate second call must not be due")
	}
	current = current.Add(2 * time.Second)
	if r.Due() {
		t.Error("inside the cooldown must not be due")
	}
	current = current.Add(2 * time.Second)
	if !r.Due() {
		t.Error("past the cooldown must be due")
	}
}
