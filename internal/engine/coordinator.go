// Package engine drives the scan-evaluate-execute cycle: it polls the dynamic
// config, discovers markets, sizes opportunities, gates them through the risk
// guard, submits paired orders through the active broker, and settles the
// results back into the guard's accounting.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/broker"
	"github.com/alanyoungcy/dutchbot/internal/domain"
	"github.com/alanyoungcy/dutchbot/internal/events"
	"github.com/alanyoungcy/dutchbot/internal/risk"
	"github.com/alanyoungcy/dutchbot/internal/scanner"
)

// flattenDiscount prices a fallback flatten order when no live bid is
// available: 2% under the entry ask.
const flattenDiscount = 0.98

// MarketSource discovers the markets to scan.
type MarketSource interface {
	DiscoverMarkets(ctx context.Context) ([]domain.Market, error)
}

// BookFetcher snapshots the top-of-book for one market.
type BookFetcher interface {
	FetchOrderbook(ctx context.Context, m domain.Market) (domain.MarketOrderbook, bool)
}

// Options carries the static engine settings.
type Options struct {
	ScanInterval  time.Duration
	ConfigRefresh time.Duration

	// AllowLiveExecution is the operator-side circuit breaker. Live order
	// submission requires this AND the store-side executionEnabled flag.
	AllowLiveExecution bool
}

// Coordinator owns the scan loop. It is single-threaded by design: one cycle
// runs at a time, and risk accounting between Check and settlement needs no
// coordination beyond the guard's own lock.
type Coordinator struct {
	configStore domain.ConfigStore
	discovery   MarketSource
	fetcher     BookFetcher
	guard       *risk.Guard
	newBroker   broker.Factory
	quoter      broker.BidQuoter
	recorder    *events.Recorder
	cache       domain.MarketCache // optional

	opts    Options
	refresh *refresher
	logger  *slog.Logger

	cfg domain.BotConfig
	bkr broker.Broker
}

func NewCoordinator(
	ctx context.Context,
	configStore domain.ConfigStore,
	discovery MarketSource,
	fetcher BookFetcher,
	guard *risk.Guard,
	factory broker.Factory,
	quoter broker.BidQuoter,
	recorder *events.Recorder,
	cache domain.MarketCache,
	opts Options,
	logger *slog.Logger,
) (*Coordinator, error) {
	c := &Coordinator{
		configStore: configStore,
		discovery:   discovery,
		fetcher:     fetcher,
		guard:       guard,
		newBroker:   factory,
		quoter:      quoter,
		recorder:    recorder,
		cache:       cache,
		opts:        opts,
		refresh:     newRefresher(opts.ConfigRefresh),
		logger:      logger.With("component", "engine"),
	}

	c.cfg = c.loadConfig(ctx)
	bkr, err := factory(c.cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("engine: initial broker: %w", err)
	}
	c.bkr = bkr
	return c, nil
}

// Run executes scan cycles until the context is canceled or the guard halts.
// Cycles are spaced by a fixed delay: the interval starts after a cycle ends,
// so a slow venue never stacks overlapping scans.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("scan loop starting",
		"mode", string(c.cfg.Mode),
		"scan_interval", c.opts.ScanInterval,
		"allow_live_execution", c.opts.AllowLiveExecution,
	)

	for {
		c.runCycle(ctx)

		if c.guard.Halted() {
			c.logger.Error("guard halted; scan loop exiting")
			return nil
		}

		timer := time.NewTimer(c.opts.ScanInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Coordinator) runCycle(ctx context.Context) {
	if c.refresh.Due() {
		c.refreshConfig(ctx)
	}
	cfg := c.cfg

	c.recorder.Emit(ctx, domain.BotEvent{
		Mode: cfg.Mode,
		Kind: domain.EventHeartbeat,
		Meta: heartbeatMeta(c.guard.Snapshot()),
	})

	if c.guard.Halted() {
		c.logger.Warn("bot is halted; skipping scan")
		return
	}
	if cfg.KillSwitch {
		c.logger.Info("kill switch is active; skipping scan")
		return
	}

	markets, err := c.discovery.DiscoverMarkets(ctx)
	if err != nil {
		c.logger.Error("discovery failed", "error", err)
		c.recorder.Emit(ctx, domain.BotEvent{
			Mode:    cfg.Mode,
			Kind:    domain.EventError,
			Message: "discovery failed: " + err.Error(),
		})
		return
	}
	if c.cache != nil {
		if err := c.cache.SetAll(ctx, markets); err != nil {
			c.logger.Warn("market cache update failed", "error", err)
		}
	}

	for _, m := range markets {
		if ctx.Err() != nil || c.guard.Halted() {
			return
		}
		c.scanMarket(ctx, m, cfg)
	}
}

// refreshConfig reloads the dynamic config, falling back to safe defaults on
// any failure, and swaps the broker when the trading mode changed. The
// operator-side circuit breaker is applied here: the store alone can never
// enable live execution.
func (c *Coordinator) refreshConfig(ctx context.Context) {
	cfg := c.loadConfig(ctx)

	if cfg.Mode != c.cfg.Mode || c.bkr == nil {
		bkr, err := c.newBroker(cfg.Mode)
		if err != nil {
			c.logger.Error("broker swap failed; reverting to safe defaults", "mode", string(cfg.Mode), "error", err)
			c.recorder.Emit(ctx, domain.BotEvent{
				Mode:    c.cfg.Mode,
				Kind:    domain.EventError,
				Message: "broker swap failed: " + err.Error(),
			})
			cfg = domain.SafeDefaults()
			bkr, _ = c.newBroker(cfg.Mode)
		} else {
			c.logger.Info("trading mode changed", "from", string(c.cfg.Mode), "to", string(cfg.Mode))
		}
		c.bkr = bkr
	}
	c.cfg = cfg
}

func (c *Coordinator) loadConfig(ctx context.Context) domain.BotConfig {
	cfg, err := c.configStore.Load(ctx)
	if err != nil {
		c.logger.Warn("config load failed; using safe defaults", "error", err)
		cfg = domain.SafeDefaults()
	}
	cfg.ExecutionEnabled = cfg.ExecutionEnabled && c.opts.AllowLiveExecution
	return cfg
}

func (c *Coordinator) scanMarket(ctx context.Context, m domain.Market, cfg domain.BotConfig) {
	book, ok := c.fetcher.FetchOrderbook(ctx, m)
	if !ok {
		return
	}

	opp, ok := scanner.Evaluate(book, cfg)
	if !ok {
		return
	}

	c.recorder.Emit(ctx, marketEvent(domain.EventOpportunity, cfg.Mode, opp, ""))

	if reason := c.guard.Check(opp, cfg); reason != "" {
		c.recorder.Emit(ctx, marketEvent(domain.EventSkipped, cfg.Mode, opp, reason))
		return
	}
	if cfg.Mode == domain.ModeLive && !cfg.ExecutionEnabled {
		c.recorder.Emit(ctx, marketEvent(domain.EventSkipped, cfg.Mode, opp, "live execution is disabled"))
		return
	}

	c.recorder.Emit(ctx, marketEvent(domain.EventOrderSubmitted, cfg.Mode, opp, ""))

	// Reserve exposure before the round-trip so a slow venue cannot let the
	// next cycle oversubscribe the open cap.
	c.guard.RecordTradeOpen(opp.EstimatedUsdCost)

	fillCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.MaxFillMs)*time.Millisecond)
	pair, err := c.bkr.PlaceArbOrders(fillCtx, opp, cfg)
	cancel()
	if err != nil {
		c.releaseNetZero(opp.EstimatedUsdCost)
		c.recorder.Emit(ctx, marketEvent(domain.EventError, cfg.Mode, opp, "order submission failed: "+err.Error()))
		return
	}

	c.settlePair(ctx, opp, cfg, pair)
}

// settlePair reconciles the paired fill results with the risk accounting.
//
// Outcomes:
//   - transport error on either leg: release the reservation; orders are
//     fill-or-kill, so an errored round-trip left nothing resting
//   - both legs fully filled: close at the guaranteed $1 payoff
//   - both legs partially filled to the same size: already hedged, close the
//     matched pairs at $1 with nothing to flatten
//   - fills on one side only: flatten the stray shares; a failed flatten
//     halts the bot
//   - fills on both sides with a size mismatch: the matched pairs close at
//     $1, the excess is flattened
//   - no fills at all: release the reservation
func (c *Coordinator) settlePair(ctx context.Context, opp domain.ArbOpportunity, cfg domain.BotConfig, pair domain.PairResult) {
	cost := opp.EstimatedUsdCost

	if terr := pair.TransportErr(); terr != nil {
		c.releaseNetZero(cost)
		c.recorder.Emit(ctx, marketEvent(domain.EventError, cfg.Mode, opp, "leg transport error: "+terr.Error()))
		return
	}

	yesFilled := pair.Yes.FilledShares
	noFilled := pair.No.FilledShares
	matched := math.Min(yesFilled, noFilled)

	if yesFilled == 0 && noFilled == 0 {
		c.releaseNetZero(cost)
		c.recorder.Emit(ctx, marketEvent(domain.EventSkipped, cfg.Mode, opp, "both legs unfilled"))
		return
	}

	if pair.Yes.Status == domain.LegFilled && pair.No.Status == domain.LegFilled {
		c.guard.RecordTradeClosed(cost, float64(opp.Shares))
		ev := marketEvent(domain.EventFilled, cfg.Mode, opp, "")
		ev.Meta = map[string]any{
			"yes_order_id": pair.Yes.OrderID,
			"no_order_id":  pair.No.OrderID,
		}
		c.recorder.Emit(ctx, ev)
		return
	}

	// Equal partial fills are a complete hedge: every filled YES share is
	// matched by a NO share, so the position closes at the guaranteed $1
	// payoff and there is no excess to flatten.
	if yesFilled == noFilled {
		c.guard.RecordTradeClosed(cost, math.Max(matched, cost))
		ev := marketEvent(domain.EventFilled, cfg.Mode, opp, fmt.Sprintf("both legs filled %.0f of %d shares", matched, opp.Shares))
		ev.Meta = map[string]any{
			"yes_filled": yesFilled,
			"no_filled":  noFilled,
		}
		c.recorder.Emit(ctx, ev)
		return
	}

	// One-sided or mismatched fills: flatten the stray shares.
	tokenID, entry := opp.YesTokenID, opp.YesAsk
	excess := yesFilled - noFilled
	if noFilled > yesFilled {
		tokenID, entry = opp.NoTokenID, opp.NoAsk
		excess = noFilled - yesFilled
	}

	exit, flattened := c.flattenLeg(ctx, tokenID, excess, entry, cfg)
	if !flattened {
		reason := fmt.Sprintf("failed to flatten %.0f shares of %s", excess, tokenID)
		c.guard.Halt(reason)
		c.recorder.Emit(ctx, marketEvent(domain.EventError, cfg.Mode, opp, reason))
		c.recorder.Emit(ctx, marketEvent(domain.EventHalt, cfg.Mode, opp, "halted: "+reason))
		return
	}

	loss := (entry - exit) * excess
	if loss < 0 {
		loss = 0
	}
	c.guard.RecordFlattenLoss(loss)
	if rest := cost - loss; rest > 0 {
		// The matched portion (if any) still closes at the guaranteed $1; the
		// rest of the reservation was never spent.
		proceeds := math.Max(matched, rest)
		c.guard.RecordTradeClosed(rest, proceeds)
	}

	ev := marketEvent(domain.EventPartialFillFlattened, cfg.Mode, opp, fmt.Sprintf("flattened %.0f shares at %.4f", excess, exit))
	ev.Meta = map[string]any{
		"yes_filled": yesFilled,
		"no_filled":  noFilled,
		"exit_price": exit,
		"loss_usd":   loss,
	}
	c.recorder.Emit(ctx, ev)
}

// flattenLeg sells stray shares at the live best bid, falling back to a
// discounted entry price when no bid is available.
func (c *Coordinator) flattenLeg(ctx context.Context, tokenID string, shares, entry float64, cfg domain.BotConfig) (float64, bool) {
	exit := entry * flattenDiscount
	if c.quoter != nil {
		if bid, err := c.quoter.BestBid(ctx, tokenID); err == nil && bid > 0 {
			exit = bid
		} else if err != nil {
			c.logger.Warn("no live bid for flatten; using discounted entry", "token_id", tokenID, "error", err)
		}
	}

	filled, err := c.bkr.FlattenPosition(ctx, tokenID, shares, exit, cfg)
	if err != nil {
		c.logger.Error("flatten order failed", "token_id", tokenID, "error", err)
		return exit, false
	}
	return exit, filled
}

// releaseNetZero releases a reservation without touching the loss accounting.
func (c *Coordinator) releaseNetZero(cost float64) {
	c.guard.RecordTradeClosed(cost, cost)
}

func marketEvent(kind domain.EventKind, mode domain.TradingMode, opp domain.ArbOpportunity, msg string) domain.BotEvent {
	return domain.BotEvent{
		Mode:          mode,
		Kind:          kind,
		MarketID:      opp.MarketID,
		MarketTitle:   opp.MarketTitle,
		YesAsk:        opp.YesAsk,
		NoAsk:         opp.NoAsk,
		Sum:           opp.Sum,
		EffectiveEdge: opp.EffectiveEdge,
		Shares:        opp.Shares,
		Message:       msg,
	}
}

func heartbeatMeta(st risk.State) map[string]any {
	return map[string]any{
		"open_usd":         st.OpenUsd,
		"daily_loss_usd":   st.DailyLossUsd,
		"trades_this_hour": st.TradesThisHour,
		"halted":           st.Halted,
	}
}
