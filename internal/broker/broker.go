// Package broker abstracts order execution. The coordinator drives a Broker
// without knowing whether fills come from the live venue or the paper
// simulator; the Factory swaps implementations when the trading mode changes.
package broker

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// Broker places paired arbitrage orders and flattens stray single-sided
// positions.
type Broker interface {
	// Mode identifies the trading mode this broker serves.
	Mode() domain.TradingMode

	// PlaceArbOrders submits both legs of an arbitrage concurrently and
	// returns the per-leg results. Transport failures are embedded in the leg
	// results rather than returned, so the caller always sees both legs.
	PlaceArbOrders(ctx context.Context, opp domain.ArbOpportunity, cfg domain.BotConfig) (domain.PairResult, error)

	// FlattenPosition sells shares of tokenID at exitPrice to unwind a
	// one-sided fill. It reports whether the flatten order filled.
	FlattenPosition(ctx context.Context, tokenID string, shares float64, exitPrice float64, cfg domain.BotConfig) (bool, error)
}

// Factory builds the broker for a trading mode. The coordinator calls it on
// every mode change observed in the dynamic config.
type Factory func(mode domain.TradingMode) (Broker, error)

// NewFactory wires the standard pairing: paper mode gets the simulator, live
// mode gets the venue-backed broker.
func NewFactory(sim *SimBroker, live *LiveBroker) Factory {
	return func(mode domain.TradingMode) (Broker, error) {
		switch mode {
		case domain.ModePaper:
			return sim, nil
		case domain.ModeLive:
			if live == nil {
				return nil, fmt.Errorf("broker: live mode requested but live broker is not configured")
			}
			return live, nil
		default:
			return nil, fmt.Errorf("broker: unknown trading mode %q", mode)
		}
	}
}
