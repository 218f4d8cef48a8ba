package scanner

import (
	"math"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// Evaluate inspects a top-of-book snapshot for a dutch-book arbitrage: buying
// both outcomes at their asks for less than the guaranteed $1 payoff, net of
// the fee buffer. It is a pure function of its inputs.
//
// Sizing: shares = floor(min(yesAskSize, noAskSize, minShares*10)), rejected
// when below minShares; cost = sum * shares, rejected above maxUsdPerTrade.
func Evaluate(book domain.MarketOrderbook, cfg domain.BotConfig) (domain.ArbOpportunity, bool) {
	if book.YesBestAsk == nil || book.NoBestAsk == nil {
		return domain.ArbOpportunity{}, false
	}

	yesAsk := book.YesBestAsk.Price
	noAsk := book.NoBestAsk.Price
	if yesAsk <= 0 || noAsk <= 0 {
		return domain.ArbOpportunity{}, false
	}

	sum := yesAsk + noAsk
	rawEdge := 1.0 - sum
	effectiveEdge := rawEdge - cfg.FeeBuffer
	if effectiveEdge < cfg.MinEdge {
		return domain.ArbOpportunity{}, false
	}

	// Size to the thinner ask, capped at 10x the minimum clip.
	maxClip := float64(cfg.MinShares) * 10
	shares := int(math.Floor(math.Min(math.Min(book.YesBestAsk.Size, book.NoBestAsk.Size), maxClip)))
	if shares < cfg.MinShares {
		return domain.ArbOpportunity{}, false
	}

	cost := sum * float64(shares)
	if cost > cfg.MaxUsdPerTrade {
		return domain.ArbOpportunity{}, false
	}

	return domain.ArbOpportunity{
		MarketID:         book.MarketID,
		MarketTitle:      book.Title,
		YesTokenID:       book.YesTokenID,
		NoTokenID:        book.NoTokenID,
		YesAsk:           yesAsk,
		NoAsk:            noAsk,
		YesAskSize:       book.YesBestAsk.Size,
		NoAskSize:        book.NoBestAsk.Size,
		Sum:              sum,
		RawEdge:          rawEdge,
		EffectiveEdge:    effectiveEdge,
		Shares:           shares,
		EstimatedUsdCost: cost,
	}, true
}
