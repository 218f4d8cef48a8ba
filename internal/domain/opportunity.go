package domain

// ArbOpportunity is a qualifying dutch-book mispricing derived from a
// MarketOrderbook snapshot: both asks together price the guaranteed $1
// payoff below 1 − feeBuffer. Returned only when the effective edge clears
// the configured minimum and the sized cost fits under the per-trade cap.
type ArbOpportunity struct {
	MarketID    string
	MarketTitle string
	YesTokenID  string
	NoTokenID   string

	YesAsk     float64
	NoAsk      float64
	YesAskSize float64
	NoAskSize  float64

	// Sum is YesAsk + NoAsk. RawEdge is 1 − Sum; EffectiveEdge subtracts the
	// fee buffer.
	Sum           float64
	RawEdge       float64
	EffectiveEdge float64

	// Shares is the per-leg size, floored. EstimatedUsdCost is Sum × Shares.
	Shares           int
	EstimatedUsdCost float64
}
