package domain

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// LegStatus is the normalized outcome of one leg of a paired submission.
// TransportError is deliberately a distinct status: a failed round-trip is
// not evidence the order went unfilled.
type LegStatus string

const (
	LegFilled         LegStatus = "FILLED"
	LegPartial        LegStatus = "PARTIAL"
	LegUnfilled       LegStatus = "UNFILLED"
	LegTransportError LegStatus = "TRANSPORT_ERROR"
)

// OrderRequest is a single limit order to place with the venue.
type OrderRequest struct {
	TokenID string
	Side    Side
	Price   float64
	Shares  float64
}

// OrderResult is the normalized per-leg fill result produced by a broker.
// Err is set only when Status is LegTransportError.
type OrderResult struct {
	OrderID      string
	Status       LegStatus
	FilledShares float64
	AvgPrice     float64
	Err          error
}

// Filled reports whether the leg received any fill at all.
func (r OrderResult) Filled() bool {
	return r.Status == LegFilled || r.Status == LegPartial
}

// PairResult bundles the two legs of a paired arbitrage submission.
type PairResult struct {
	Yes OrderResult
	No  OrderResult
}

// TransportErr returns the first transport error across the pair, or nil.
func (p PairResult) TransportErr() error {
	if p.Yes.Status == LegTransportError {
		return p.Yes.Err
	}
	if p.No.Status == LegTransportError {
		return p.No.Err
	}
	return nil
}
