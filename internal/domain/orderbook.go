package domain

// OrderbookLevel is a single (price, size) level of an order book side.
type OrderbookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// TokenBook is the raw two-sided book for one outcome token as returned by
// the venue. Levels arrive unsorted; use BestAsk/BestBid to resolve the top
// of book.
type TokenBook struct {
	Bids []OrderbookLevel `json:"bids"`
	Asks []OrderbookLevel `json:"asks"`
}

// BestAsk returns the lowest-priced ask level, or false when the side is empty.
func (b TokenBook) BestAsk() (OrderbookLevel, bool) {
	if len(b.Asks) == 0 {
		return OrderbookLevel{}, false
	}
	best := b.Asks[0]
	for _, lvl := range b.Asks[1:] {
		if lvl.Price < best.Price {
			best = lvl
		}
	}
	return best, true
}

// BestBid returns the highest-priced bid level, or false when the side is empty.
func (b TokenBook) BestBid() (OrderbookLevel, bool) {
	if len(b.Bids) == 0 {
		return OrderbookLevel{}, false
	}
	best := b.Bids[0]
	for _, lvl := range b.Bids[1:] {
		if lvl.Price > best.Price {
			best = lvl
		}
	}
	return best, true
}

// MarketOrderbook is a per-market top-of-book snapshot across both outcomes.
// It is created fresh each fetch and discarded after evaluation. Nil level
// pointers mean that side of the book was empty.
type MarketOrderbook struct {
	MarketID    string
	Title       string
	ConditionID string
	YesTokenID  string
	NoTokenID   string

	YesBestAsk *OrderbookLevel
	YesBestBid *OrderbookLevel
	NoBestAsk  *OrderbookLevel
	NoBestBid  *OrderbookLevel
}
