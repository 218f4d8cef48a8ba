// Package domain holds the core data model shared by every layer of the bot:
// markets, orderbooks, opportunities, order results, bot configuration, and
// the event/run records persisted for observability.
package domain

// Market is a binary-outcome market discovered from the venue's listing
// endpoint. YesTokenID and NoTokenID identify the two outcome tokens on the
// order book.
type Market struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ConditionID string `json:"condition_id"`
	YesTokenID  string `json:"yes_token_id"`
	NoTokenID   string `json:"no_token_id"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
}

// Tradeable reports whether the market has both outcome tokens and is open.
func (m Market) Tradeable() bool {
	return m.Active && !m.Closed && m.YesTokenID != "" && m.NoTokenID != ""
}

// MarketPage is one page of the venue's paginated market listing. NextCursor
// is empty once the final page has been consumed.
type MarketPage struct {
	Markets    []Market
	NextCursor string
}
