package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/alanyoungcy/dutchbot/internal/domain"
)

// endCursor is the sentinel next_cursor value marking the final listing page.
const endCursor = "LTE="

// flexBool decodes a JSON value that may arrive as a bool, a string
// ("true"/"false"), or a number (0/1).
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// flexFloat decodes a JSON number that may arrive as a number or a string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// ---------------------------------------------------------------------------
// Market listing
// ---------------------------------------------------------------------------

// apiToken is one outcome token of a listed market.
type apiToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// apiMarket is one market as returned by GET /markets.
type apiMarket struct {
	ConditionID string     `json:"condition_id"`
	QuestionID  string     `json:"question_id"`
	Question    string     `json:"question"`
	Active      flexBool   `json:"active"`
	Closed      flexBool   `json:"closed"`
	Tokens      []apiToken `json:"tokens"`
}

// marketsResponse is the paginated envelope of GET /markets.
type marketsResponse struct {
	Limit      int         `json:"limit"`
	Count      int         `json:"count"`
	NextCursor string      `json:"next_cursor"`
	Data       []apiMarket `json:"data"`
}

// ToDomain converts an apiMarket into a domain.Market, resolving the YES and
// NO outcome tokens by outcome label.
func (m apiMarket) ToDomain() domain.Market {
	out := domain.Market{
		ID:          m.ConditionID,
		Title:       m.Question,
		ConditionID: m.ConditionID,
		Active:      bool(m.Active),
		Closed:      bool(m.Closed),
	}
	for _, tok := range m.Tokens {
		switch strings.ToUpper(strings.TrimSpace(tok.Outcome)) {
		case "YES", "UP":
			out.YesTokenID = tok.TokenID
		case "NO", "DOWN":
			out.NoTokenID = tok.TokenID
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Orderbook
// ---------------------------------------------------------------------------

// apiLevel is one (price, size) level; the venue serializes both as strings.
type apiLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// apiBook is the response of GET /book. Levels are NOT sorted.
type apiBook struct {
	Market string     `json:"market"`
	Bids   []apiLevel `json:"bids"`
	Asks   []apiLevel `json:"asks"`
}

// ToDomain converts the string-typed levels into a domain.TokenBook. Levels
// that fail to parse are dropped rather than failing the whole book.
func (b apiBook) ToDomain() domain.TokenBook {
	return domain.TokenBook{
		Bids: parseLevels(b.Bids),
		Asks: parseLevels(b.Asks),
	}
}

func parseLevels(in []apiLevel) []domain.OrderbookLevel {
	out := make([]domain.OrderbookLevel, 0, len(in))
	for _, lvl := range in {
		price, err1 := strconv.ParseFloat(lvl.Price, 64)
		size, err2 := strconv.ParseFloat(lvl.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, domain.OrderbookLevel{Price: price, Size: size})
	}
	return out
}

// ---------------------------------------------------------------------------
// Order submission
// ---------------------------------------------------------------------------

// apiOrderResponse normalizes the venue's order response, whose field naming
// varies across deployments (orderID vs orderId vs id, status vs state,
// matched sizes under several names). UnmarshalJSON resolves the aliases so
// callers see one shape.
type apiOrderResponse struct {
	Success    bool
	ErrorMsg   string
	OrderID    string
	Status     string
	MatchedQty float64
	AvgPrice   float64
}

func (r *apiOrderResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	str := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				var s string
				if err := json.Unmarshal(v, &s); err == nil && s != "" {
					return s
				}
			}
		}
		return ""
	}
	num := func(keys ...string) float64 {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				var f flexFloat
				if err := json.Unmarshal(v, &f); err == nil && f != 0 {
					return float64(f)
				}
			}
		}
		return 0
	}

	if v, ok := raw["success"]; ok {
		var b flexBool
		if err := json.Unmarshal(v, &b); err == nil {
			r.Success = bool(b)
		}
	} else {
		// Some response shapes omit success and signal failure via errorMsg.
		r.Success = str("errorMsg", "error") == ""
	}

	r.ErrorMsg = str("errorMsg", "error", "message")
	r.OrderID = str("orderID", "orderId", "id", "orderHash")
	r.Status = strings.ToLower(str("status", "state"))
	r.MatchedQty = num("matchedAmount", "matched_amount", "takingAmount", "size_matched", "sizeMatched")
	r.AvgPrice = num("avgPrice", "average_price", "price")
	return nil
}

// ToOrderResult maps the normalized response onto a domain.OrderResult for a
// request of the given size and limit price.
func (r apiOrderResponse) ToOrderResult(req domain.OrderRequest) domain.OrderResult {
	res := domain.OrderResult{OrderID: r.OrderID}

	if !r.Success {
		res.Status = domain.LegUnfilled
		return res
	}

	matched := r.MatchedQty
	price := r.AvgPrice
	if price == 0 {
		price = req.Price
	}

	switch {
	case r.Status == "matched" && (matched == 0 || matched >= req.Shares):
		res.Status = domain.LegFilled
		res.FilledShares = req.Shares
		res.AvgPrice = price
	case matched > 0 && matched < req.Shares:
		res.Status = domain.LegPartial
		res.FilledShares = matched
		res.AvgPrice = price
	case matched >= req.Shares && matched > 0:
		res.Status = domain.LegFilled
		res.FilledShares = req.Shares
		res.AvgPrice = price
	default:
		// Resting ("live", "delayed") or unmatched orders count as unfilled
		// for the pairing logic; the fill window has passed by the time the
		// caller classifies results.
		res.Status = domain.LegUnfilled
	}
	return res
}
