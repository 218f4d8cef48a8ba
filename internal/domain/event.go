package domain

import "time"

// EventKind classifies a bot event.
type EventKind string

const (
	EventHeartbeat            EventKind = "HEARTBEAT"
	EventOpportunity          EventKind = "OPPORTUNITY"
	EventOrderSubmitted       EventKind = "ORDER_SUBMITTED"
	EventFilled               EventKind = "FILLED"
	EventPartialFillFlattened EventKind = "PARTIAL_FILL_FLATTENED"
	EventSkipped              EventKind = "SKIPPED"
	EventHalt                 EventKind = "HALT"
	EventError                EventKind = "ERROR"
)

// BotEvent is one record in the append-only event sink. Market and pricing
// fields are populated only for events tied to a specific market.
type BotEvent struct {
	ID    string      `json:"id"`
	RunID string      `json:"run_id"`
	TS    time.Time   `json:"ts"`
	Mode  TradingMode `json:"mode"`
	Kind  EventKind   `json:"kind"`

	MarketID    string `json:"market_id,omitempty"`
	MarketTitle string `json:"market_title,omitempty"`

	YesAsk        float64 `json:"yes_ask,omitempty"`
	NoAsk         float64 `json:"no_ask,omitempty"`
	Sum           float64 `json:"sum,omitempty"`
	EffectiveEdge float64 `json:"effective_edge,omitempty"`
	Shares        int     `json:"shares,omitempty"`

	Message string         `json:"message,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}
