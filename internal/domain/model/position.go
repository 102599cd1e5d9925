package model

import "github.com/google/uuid"

// Side of a position, derived from the sign of its quantity.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// SideOf maps a signed quantity to its side.
func SideOf(qty float64) Side {
	if qty < 0 {
		return SideShort
	}
	return SideLong
}

// PositionUpdate is one inbound snapshot for one instrument: the post-update
// quantity plus whatever valuation fields the feed had at hand. Zero-valued
// optional fields simply mean "not reported".
type PositionUpdate struct {
	InstrumentID string  `json:"instrument_id"`
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AvgCost      float64 `json:"avg_cost"`
	MarketPrice  float64 `json:"market_price"`
	MarketValue  float64 `json:"market_value"`
	RealizedPnL  float64 `json:"realized_pnl"`
}

// EventKind classifies a position transition.
type EventKind string

const (
	EventOpened   EventKind = "OPENED"
	EventClosed   EventKind = "CLOSED"
	EventAdded    EventKind = "ADDED"
	EventReduced  EventKind = "REDUCED"
	EventReversed EventKind = "REVERSED"
)

// PositionEvent is a classified transition of one instrument's quantity.
type PositionEvent struct {
	ID           uuid.UUID
	Ts           int64 // unix seconds
	Kind         EventKind
	InstrumentID string
	Symbol       string
	PrevQuantity float64
	Quantity     float64
	Side         Side // side of the position the event describes
	RealizedPnL  float64
	AvgCost      float64
	MarketPrice  float64
	MarketValue  float64
}
