package domain

import "time"

// TradeStatus is the lifecycle state of an arbitrage execution.
type TradeStatus string

const (
	TradeStatusPending             TradeStatus = "pending"
	TradeStatusFilled              TradeStatus = "filled"
	TradeStatusPartialUnwound      TradeStatus = "partial_unwound"
	TradeStatusPartialUnwindFailed TradeStatus = "partial_unwind_failed"
	TradeStatusRejected            TradeStatus = "rejected"
	TradeStatusFailed              TradeStatus = "failed"
)

// LegFill records one leg of an executed trade.
type LegFill struct {
	Venue     string      `json:"venue"`
	MarketID  string      `json:"market_id"`
	Outcome   Outcome     `json:"outcome"`
	Price     float64     `json:"price"`
	Contracts float64     `json:"contracts"`
	OrderID   string      `json:"order_id,omitempty"`
	Status    OrderStatus `json:"status"`
	Filled    float64     `json:"filled"`
	AvgPrice  float64     `json:"avg_price"`
	FeeUSD    float64     `json:"fee_usd"`
	Error     string      `json:"error,omitempty"`
}

// Cost is the USD paid for the filled contracts.
func (l LegFill) Cost() float64 {
	return l.Filled * l.AvgPrice
}

// UnwindAction records a compensating order on a filled leg.
type UnwindAction struct {
	Venue    string      `json:"venue"`
	MarketID string      `json:"market_id"`
	Outcome  Outcome     `json:"outcome"`
	OrderID  string      `json:"order_id,omitempty"`
	Quantity float64     `json:"quantity"`
	Price    float64     `json:"price"`
	Status   OrderStatus `json:"status"`
	Proceeds float64     `json:"proceeds"`
	Error    string      `json:"error,omitempty"`
	At       time.Time   `json:"at"`
}

// Trade is the durable record of one attempted arbitrage.
type Trade struct {
	ID            string
	OpportunityID string
	EventKey      string
	YesLeg        LegFill
	NoLeg         LegFill
	Unwinds       []UnwindAction
	Capital       float64
	FeesUSD       float64
	RealizedPnL   float64
	Status        TradeStatus
	Error         string
	DryRun        bool
	StartedAt     time.Time
	CompletedAt   *time.Time
}
