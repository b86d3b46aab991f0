package domain

import "time"

// Direction names which venue buys YES and which buys NO.
type Direction string

const (
	DirectionAYesBNo Direction = "a_yes_b_no"
	DirectionBYesANo Direction = "b_yes_a_no"
)

// RejectReason classifies why an opportunity did not pass detection,
// sizing or gating. An empty reason means it passed.
type RejectReason string

const (
	RejectNone                  RejectReason = ""
	RejectInvalidPrice          RejectReason = "invalid_price"
	RejectInsufficientLiquidity RejectReason = "insufficient_liquidity"
	RejectBelowThreshold        RejectReason = "below_threshold"
	RejectTooSlow               RejectReason = "too_slow"
	RejectCriticalRisk          RejectReason = "critical_risk"
	RejectBelowMinSize          RejectReason = "below_min_size"
	RejectExposureLimit         RejectReason = "exposure_limit"
	RejectMaxPositions          RejectReason = "max_positions"
	RejectBreakerOpen           RejectReason = "breaker_open"
)

// Leg describes one side of a two-venue arbitrage at detection time.
type Leg struct {
	Venue    string
	MarketID string
	Outcome  Outcome
	Price    float64 // ask
	Bid      float64
	Depth    float64 // USD
}

// Opportunity is the audited result of evaluating one matched pair. It is
// created once and only ever gains a risk assessment and a trade reference.
type Opportunity struct {
	ID         string
	PairID     string
	EventKey   string
	Question   string
	Similarity float64
	Direction  Direction
	YesLeg     Leg
	NoLeg      Leg

	RawEdge      float64
	FeeFraction  float64
	Slippage     float64
	NetEdge      float64
	DaysToRes    int // -1 when unknown
	Annualized   float64
	Notional     float64
	ExpectedPnL  float64
	Passes       bool
	Reason       RejectReason
	ReasonDetail string

	Risk    *RiskAssessment
	TradeID string

	DetectedAt time.Time
}

// Reject marks the opportunity as failed. The first reason wins.
func (o *Opportunity) Reject(reason RejectReason, detail string) {
	if o.Reason != RejectNone {
		return
	}
	o.Passes = false
	o.Reason = reason
	o.ReasonDetail = detail
}
