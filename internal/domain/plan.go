package domain

// PlanLeg is one sized order of a position plan.
type PlanLeg struct {
	Venue     string
	MarketID  string
	Outcome   Outcome
	Price     float64
	Bid       float64 // unwind price
	Notional  float64 // USD
	Contracts float64 // Notional / Price
}

// PositionPlan is the sized two-leg order set for one opportunity. Legs are
// sized for equal payout, so YesLeg.Contracts == NoLeg.Contracts.
type PositionPlan struct {
	OpportunityID  string
	PairID         string
	EventKey       string
	YesLeg         PlanLeg
	NoLeg          PlanLeg
	Capital        float64
	ExpectedPnL    float64
	RiskMultiplier float64
	Checks         []string
	Reason         RejectReason
	Detail         string
}

// Accepted reports whether the plan may be executed.
func (p PositionPlan) Accepted() bool {
	return p.Reason == RejectNone && p.Capital > 0
}
