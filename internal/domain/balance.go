package domain

import "time"

// BalanceSnapshot is a point-in-time view of capital across venues.
type BalanceSnapshot struct {
	Balances      map[string]float64
	Total         float64
	Locked        float64
	Available     float64
	OpenPositions int
	DailyPnL      float64
	TakenAt       time.Time
}

// PerformanceSummary aggregates activity over a window.
type PerformanceSummary struct {
	Since               time.Time
	OpportunitiesSeen   int
	OpportunitiesPassed int
	TradesByStatus      map[TradeStatus]int
	RealizedPnL         float64
	FeesUSD             float64
	CapitalDeployed     float64
}

// Trades returns the number of trades over all statuses.
func (s PerformanceSummary) Trades() int {
	n := 0
	for _, c := range s.TradesByStatus {
		n += c
	}
	return n
}
