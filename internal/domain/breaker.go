package domain

import "time"

// BreakerStatus is the circuit breaker position.
type BreakerStatus string

const (
	BreakerClosed BreakerStatus = "CLOSED"
	BreakerOpen   BreakerStatus = "OPEN"
)

// BreakerState tracks realized performance since the last daily reset and
// whether trading is halted. It has a single owner, the poll loop.
type BreakerState struct {
	Status          BreakerStatus `json:"status"`
	DayStart        time.Time     `json:"day_start"`
	DayStartBalance float64       `json:"day_start_balance"`
	Equity          float64       `json:"equity"`
	PeakEquity      float64       `json:"peak_equity"`
	DailyPnL        float64       `json:"daily_pnl"`
	Drawdown        float64       `json:"drawdown"`
	HaltReason      string        `json:"halt_reason,omitempty"`
	HaltedAt        *time.Time    `json:"halted_at,omitempty"`
	TotalHalts      int           `json:"total_halts"`
	LastReset       time.Time     `json:"last_reset"`
}

// Open reports whether trading is halted.
func (s BreakerState) Open() bool {
	return s.Status == BreakerOpen
}
