// Package breaker implements the trading halt state machine. State is a
// plain value owned by the caller; Check reads it and Apply produces the
// next value.
package breaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ErrHalted is returned while the breaker is open.
var ErrHalted = errors.New("breaker: trading halted")

// Kind identifies an Update.
type Kind int

const (
	// Init seeds an empty state with the starting equity.
	Init Kind = iota
	// Settlement adds realized P&L from a finished trade.
	Settlement
	// Balance replaces equity with a fresh valuation.
	Balance
	// DailyReset starts a new trading day and clears a halt.
	DailyReset
	// ManualReset clears a halt on operator request.
	ManualReset
)

func (k Kind) String() string {
	switch k {
	case Init:
		return "init"
	case Settlement:
		return "settlement"
	case Balance:
		return "balance"
	case DailyReset:
		return "daily_reset"
	case ManualReset:
		return "manual_reset"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Update is one input to Apply.
type Update struct {
	Kind   Kind
	PnL    float64 // Settlement
	Equity float64 // Init, Balance
	At     time.Time
}

// Transition reports a status change caused by Apply.
type Transition int

const (
	NoChange Transition = iota
	Tripped
	Cleared
)

// Decision is the gate verdict for one cycle.
type Decision struct {
	Allowed bool
	Reason  string
}

// Err returns nil when trading is allowed and ErrHalted otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrHalted, d.Reason)
}

// Check is the gate read.
func Check(s domain.BreakerState) Decision {
	if s.Open() {
		return Decision{Allowed: false, Reason: s.HaltReason}
	}
	return Decision{Allowed: true}
}

// ResetDue reports whether the scheduled daily reset at resetHour UTC has
// passed since the state's trading day began.
func ResetDue(s domain.BreakerState, resetHour int, now time.Time) bool {
	now = now.UTC()
	boundary := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Before(boundary) {
		boundary = boundary.Add(-24 * time.Hour)
	}
	return s.DayStart.Before(boundary)
}

// Apply folds u into s. An open breaker stays open until DailyReset or
// ManualReset; it trips at most once per closed period.
func Apply(cfg config.BreakerConfig, s domain.BreakerState, u Update) (domain.BreakerState, Transition) {
	at := u.At.UTC()
	if s.Status == "" {
		s.Status = domain.BreakerClosed
	}

	switch u.Kind {
	case Init:
		if !s.DayStart.IsZero() {
			return s, NoChange
		}
		s.DayStart = at
		s.DayStartBalance = u.Equity
		s.Equity = u.Equity
		s.PeakEquity = u.Equity
		s.LastReset = at
		return s, NoChange

	case Settlement:
		s.Equity += u.PnL
		s.DailyPnL += u.PnL

	case Balance:
		s.Equity = u.Equity

	case DailyReset:
		wasOpen := s.Open()
		s.DayStart = at
		s.DayStartBalance = s.Equity
		s.DailyPnL = 0
		s.LastReset = at
		if wasOpen {
			s = resume(s)
			return s, Cleared
		}
		return s, NoChange

	case ManualReset:
		wasOpen := s.Open()
		s = resume(s)
		s.DayStart = at
		s.DayStartBalance = s.Equity
		s.PeakEquity = s.Equity
		s.Drawdown = 0
		s.DailyPnL = 0
		s.LastReset = at
		if wasOpen {
			return s, Cleared
		}
		return s, NoChange
	}

	if s.Equity > s.PeakEquity {
		s.PeakEquity = s.Equity
	}
	if s.PeakEquity > 0 {
		s.Drawdown = (s.PeakEquity - s.Equity) / s.PeakEquity
	}
	if s.Open() {
		return s, NoChange
	}

	if s.DayStartBalance > 0 {
		loss := s.DayStartBalance - s.Equity
		if loss >= cfg.MaxDailyLossPct*s.DayStartBalance {
			return trip(s, at, fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%",
				loss/s.DayStartBalance*100, cfg.MaxDailyLossPct*100)), Tripped
		}
	}
	if s.PeakEquity > 0 && s.Drawdown >= cfg.MaxDrawdownPct {
		return trip(s, at, fmt.Sprintf("drawdown %.2f%% reached limit %.2f%%",
			s.Drawdown*100, cfg.MaxDrawdownPct*100)), Tripped
	}
	return s, NoChange
}

func trip(s domain.BreakerState, at time.Time, reason string) domain.BreakerState {
	s.Status = domain.BreakerOpen
	s.HaltReason = reason
	s.HaltedAt = &at
	s.TotalHalts++
	return s
}

func resume(s domain.BreakerState) domain.BreakerState {
	s.Status = domain.BreakerClosed
	s.HaltReason = ""
	s.HaltedAt = nil
	return s
}
