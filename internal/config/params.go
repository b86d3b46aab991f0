package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"
)

// Params is the immutable strategy snapshot consumed by one poll cycle.
// Callers receive it by value; its maps are never mutated after creation.
type Params struct {
	Trading   TradingConfig   `json:"trading"`
	Fees      FeesConfig      `json:"fees"`
	Capital   CapitalConfig   `json:"capital"`
	Risk      RiskConfig      `json:"risk"`
	Breaker   BreakerConfig   `json:"breaker"`
	Matcher   MatcherConfig   `json:"matcher"`
	Execution ExecutionConfig `json:"execution"`
}

// Params returns the strategy snapshot of the loaded configuration.
func (c Config) Params() Params {
	return Params{
		Trading:   c.Trading,
		Fees:      c.Fees,
		Capital:   c.Capital,
		Risk:      c.Risk,
		Breaker:   c.Breaker,
		Matcher:   c.Matcher,
		Execution: c.Execution,
	}.clone()
}

func (p Params) clone() Params {
	out := p
	out.Fees.VenueFeePct = maps.Clone(p.Fees.VenueFeePct)
	out.Fees.VenueFixedCostUSD = maps.Clone(p.Fees.VenueFixedCostUSD)
	out.Risk.VenueRegulatory = maps.Clone(p.Risk.VenueRegulatory)
	return out
}

// FillWait is how long the executor waits before querying leg status.
func (p Params) FillWait() time.Duration { return p.Execution.FillWait.Duration }

// StatusTimeout bounds a single order status query.
func (p Params) StatusTimeout() time.Duration { return p.Execution.StatusTimeout.Duration }

// OrderTimeout bounds a single order placement.
func (p Params) OrderTimeout() time.Duration { return p.Execution.OrderTimeout.Duration }

// UnwindTimeout bounds the cancel and unwind of a failed leg.
func (p Params) UnwindTimeout() time.Duration { return p.Execution.UnwindTimeout.Duration }

// DedupCooldown is how long an executed pair is ignored.
func (p Params) DedupCooldown() time.Duration { return p.Execution.DedupCooldown.Duration }

// Validate returns every problem found in the snapshot.
func (p Params) Validate() []string {
	var errs []string

	t := p.Trading
	if t.ThresholdSpread < 0 {
		errs = append(errs, "trading: threshold_spread must be >= 0")
	}
	if t.MinTradeSizeUSD < 0 {
		errs = append(errs, "trading: min_trade_size_usd must be >= 0")
	}
	if t.MaxTradeSizePct <= 0 || t.MaxTradeSizePct > 1 {
		errs = append(errs, "trading: max_trade_size_pct must be in (0,1]")
	}
	if t.SlippageTolerance < 0 {
		errs = append(errs, "trading: slippage_tolerance must be >= 0")
	}
	if t.MaxExecutionsPerCycle < 0 {
		errs = append(errs, "trading: max_executions_per_cycle must be >= 0")
	}

	if p.Fees.KalshiFeePct < 0 || p.Fees.PolymarketFeePct < 0 || p.Fees.BlockchainCostUSD < 0 {
		errs = append(errs, "fees: fees and costs must be >= 0")
	}
	for venue, v := range p.Fees.VenueFeePct {
		if v < 0 || v >= 1 {
			errs = append(errs, fmt.Sprintf("fees: venue_fee_pct[%s] must be in [0,1)", venue))
		}
	}

	if p.Capital.MaxDaysToResolution <= 0 {
		errs = append(errs, "capital: max_days_to_resolution must be > 0")
	}
	if p.Capital.MaxTotalExposurePct <= 0 || p.Capital.MaxTotalExposurePct > 1 {
		errs = append(errs, "capital: max_total_exposure_pct must be in (0,1]")
	}
	if p.Capital.MaxDepthFraction <= 0 || p.Capital.MaxDepthFraction > 1 {
		errs = append(errs, "capital: max_depth_fraction must be in (0,1]")
	}

	if p.Risk.MaxOpenPositions < 1 {
		errs = append(errs, "risk: max_open_positions must be >= 1")
	}
	if p.Risk.MaxExposurePerEvent <= 0 || p.Risk.MaxExposurePerEvent > 1 {
		errs = append(errs, "risk: max_exposure_per_event must be in (0,1]")
	}
	w := p.Risk.Weights
	if w.Definition < 0 || w.Liquidity < 0 || w.Edge < 0 || w.Timing < 0 || w.Regulatory < 0 {
		errs = append(errs, "risk: weights must be >= 0")
	}
	if w.Sum() <= 0 {
		errs = append(errs, "risk: weights must not all be zero")
	}

	if p.Breaker.MaxDailyLossPct <= 0 || p.Breaker.MaxDailyLossPct >= 1 {
		errs = append(errs, "breaker: max_daily_loss_pct must be in (0,1)")
	}
	if p.Breaker.MaxDrawdownPct <= 0 || p.Breaker.MaxDrawdownPct >= 1 {
		errs = append(errs, "breaker: max_drawdown_pct must be in (0,1)")
	}
	if p.Breaker.ResetHour < 0 || p.Breaker.ResetHour > 23 {
		errs = append(errs, "breaker: reset_hour must be 0-23")
	}

	if p.Matcher.SimilarityThreshold <= 0 || p.Matcher.SimilarityThreshold > 1 {
		errs = append(errs, "matcher: similarity_threshold must be in (0,1]")
	}
	if p.Matcher.DateToleranceDays < 0 {
		errs = append(errs, "matcher: date_tolerance_days must be >= 0")
	}

	if p.Execution.FillWait.Duration < 0 || p.Execution.StatusTimeout.Duration <= 0 {
		errs = append(errs, "execution: fill_wait must be >= 0 and status_timeout > 0")
	}
	return errs
}

// Live holds the current Params snapshot. Updates replace the snapshot
// atomically and take effect when the poll loop next calls Snapshot.
type Live struct {
	cur atomic.Pointer[Params]
}

// NewLive creates a Live holder seeded with p.
func NewLive(p Params) *Live {
	l := &Live{}
	l.cur.Store(&p)
	return l
}

// Snapshot returns the current parameters.
func (l *Live) Snapshot() Params {
	return *l.cur.Load()
}

// Apply merges a JSON document shaped like Params over the current snapshot,
// validates the result and installs it. Fields absent from data are kept.
func (l *Live) Apply(data []byte) (Params, error) {
	next := l.Snapshot().clone()
	if err := json.Unmarshal(data, &next); err != nil {
		return Params{}, fmt.Errorf("config: decode override: %w", err)
	}
	if errs := next.Validate(); len(errs) > 0 {
		return Params{}, fmt.Errorf("config: invalid override:\n  - %s", strings.Join(errs, "\n  - "))
	}
	l.cur.Store(&next)
	return next, nil
}
