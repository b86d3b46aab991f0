// Package detector turns matched market pairs into audited arbitrage
// opportunities net of fees, slippage and capital-velocity cost.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Detector evaluates matched pairs. It holds no state between calls.
type Detector struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Detector using the wall clock.
func New(logger *slog.Logger) *Detector {
	return &Detector{
		logger: logger.With(slog.String("component", "detector")),
		now:    time.Now,
	}
}

// WithClock returns a copy of d reading time from now.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	cp := *d
	cp.now = now
	return &cp
}

// Scan evaluates every pair. all holds one record per pair for the audit
// trail; passing holds those that cleared detection, best expected profit
// first.
func (d *Detector) Scan(ctx context.Context, p config.Params, bankroll float64, pairs []domain.MatchedPair) (all, passing []domain.Opportunity) {
	all = make([]domain.Opportunity, 0, len(pairs))
	for _, pair := range pairs {
		opp := d.Evaluate(p, bankroll, pair)
		all = append(all, opp)
		if opp.Passes {
			passing = append(passing, opp)
			d.logger.InfoContext(ctx, "opportunity detected",
				slog.String("opp_id", opp.ID),
				slog.String("pair", opp.PairID),
				slog.String("direction", string(opp.Direction)),
				slog.Float64("raw_edge", opp.RawEdge),
				slog.Float64("net_edge", opp.NetEdge),
				slog.Float64("expected_pnl", opp.ExpectedPnL),
				slog.Int("days", opp.DaysToRes),
			)
			continue
		}
		d.logger.DebugContext(ctx, "opportunity rejected",
			slog.String("pair", opp.PairID),
			slog.String("reason", string(opp.Reason)),
			slog.String("detail", opp.ReasonDetail),
		)
	}
	sort.SliceStable(passing, func(i, j int) bool {
		return passing[i].ExpectedPnL > passing[j].ExpectedPnL
	})
	return all, passing
}

// Evaluate prices both directions of pair, keeps the one with the larger
// raw edge and applies the rejection rules in order: invalid_price,
// insufficient_liquidity, below_threshold, too_slow. The first failing rule
// is recorded.
func (d *Detector) Evaluate(p config.Params, bankroll float64, pair domain.MatchedPair) domain.Opportunity {
	now := d.now().UTC()
	t := p.Trading
	notional := bankroll * t.MaxTradeSizePct

	opp := domain.Opportunity{
		ID:         uuid.NewString(),
		PairID:     pair.ID(),
		EventKey:   pair.EventKey(),
		Question:   pair.A.Question,
		Similarity: pair.Similarity,
		Notional:   notional,
		DaysToRes:  daysToResolution(pair, now),
		Passes:     true,
		DetectedAt: now,
	}

	dir, yesQ, noQ, err := chooseDirection(pair)
	opp.Direction = dir
	opp.YesLeg = legFor(yesQ, domain.OutcomeYes)
	opp.NoLeg = legFor(noQ, domain.OutcomeNo)
	if err != nil {
		opp.Reject(domain.RejectInvalidPrice, err.Error())
		return opp
	}

	yes, no := opp.YesLeg, opp.NoLeg
	opp.RawEdge = 1 - (yes.Price + no.Price)
	opp.FeeFraction = FeeFraction(p.Fees, t.SafetyBufferPct,
		LegPrice{Venue: yes.Venue, Price: yes.Price},
		LegPrice{Venue: no.Venue, Price: no.Price},
		notional)
	opp.Slippage = estimateSlippage(t, yesQ.Asks(domain.OutcomeYes), noQ.Asks(domain.OutcomeNo), yes, no, notional)
	opp.NetEdge = opp.RawEdge - opp.FeeFraction - opp.Slippage
	opp.Annualized = annualize(opp.NetEdge, opp.DaysToRes)
	opp.ExpectedPnL = notional * opp.NetEdge

	if yes.Depth < t.TargetLiquidityDepth || no.Depth < t.TargetLiquidityDepth {
		opp.Reject(domain.RejectInsufficientLiquidity, fmt.Sprintf(
			"depth %.0f/%.0f below target_liquidity_depth %.0f", yes.Depth, no.Depth, t.TargetLiquidityDepth))
	}
	if math.IsNaN(opp.NetEdge) || opp.NetEdge <= 0 || opp.NetEdge < t.ThresholdSpread {
		opp.Reject(domain.RejectBelowThreshold, fmt.Sprintf(
			"net edge %.4f (raw %.4f, fees %.4f, slippage %.4f) below threshold_spread %.4f",
			opp.NetEdge, opp.RawEdge, opp.FeeFraction, opp.Slippage, t.ThresholdSpread))
	}
	if opp.DaysToRes > p.Capital.MaxDaysToResolution && opp.NetEdge <= p.Capital.HighReturnThreshold {
		opp.Reject(domain.RejectTooSlow, fmt.Sprintf(
			"%d days to resolution exceeds %d and net edge %.4f is not above high_return_threshold %.4f",
			opp.DaysToRes, p.Capital.MaxDaysToResolution, opp.NetEdge, p.Capital.HighReturnThreshold))
	}
	return opp
}

type direction struct {
	dir     domain.Direction
	yes, no *domain.MarketQuote
}

// chooseDirection picks the complementary YES/NO combination with the
// larger raw edge among those with valid prices.
func chooseDirection(pair domain.MatchedPair) (domain.Direction, *domain.MarketQuote, *domain.MarketQuote, error) {
	dirs := []direction{
		{dir: domain.DirectionAYesBNo, yes: &pair.A, no: &pair.B},
		{dir: domain.DirectionBYesANo, yes: &pair.B, no: &pair.A},
	}

	var best *direction
	var firstErr error
	for i := range dirs {
		d := &dirs[i]
		err := errors.Join(
			priceErr(d.yes, domain.OutcomeYes),
			priceErr(d.no, domain.OutcomeNo),
		)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if best == nil || rawEdge(d) > rawEdge(best) {
			best = d
		}
	}
	if best == nil {
		return dirs[0].dir, dirs[0].yes, dirs[0].no, firstErr
	}
	return best.dir, best.yes, best.no, nil
}

func rawEdge(d *direction) float64 {
	return 1 - (d.yes.Ask(domain.OutcomeYes) + d.no.Ask(domain.OutcomeNo))
}

func priceErr(q *domain.MarketQuote, o domain.Outcome) error {
	if err := domain.ValidatePrice(q.Ask(o)); err != nil {
		return fmt.Errorf("%s %s ask: %w", q.Key(), o, err)
	}
	return nil
}

func legFor(q *domain.MarketQuote, o domain.Outcome) domain.Leg {
	depth := q.Depth
	if depth <= 0 {
		depth = q.Asks(o).Depth()
	}
	return domain.Leg{
		Venue:    q.Venue,
		MarketID: q.MarketID,
		Outcome:  o,
		Price:    q.Ask(o),
		Bid:      q.Bid(o),
		Depth:    depth,
	}
}

// estimateSlippage returns the expected price impact of both legs as a
// fraction of total notional.
func estimateSlippage(t config.TradingConfig, yesAsks, noAsks domain.Ladder, yes, no domain.Leg, notional float64) float64 {
	sum := yes.Price + no.Price
	if sum <= 0 || notional <= 0 {
		return 0
	}
	var total float64
	for _, l := range []struct {
		leg    domain.Leg
		ladder domain.Ladder
	}{{yes, yesAsks}, {no, noAsks}} {
		share := l.leg.Price / sum
		legNotional := notional * share
		frac := staticSlippage(t.SlippageTolerance, legNotional, l.leg.Depth)
		if t.WalkBook {
			if w, ok := walkSlippage(l.ladder, t.SlippageTolerance, legNotional); ok {
				frac = w
			}
		}
		total += share * frac
	}
	return total
}

// daysToResolution uses the earlier known end date of the two quotes, or -1
// when neither is known.
func daysToResolution(pair domain.MatchedPair, now time.Time) int {
	a := pair.A.DaysToResolution(now)
	b := pair.B.DaysToResolution(now)
	switch {
	case a < 0:
		return b
	case b < 0:
		return a
	}
	return min(a, b)
}

func annualize(net float64, days int) float64 {
	if days < 1 {
		return net
	}
	return net * 365 / float64(days)
}
