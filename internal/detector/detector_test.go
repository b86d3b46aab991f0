package detector_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/detector"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

var clock = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newDetector() *detector.Detector {
	return detector.New(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(func() time.Time { return clock })
}

func params() config.Params {
	cfg := config.Defaults()
	return cfg.Params()
}

func inDays(n int) *time.Time {
	t := clock.Add(time.Duration(n) * 24 * time.Hour)
	return &t
}

// pair builds a kalshi/polymarket pair. Unused sides get prices that make
// the reverse direction unattractive.
func pair(aYes, aNo, bYes, bNo, depthA, depthB float64, end *time.Time) domain.MatchedPair {
	return domain.MatchedPair{
		A: domain.MarketQuote{
			Venue: domain.VenueKalshi, MarketID: "K-1", Question: "Will X happen?",
			YesAsk: aYes, NoAsk: aNo, Depth: depthA, EndDate: end,
		},
		B: domain.MarketQuote{
			Venue: domain.VenuePolymarket, MarketID: "0xabc", Question: "X happens?",
			YesAsk: bYes, NoAsk: bNo, Depth: depthB, EndDate: end,
		},
		Similarity: 0.95,
	}
}

func TestEvaluate_ThinEdgeRejectedCitingThreshold(t *testing.T) {
	p := params()
	p.Fees.KalshiFeePct = 0.005
	p.Fees.PolymarketFeePct = 0.02
	p.Trading.ThresholdSpread = 0.01

	opp := newDetector().Evaluate(p, 100000, pair(0.48, 0.53, 0.50, 0.51, 50000, 100000, inDays(10)))

	assert.Equal(t, domain.DirectionAYesBNo, opp.Direction)
	assert.InDelta(t, 0.01, opp.RawEdge, 1e-9)
	assert.InDelta(t, 0.012727+0.001, opp.FeeFraction, 1e-5)
	assert.Less(t, opp.NetEdge, 0.01)
	assert.False(t, opp.Passes)
	assert.Equal(t, domain.RejectBelowThreshold, opp.Reason)
	assert.Contains(t, opp.ReasonDetail, "threshold_spread 0.0100")
}

func TestEvaluate_CombinedPriceBelowOneStillLosesToFees(t *testing.T) {
	p := params()
	p.Fees.KalshiFeePct = 0.005
	p.Fees.PolymarketFeePct = 0.02

	opp := newDetector().Evaluate(p, 260000, pair(0.063, 0.95, 0.10, 0.92, 50000, 100000, inDays(5)))

	assert.InDelta(t, 0.017, opp.RawEdge, 1e-9)
	assert.Less(t, opp.NetEdge, 0.0)
	assert.False(t, opp.Passes)
	assert.Equal(t, domain.RejectBelowThreshold, opp.Reason)
}

func TestEvaluate_Passes(t *testing.T) {
	opp := newDetector().Evaluate(params(), 10000, pair(0.40, 0.62, 0.45, 0.55, 10000, 10000, inDays(10)))

	require.True(t, opp.Passes, opp.ReasonDetail)
	assert.Equal(t, domain.RejectNone, opp.Reason)
	assert.Equal(t, domain.VenueKalshi, opp.YesLeg.Venue)
	assert.Equal(t, domain.OutcomeYes, opp.YesLeg.Outcome)
	assert.Equal(t, domain.VenuePolymarket, opp.NoLeg.Venue)
	assert.InDelta(t, 500, opp.Notional, 1e-9)
	assert.InDelta(t, 0.0254, opp.NetEdge, 1e-3)
	assert.InDelta(t, opp.NetEdge*500, opp.ExpectedPnL, 1e-9)
	assert.Equal(t, 10, opp.DaysToRes)
	assert.InDelta(t, opp.NetEdge*36.5, opp.Annualized, 1e-9)
	assert.NotEmpty(t, opp.ID)
	assert.Equal(t, "kalshi:K-1|polymarket:0xabc", opp.PairID)
}

func TestEvaluate_PicksBetterDirection(t *testing.T) {
	opp := newDetector().Evaluate(params(), 10000, pair(0.60, 0.35, 0.55, 0.45, 10000, 10000, inDays(10)))

	assert.Equal(t, domain.DirectionBYesANo, opp.Direction)
	assert.Equal(t, domain.VenuePolymarket, opp.YesLeg.Venue)
	assert.Equal(t, domain.VenueKalshi, opp.NoLeg.Venue)
	assert.InDelta(t, 0.10, opp.RawEdge, 1e-9)
	assert.True(t, opp.Passes, opp.ReasonDetail)
}

func TestEvaluate_InvalidPrice(t *testing.T) {
	opp := newDetector().Evaluate(params(), 10000, pair(math.NaN(), 0.5, 0, 1.2, 10000, 10000, nil))
	assert.False(t, opp.Passes)
	assert.Equal(t, domain.RejectInvalidPrice, opp.Reason)

	// A broken side does not hide a valid reverse direction.
	opp = newDetector().Evaluate(params(), 10000, pair(0, 0.40, 0.45, 0, 10000, 10000, inDays(3)))
	assert.Equal(t, domain.DirectionBYesANo, opp.Direction)
	assert.NotEqual(t, domain.RejectInvalidPrice, opp.Reason)
}

func TestEvaluate_LiquidityCheckedBeforeThreshold(t *testing.T) {
	opp := newDetector().Evaluate(params(), 10000, pair(0.50, 0.60, 0.55, 0.52, 1000, 10000, inDays(3)))
	assert.Equal(t, domain.RejectInsufficientLiquidity, opp.Reason)
	assert.Contains(t, opp.ReasonDetail, "target_liquidity_depth")
}

func TestEvaluate_CapitalVelocity(t *testing.T) {
	d := newDetector()

	slow := d.Evaluate(params(), 10000, pair(0.40, 0.62, 0.45, 0.55, 10000, 10000, inDays(90)))
	assert.Equal(t, domain.RejectTooSlow, slow.Reason)

	rich := d.Evaluate(params(), 10000, pair(0.40, 0.62, 0.45, 0.40, 10000, 10000, inDays(90)))
	assert.True(t, rich.Passes, rich.ReasonDetail)
	assert.Greater(t, rich.NetEdge, 0.05)

	unknown := d.Evaluate(params(), 10000, pair(0.40, 0.62, 0.45, 0.55, 10000, 10000, nil))
	assert.True(t, unknown.Passes)
	assert.Equal(t, -1, unknown.DaysToRes)
	assert.Equal(t, unknown.NetEdge, unknown.Annualized)
}

func TestEvaluate_NonPositiveNetNeverPasses(t *testing.T) {
	p := params()
	p.Trading.ThresholdSpread = 0
	p.Trading.TargetLiquidityDepth = 0
	d := newDetector()

	for yes := 0.05; yes < 1; yes += 0.05 {
		for no := 0.05; no < 1; no += 0.05 {
			opp := d.Evaluate(p, 10000, pair(yes, 0.99, 0.99, no, 10000, 10000, inDays(1)))
			if opp.NetEdge <= 0 {
				assert.False(t, opp.Passes, "yes=%.2f no=%.2f net=%.4f", yes, no, opp.NetEdge)
			}
		}
	}
}

func TestEvaluate_WalkBookCostsMoreOnThinLadder(t *testing.T) {
	p := params()
	pr := pair(0.40, 0.62, 0.45, 0.55, 10000, 10000, inDays(10))
	pr.A.YesAsks = domain.Ladder{{Price: 0.40, Size: 100}, {Price: 0.45, Size: 10000}}
	pr.B.NoAsks = domain.Ladder{{Price: 0.55, Size: 10000}}

	static := newDetector().Evaluate(p, 10000, pr)
	p.Trading.WalkBook = true
	walked := newDetector().Evaluate(p, 10000, pr)

	assert.Greater(t, walked.Slippage, static.Slippage)
	assert.Less(t, walked.NetEdge, static.NetEdge)
}

func TestScan_SortsPassingByExpectedProfit(t *testing.T) {
	small := pair(0.40, 0.62, 0.45, 0.55, 10000, 10000, inDays(10))
	big := pair(0.30, 0.62, 0.45, 0.55, 10000, 10000, inDays(10))
	big.A.MarketID = "K-2"
	bad := pair(0.50, 0.60, 0.55, 0.52, 10000, 10000, inDays(10))
	bad.A.MarketID = "K-3"

	all, passing := newDetector().Scan(context.Background(), params(), 10000, []domain.MatchedPair{small, bad, big})

	assert.Len(t, all, 3)
	require.Len(t, passing, 2)
	assert.Equal(t, "K-2", passing[0].YesLeg.MarketID)
	assert.Equal(t, "K-1", passing[1].YesLeg.MarketID)
}

func TestFeeFraction(t *testing.T) {
	fees := config.FeesConfig{KalshiFeePct: 0.01, PolymarketFeePct: 0.02, BlockchainCostUSD: 10}
	got := detector.FeeFraction(fees, 0.001,
		detector.LegPrice{Venue: domain.VenueKalshi, Price: 0.5},
		detector.LegPrice{Venue: domain.VenuePolymarket, Price: 0.5},
		1000)
	assert.InDelta(t, 0.015+0.01+0.001, got, 1e-12)

	assert.InDelta(t, 12.0, detector.LegFeeUSD(fees, domain.VenueKalshi, 1200), 1e-9)
	assert.InDelta(t, 34.0, detector.LegFeeUSD(fees, domain.VenuePolymarket, 1200), 1e-9)
	assert.Zero(t, detector.LegFeeUSD(fees, domain.VenuePolymarket, 0))
}
