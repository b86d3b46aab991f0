package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/store/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleOpp(id string, at time.Time, passes bool) domain.Opportunity {
	return domain.Opportunity{
		ID: id, PairID: "kalshi:A|polymarket:B", EventKey: "kalshi:A",
		Question:   "will the fed cut rates in march 2025",
		Similarity: 0.91,
		Direction:  domain.DirectionAYesBNo,
		YesLeg:     domain.Leg{Venue: "kalshi", MarketID: "A", Outcome: domain.OutcomeYes, Price: 0.4, Bid: 0.38, Depth: 5000},
		NoLeg:      domain.Leg{Venue: "polymarket", MarketID: "B", Outcome: domain.OutcomeNo, Price: 0.55, Bid: 0.53, Depth: 8000},
		RawEdge:    0.05, NetEdge: 0.03, DaysToRes: 18, Notional: 1000, ExpectedPnL: 30,
		Passes:     passes,
		DetectedAt: at,
	}
}

func TestStore_Opportunities(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	opp := sampleOpp("o1", t0, true)
	require.NoError(t, s.RecordOpportunity(ctx, opp))

	opp.Passes = false
	opp.Reason = domain.RejectCriticalRisk
	opp.Risk = &domain.RiskAssessment{Score: 0.8, Level: domain.RiskCritical, Warnings: []string{"resolution mismatch"}}
	opp.NetEdge = 0.99 // not refreshed
	require.NoError(t, s.RecordOpportunity(ctx, opp))
	require.NoError(t, s.RecordOpportunity(ctx, sampleOpp("o2", t0.Add(2*time.Hour), true)))

	require.NoError(t, s.AttachTrade(ctx, "o1", "t1"))
	require.ErrorIs(t, s.AttachTrade(ctx, "missing", "t1"), domain.ErrNotFound)

	got, err := s.ListOpportunities(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	o := got[0]
	assert.False(t, o.Passes)
	assert.Equal(t, domain.RejectCriticalRisk, o.Reason)
	assert.Equal(t, 0.03, o.NetEdge)
	assert.Equal(t, "t1", o.TradeID)
	assert.Equal(t, t0, o.DetectedAt)
	assert.Equal(t, 0.38, o.YesLeg.Bid)
	require.NotNil(t, o.Risk)
	assert.Equal(t, domain.RiskCritical, o.Risk.Level)
	assert.Equal(t, []string{"resolution mismatch"}, o.Risk.Warnings)
}

func TestStore_TradeTerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	tr := domain.Trade{
		ID: "t1", OpportunityID: "o1", EventKey: "kalshi:A", Capital: 950,
		YesLeg:    domain.LegFill{Venue: "kalshi", MarketID: "A", Outcome: domain.OutcomeYes, Price: 0.4, Contracts: 1000},
		NoLeg:     domain.LegFill{Venue: "polymarket", MarketID: "B", Outcome: domain.OutcomeNo, Price: 0.55, Contracts: 1000},
		Status:    domain.TradeStatusPending,
		DryRun:    true,
		StartedAt: t0,
	}
	require.NoError(t, s.RecordTrade(ctx, tr))

	done := t0.Add(30 * time.Second)
	tr.Status = domain.TradeStatusPartialUnwound
	tr.RealizedPnL = -20
	tr.Unwinds = []domain.UnwindAction{{Venue: "kalshi", Quantity: 1000, Price: 0.38, Status: domain.OrderStatusFilled, Proceeds: 380, At: done}}
	tr.CompletedAt = &done
	require.NoError(t, s.RecordTrade(ctx, tr))

	tr.Status = domain.TradeStatusFilled
	require.NoError(t, s.RecordTrade(ctx, tr))

	got, err := s.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusPartialUnwound, got.Status)
	assert.Equal(t, -20.0, got.RealizedPnL)
	assert.True(t, got.DryRun)
	require.Len(t, got.Unwinds, 1)
	assert.Equal(t, 380.0, got.Unwinds[0].Proceeds)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, done, *got.CompletedAt)

	_, err = s.GetTrade(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)

	list, err := s.ListTrades(ctx, t0, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_BalanceSnapshots(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.LatestBalanceSnapshot(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.RecordBalanceSnapshot(ctx, domain.BalanceSnapshot{
		Balances: map[string]float64{"kalshi": 5000}, Total: 5000, Available: 5000, TakenAt: t0,
	}))
	require.NoError(t, s.RecordBalanceSnapshot(ctx, domain.BalanceSnapshot{
		Balances: map[string]float64{"kalshi": 4600, "polymarket": 5000}, Total: 10000, Locked: 400,
		Available: 9600, OpenPositions: 1, DailyPnL: 12.5, TakenAt: t0.Add(15 * time.Minute),
	}))

	snap, err := s.LatestBalanceSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4600.0, snap.Balances["kalshi"])
	assert.Equal(t, 1, snap.OpenPositions)
	assert.Equal(t, t0.Add(15*time.Minute), snap.TakenAt)
}

func TestStore_Summary(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.RecordOpportunity(ctx, sampleOpp("o1", t0, true)))
	require.NoError(t, s.RecordOpportunity(ctx, sampleOpp("o2", t0, false)))
	require.NoError(t, s.RecordOpportunity(ctx, sampleOpp("old", t0.Add(-48*time.Hour), true)))

	require.NoError(t, s.RecordTrade(ctx, domain.Trade{ID: "a", Capital: 500, FeesUSD: 2, RealizedPnL: 15,
		Status: domain.TradeStatusFilled, StartedAt: t0}))
	require.NoError(t, s.RecordTrade(ctx, domain.Trade{ID: "b", Capital: 300,
		Status: domain.TradeStatusRejected, StartedAt: t0}))

	sum, err := s.Summary(ctx, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.OpportunitiesSeen)
	assert.Equal(t, 1, sum.OpportunitiesPassed)
	assert.Equal(t, 1, sum.TradesByStatus[domain.TradeStatusFilled])
	assert.Equal(t, 1, sum.TradesByStatus[domain.TradeStatusRejected])
	assert.Equal(t, 15.0, sum.RealizedPnL)
	assert.Equal(t, 500.0, sum.CapitalDeployed)
}
