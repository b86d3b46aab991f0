package capital_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/capital"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

func acceptedPlan(event string, yes, no float64) domain.PositionPlan {
	return domain.PositionPlan{
		OpportunityID: "opp",
		EventKey:      event,
		YesLeg:        domain.PlanLeg{Venue: domain.VenueKalshi, Notional: yes},
		NoLeg:         domain.PlanLeg{Venue: domain.VenuePolymarket, Notional: no},
		Capital:       yes + no,
	}
}

func newBook() *capital.Portfolio {
	return capital.NewPortfolio(map[string]float64{
		domain.VenueKalshi:     5000,
		domain.VenuePolymarket: 5000,
	}, 0.1)
}

func TestPortfolio_AllocateRelease(t *testing.T) {
	book := newBook()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, book.Allocate("t1", acceptedPlan("ev", 200, 300), nil, now))
	assert.InDelta(t, 500, book.Exposure("ev"), 1e-9)
	assert.InDelta(t, 500, book.TotalExposure(), 1e-9)
	assert.Equal(t, 1, book.OpenPositions())
	assert.InDelta(t, 10000, book.Bankroll(), 1e-9)
	assert.InDelta(t, 4800*0.9, book.VenueAvailable(domain.VenueKalshi), 1e-9)

	err := book.Allocate("t1", acceptedPlan("ev", 1, 1), nil, now)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	rel, err := book.Release("t1", -10)
	require.NoError(t, err)
	assert.InDelta(t, 500, rel.Capital, 1e-9)
	assert.InDelta(t, 196, rel.Payout[domain.VenueKalshi], 1e-9)
	assert.InDelta(t, 294, rel.Payout[domain.VenuePolymarket], 1e-9)
	assert.Zero(t, book.Exposure("ev"))
	assert.Zero(t, book.OpenPositions())
	assert.InDelta(t, 9990, book.Bankroll(), 1e-9)

	snap := book.Snapshot(now)
	assert.InDelta(t, -10, snap.DailyPnL, 1e-9)
	assert.InDelta(t, 9990, snap.Total, 1e-9)
	assert.Zero(t, snap.Locked)

	_, err = book.Release("t1", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPortfolio_RejectsUnacceptedPlan(t *testing.T) {
	plan := acceptedPlan("ev", 100, 100)
	plan.Reason = domain.RejectCriticalRisk
	assert.Error(t, newBook().Allocate("t", plan, nil, time.Now()))
}

func TestPortfolio_BookedPnLCountsTowardEquity(t *testing.T) {
	book := newBook()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	resolves := now.Add(48 * time.Hour)

	require.NoError(t, book.Allocate("t1", acceptedPlan("ev", 200, 300), &resolves, now))
	require.NoError(t, book.Book("t1", 12.5))
	assert.InDelta(t, 10012.5, book.Bankroll(), 1e-9)

	assert.Empty(t, book.ReleaseMatured(now.Add(24*time.Hour)))
	rel := book.ReleaseMatured(resolves)
	require.Len(t, rel, 1)
	assert.Equal(t, "t1", rel[0].TradeID)
	assert.InDelta(t, 12.5, rel[0].PnL, 1e-9)
	assert.InDelta(t, 10012.5, book.Bankroll(), 1e-9)
	assert.Zero(t, book.OpenPositions())

	book.ResetDaily()
	assert.Zero(t, book.Snapshot(now).DailyPnL)
}

func TestPortfolio_SetBalanceAndAvailable(t *testing.T) {
	book := newBook()
	book.SetBalance(domain.VenueKalshi, 1000)
	assert.InDelta(t, 900, book.VenueAvailable(domain.VenueKalshi), 1e-9)
	assert.InDelta(t, 6000-600, book.Available(), 1e-9)
	assert.Equal(t, map[string]float64{domain.VenueKalshi: 1000, domain.VenuePolymarket: 5000}, book.Balances())
	assert.Zero(t, book.VenueAvailable("predictit"))
}
