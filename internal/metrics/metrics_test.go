package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/metrics"
)

func TestMetrics_Record(t *testing.T) {
	m := metrics.New()

	m.RecordCycle("ok", 2*time.Second)
	m.RecordOpportunity(domain.Opportunity{Passes: true, NetEdge: 0.03})
	m.RecordOpportunity(domain.Opportunity{Reason: domain.RejectBelowThreshold})
	m.RecordOpportunity(domain.Opportunity{Reason: domain.RejectBelowThreshold})
	m.RecordTrade(domain.Trade{Status: domain.TradeStatusFilled, RealizedPnL: 50, FeesUSD: 4})
	m.RecordTrade(domain.Trade{Status: domain.TradeStatusPartialUnwound, RealizedPnL: -20})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpportunitiesTotal.WithLabelValues("reject", "below_threshold")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.RealizedPnL))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.FeesTotal))

	m.UpdateBreaker(domain.BreakerState{Status: domain.BreakerOpen, Drawdown: 0.06})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerOpen))

	m.UpdatePortfolio(domain.BalanceSnapshot{Balances: map[string]float64{"kalshi": 4200}, Total: 9950, OpenPositions: 2})
	assert.Equal(t, 4200.0, testutil.ToFloat64(m.VenueBalance.WithLabelValues("kalshi")))

	n, err := testutil.GatherAndCount(m.Registry(), "crossarb_trades_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}
