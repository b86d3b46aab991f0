// Package metrics exposes engine state as Prometheus metrics on a private
// registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Metrics holds every collector the engine updates.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	QuotesFetched *prometheus.GaugeVec
	PairsMatched  prometheus.Gauge

	OpportunitiesTotal *prometheus.CounterVec
	NetEdge            prometheus.Histogram

	TradesTotal *prometheus.CounterVec
	RealizedPnL prometheus.Gauge
	FeesTotal   prometheus.Counter

	VenueBalance  *prometheus.GaugeVec
	Equity        prometheus.Gauge
	Exposure      prometheus.Gauge
	OpenPositions prometheus.Gauge
	DailyPnL      prometheus.Gauge
	Drawdown      prometheus.Gauge
	BreakerOpen   prometheus.Gauge
	BreakerTrips  prometheus.Counter
}

// New registers all collectors plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossarb_cycles_total",
			Help: "Poll cycles by result",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crossarb_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		QuotesFetched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crossarb_quotes_fetched",
			Help: "Quotes returned by the last fetch",
		}, []string{"venue"}),
		PairsMatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_pairs_matched",
			Help: "Matched pairs in the last cycle",
		}),

		OpportunitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossarb_opportunities_total",
			Help: "Evaluated opportunities by verdict and reject reason",
		}, []string{"verdict", "reason"}),
		NetEdge: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crossarb_net_edge",
			Help:    "Net edge of passing opportunities",
			Buckets: []float64{0.005, 0.01, 0.02, 0.03, 0.05, 0.075, 0.1, 0.15, 0.25},
		}),

		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossarb_trades_total",
			Help: "Executed trades by terminal status",
		}, []string{"status"}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_realized_pnl_usd",
			Help: "Cumulative realized P&L since start",
		}),
		FeesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossarb_fees_usd_total",
			Help: "Fees paid",
		}),

		VenueBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crossarb_venue_balance_usd",
			Help: "Cash balance per venue",
		}, []string{"venue"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_equity_usd",
			Help: "Cash plus open position value",
		}),
		Exposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_exposure_usd",
			Help: "Capital locked in open positions",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_open_positions",
			Help: "Open two-leg positions",
		}),
		DailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_daily_pnl_usd",
			Help: "Realized P&L since the last daily reset",
		}),
		Drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_drawdown_ratio",
			Help: "Drawdown from peak equity, 0..1",
		}),
		BreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_breaker_open",
			Help: "1 while trading is halted",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossarb_breaker_trips_total",
			Help: "Circuit breaker trips",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CyclesTotal, m.CycleDuration, m.QuotesFetched, m.PairsMatched,
		m.OpportunitiesTotal, m.NetEdge,
		m.TradesTotal, m.RealizedPnL, m.FeesTotal,
		m.VenueBalance, m.Equity, m.Exposure, m.OpenPositions,
		m.DailyPnL, m.Drawdown, m.BreakerOpen, m.BreakerTrips,
	)
	return m
}

// Registry returns the registry to serve.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCycle counts one cycle. result is "ok", "error" or "skipped".
func (m *Metrics) RecordCycle(result string, d time.Duration) {
	m.CyclesTotal.WithLabelValues(result).Inc()
	if d > 0 {
		m.CycleDuration.Observe(d.Seconds())
	}
}

// RecordOpportunity counts one evaluated opportunity.
func (m *Metrics) RecordOpportunity(o domain.Opportunity) {
	if o.Passes {
		m.OpportunitiesTotal.WithLabelValues("pass", "").Inc()
		m.NetEdge.Observe(o.NetEdge)
		return
	}
	m.OpportunitiesTotal.WithLabelValues("reject", string(o.Reason)).Inc()
}

// RecordTrade counts a finished trade.
func (m *Metrics) RecordTrade(t domain.Trade) {
	m.TradesTotal.WithLabelValues(string(t.Status)).Inc()
	m.FeesTotal.Add(t.FeesUSD)
	m.RealizedPnL.Add(t.RealizedPnL)
}

// UpdatePortfolio sets the balance gauges from a snapshot.
func (m *Metrics) UpdatePortfolio(s domain.BalanceSnapshot) {
	for venue, bal := range s.Balances {
		m.VenueBalance.WithLabelValues(venue).Set(bal)
	}
	m.Equity.Set(s.Total)
	m.Exposure.Set(s.Locked)
	m.OpenPositions.Set(float64(s.OpenPositions))
}

// UpdateBreaker mirrors breaker state.
func (m *Metrics) UpdateBreaker(s domain.BreakerState) {
	m.DailyPnL.Set(s.DailyPnL)
	m.Drawdown.Set(s.Drawdown)
	if s.Open() {
		m.BreakerOpen.Set(1)
	} else {
		m.BreakerOpen.Set(0)
	}
}
