package engine_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/breaker"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/engine"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/metrics"
	"github.com/alanyoungcy/crossarb/internal/store/sqlite"
	"github.com/alanyoungcy/crossarb/internal/venue"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type staticFeed struct {
	name   string
	quotes []domain.MarketQuote
}

func (s staticFeed) Name() string { return s.name }

func (s staticFeed) GetQuotes(context.Context) ([]domain.MarketQuote, error) { return s.quotes, nil }

// feeds returns one market listed on both venues: YES on kalshi at .40 plus
// NO on polymarket at .55 costs .95 per $1 payout.
func feeds() (staticFeed, staticFeed) {
	end := t0.AddDate(0, 0, 20)
	q := "Will the Fed cut rates in March 2025?"
	k := staticFeed{name: domain.VenueKalshi, quotes: []domain.MarketQuote{{
		Venue: domain.VenueKalshi, MarketID: "FED-25MAR-CUT", EventKey: "FED-25MAR", Question: q, EndDate: &end,
		YesBid: 0.38, YesAsk: 0.40, NoBid: 0.60, NoAsk: 0.62, Depth: 50000, FetchedAt: t0,
	}}}
	p := staticFeed{name: domain.VenuePolymarket, quotes: []domain.MarketQuote{{
		Venue: domain.VenuePolymarket, MarketID: "0xfed", Question: q, EndDate: &end,
		YesBid: 0.56, YesAsk: 0.58, NoBid: 0.53, NoAsk: 0.55, Depth: 50000, FetchedAt: t0,
	}}}
	return k, p
}

func params(autoExecute bool) config.Params {
	p := config.Defaults().Params()
	p.Fees = config.FeesConfig{}
	p.Trading.AutoExecute = autoExecute
	return p
}

type alertLog struct {
	mu   sync.Mutex
	msgs map[domain.Severity][]string
}

func (a *alertLog) Notify(_ context.Context, msg string, sev domain.Severity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.msgs == nil {
		a.msgs = map[domain.Severity][]string{}
	}
	a.msgs[sev] = append(a.msgs[sev], msg)
}

func (a *alertLog) count(sev domain.Severity) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs[sev])
}

type memBus struct {
	mu     sync.Mutex
	events int
	stream map[string]int
}

func (b *memBus) Publish(context.Context, string, []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events++
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		b.stream = map[string]int{}
	}
	b.stream[stream]++
	return nil
}

type memBreakers struct {
	saved *domain.BreakerState
}

func (m *memBreakers) LoadBreaker(context.Context) (domain.BreakerState, error) {
	if m.saved == nil {
		return domain.BreakerState{}, domain.ErrNotFound
	}
	return *m.saved, nil
}

func (m *memBreakers) SaveBreaker(_ context.Context, s domain.BreakerState) error {
	m.saved = &s
	return nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

// losingExecutor reports every plan as unwound at a fixed loss.
type losingExecutor struct {
	loss  float64
	calls int
}

func (l *losingExecutor) Execute(_ context.Context, _ config.Params, plan domain.PositionPlan) (domain.Trade, error) {
	l.calls++
	return domain.Trade{
		ID: "loss-" + plan.OpportunityID, OpportunityID: plan.OpportunityID, EventKey: plan.EventKey,
		Capital: plan.Capital, RealizedPnL: -l.loss, Status: domain.TradeStatusPartialUnwound, StartedAt: t0,
	}, nil
}

// hedgedUnwindExecutor reports a partial fill whose excess was sold, leaving
// a hedged quantity on both venues.
type hedgedUnwindExecutor struct{}

func (hedgedUnwindExecutor) Execute(_ context.Context, _ config.Params, plan domain.PositionPlan) (domain.Trade, error) {
	return domain.Trade{
		ID: "hedged-" + plan.OpportunityID, OpportunityID: plan.OpportunityID, EventKey: plan.EventKey,
		YesLeg:  domain.LegFill{Venue: plan.YesLeg.Venue, Filled: 300, AvgPrice: plan.YesLeg.Price},
		NoLeg:   domain.LegFill{Venue: plan.NoLeg.Venue, Filled: 200, AvgPrice: plan.NoLeg.Price},
		Capital: plan.Capital, RealizedPnL: 5, Status: domain.TradeStatusPartialUnwound, StartedAt: t0,
	}, nil
}

type harness struct {
	eng      *engine.Engine
	store    *sqlite.Store
	live     *config.Live
	alerts   *alertLog
	bus      *memBus
	breakers *memBreakers
	kalshi   *venue.Paper
	poly     *venue.Paper
	now      *time.Time
}

func newHarness(t *testing.T, p config.Params, withExecutor bool, exec engine.Executor) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := t0
	clock := func() time.Time { return now }

	kf, pf := feeds()
	k := venue.NewPaper(kf, venue.PaperOptions{Balance: 5000, Fees: p.Fees}, logger)
	pm := venue.NewPaper(pf, venue.PaperOptions{Balance: 5000, Fees: p.Fees}, logger)

	h := &harness{
		store: st, live: config.NewLive(p), alerts: &alertLog{}, bus: &memBus{},
		breakers: &memBreakers{}, kalshi: k, poly: pm, now: &now,
	}
	deps := engine.Deps{
		VenueA: k, VenueB: pm,
		Live: h.live, Store: st, Alerter: h.alerts, Bus: h.bus, Breakers: h.breakers,
		Metrics: metrics.New(),
	}
	opts := engine.Options{Mode: "paper", Interval: time.Second, InitialBankroll: 10000}
	if withExecutor {
		venues := map[string]domain.Venue{domain.VenueKalshi: k, domain.VenuePolymarket: pm}
		deps.Venues = venues
		if exec == nil {
			exec = executor.NewExecutor(venues, st, h.alerts, logger).
				WithClock(clock, func(context.Context, time.Duration) error { return nil })
		}
		deps.Executor = exec
	}
	h.eng = engine.New(deps, opts, logger).WithClock(clock)
	return h
}

func balances(t *testing.T, h *harness) float64 {
	t.Helper()
	kb, err := h.kalshi.GetBalance(context.Background())
	require.NoError(t, err)
	pb, err := h.poly.GetBalance(context.Background())
	require.NoError(t, err)
	return kb + pb
}

func TestRunCycle_ExecutesAndHoldsFilledTrade(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, params(true), true, nil)

	require.NoError(t, h.eng.RunCycle(ctx))

	opps, err := h.store.ListOpportunities(ctx, t0.Add(-time.Minute), t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, opps, 1)
	opp := opps[0]
	assert.True(t, opp.Passes)
	require.NotNil(t, opp.Risk)
	require.NotEmpty(t, opp.TradeID)

	trade, err := h.store.GetTrade(ctx, opp.TradeID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeStatusFilled, trade.Status)
	assert.Empty(t, trade.Unwinds)
	assert.Equal(t, trade.YesLeg.Filled, trade.NoLeg.Filled)
	assert.Equal(t, domain.VenueKalshi, trade.YesLeg.Venue)
	assert.Equal(t, domain.VenuePolymarket, trade.NoLeg.Venue)
	assert.Greater(t, trade.RealizedPnL, 0.0)

	st := h.eng.Status()
	assert.Equal(t, 1, st.HeldTrades)
	assert.Equal(t, 1, st.Cycles)
	assert.Equal(t, 1, st.Portfolio.OpenPositions)
	assert.InDelta(t, trade.RealizedPnL, h.eng.Breaker().DailyPnL, 1e-9)
	assert.Equal(t, 1, h.bus.stream["crossarb:stream:trade"])
	assert.Equal(t, 1, h.alerts.count(domain.SeverityInfo))

	// pair cooldown: the same opportunity is not traded twice
	require.NoError(t, h.eng.RunCycle(ctx))
	trades, err := h.store.ListTrades(ctx, t0.Add(-time.Minute), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestRunCycle_ResolutionPaysOutHedge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, params(true), true, nil)

	require.NoError(t, h.eng.RunCycle(ctx))
	trades, err := h.store.ListTrades(ctx, t0.Add(-time.Minute), t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	pnl := trades[0].RealizedPnL

	_, err = h.live.Apply([]byte(`{"trading":{"auto_execute":false}}`))
	require.NoError(t, err)
	*h.now = t0.AddDate(0, 0, 21)
	require.NoError(t, h.eng.RunCycle(ctx))

	assert.Equal(t, 0, h.eng.Status().HeldTrades)
	assert.Equal(t, 0, h.eng.Portfolio().OpenPositions())
	assert.InDelta(t, 10000+pnl, balances(t, h), 0.02)
}

func TestRunCycle_HoldsHedgedRemainderOfPartialUnwind(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, params(true), true, hedgedUnwindExecutor{})
	require.NoError(t, h.eng.RunCycle(ctx))
	assert.Equal(t, 1, h.eng.Status().HeldTrades)
	assert.Equal(t, 1, h.eng.Portfolio().OpenPositions())

	loser := &losingExecutor{loss: 1}
	h = newHarness(t, params(true), true, loser)
	require.NoError(t, h.eng.RunCycle(ctx))
	assert.Equal(t, 0, h.eng.Status().HeldTrades)
	assert.Equal(t, 0, h.eng.Portfolio().OpenPositions())
}

func TestRunCycle_ScanModeRecordsAndAlertsOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, params(true), false, nil)

	require.NoError(t, h.eng.RunCycle(ctx))

	opps, err := h.store.ListOpportunities(ctx, t0.Add(-time.Minute), t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.True(t, opps[0].Passes)
	assert.Empty(t, opps[0].TradeID)
	assert.Equal(t, 1, h.alerts.count(domain.SeverityInfo))
	assert.Equal(t, 10000.0, balances(t, h))
	assert.Equal(t, 10000.0, h.eng.Portfolio().Bankroll())
}

func TestRunCycle_BreakerTripStopsExecution(t *testing.T) {
	ctx := context.Background()
	loser := &losingExecutor{loss: 600}
	h := newHarness(t, params(true), true, loser)

	err := h.eng.RunCycle(ctx)
	require.ErrorIs(t, err, breaker.ErrHalted)
	assert.True(t, h.eng.Breaker().Open())
	assert.Equal(t, 1, h.alerts.count(domain.SeverityCritical))
	require.NotNil(t, h.breakers.saved)
	assert.True(t, h.breakers.saved.Open())

	// still halted on the next cycle; nothing reaches the executor
	*h.now = t0.Add(time.Hour)
	err = h.eng.RunCycle(ctx)
	require.ErrorIs(t, err, breaker.ErrHalted)
	assert.Equal(t, 1, loser.calls)

	opps, err := h.store.ListOpportunities(ctx, t0.Add(30*time.Minute), t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.RejectBreakerOpen, opps[0].Reason)

	// Run refuses to start while open
	require.ErrorIs(t, h.eng.Run(ctx), breaker.ErrHalted)

	require.True(t, h.eng.RequestReset())
	assert.True(t, h.eng.Status().ResetPending)
	require.NoError(t, h.eng.WaitForReset(ctx))
	assert.False(t, h.eng.Breaker().Open())
	assert.False(t, h.eng.Status().ResetPending)
}

func TestRunCycle_RestoresOpenBreaker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, params(true), true, &losingExecutor{})
	halted := t0.Add(-time.Hour)
	h.breakers.saved = &domain.BreakerState{
		Status: domain.BreakerOpen, HaltReason: "drawdown", HaltedAt: &halted,
		DayStart: t0.Add(-2 * time.Hour), DayStartBalance: 10000, Equity: 8000, PeakEquity: 10000,
	}

	err := h.eng.RunCycle(ctx)
	require.ErrorIs(t, err, breaker.ErrHalted)
	assert.Contains(t, err.Error(), "drawdown")
}

func TestRunCycle_DailyResetClearsBreaker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, params(false), true, nil)
	h.breakers.saved = &domain.BreakerState{
		Status: domain.BreakerOpen, HaltReason: "daily loss",
		DayStart: t0.Add(-24 * time.Hour), DayStartBalance: 10000, Equity: 9400, PeakEquity: 10000,
	}

	require.NoError(t, h.eng.RunCycle(ctx))
	st := h.eng.Breaker()
	assert.False(t, st.Open())
	assert.Equal(t, t0, st.DayStart)
	// daily summary plus the detected opportunity
	assert.GreaterOrEqual(t, h.alerts.count(domain.SeverityInfo), 2)
	assert.Equal(t, 1, h.alerts.count(domain.SeverityWarning))
}

func TestRunCycle_SkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	kf, pf := feeds()

	eng := engine.New(engine.Deps{
		VenueA: kf, VenueB: pf, Live: config.NewLive(params(false)), Store: st, Locks: heldLock{},
	}, engine.Options{Interval: time.Second, InitialBankroll: 10000}, logger).
		WithClock(func() time.Time { return t0 })

	require.NoError(t, eng.RunCycle(ctx))
	opps, err := st.ListOpportunities(ctx, t0.Add(-time.Minute), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestRefreshBalances_TripsOnEquityDrop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, params(false), true, nil)
	require.NoError(t, h.eng.Init(ctx))

	// an external withdrawal of 1000 on one venue reads as a 10% loss
	h.kalshi.Credit(-1000)
	err := h.eng.RefreshBalances(ctx)
	require.ErrorIs(t, err, breaker.ErrHalted)
	assert.Equal(t, 9000.0, h.eng.Portfolio().Bankroll())
}

func TestSnapshot_RecordsPortfolio(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, params(false), true, nil)
	require.NoError(t, h.eng.Init(ctx))

	h.eng.Snapshot(ctx)
	snap, err := h.store.LatestBalanceSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, snap.Total)
	assert.Equal(t, 5000.0, snap.Balances[domain.VenueKalshi])
}
