// Package engine runs the arbitrage poll loop. One goroutine owns the
// circuit breaker and the portfolio; each cycle fetches quotes from both
// venues, matches, detects, scores, sizes, gates and executes before the next
// cycle starts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/breaker"
	"github.com/alanyoungcy/crossarb/internal/capital"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/detector"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/matcher"
	"github.com/alanyoungcy/crossarb/internal/metrics"
	"github.com/alanyoungcy/crossarb/internal/risk"
)

// cycleLockKey serializes cycles across processes sharing one Redis.
const cycleLockKey = "cycle"

// Executor runs one position plan to a terminal trade.
type Executor interface {
	Execute(ctx context.Context, p config.Params, plan domain.PositionPlan) (domain.Trade, error)
}

// Deps are the engine's collaborators. Only the two quote sources, Live and
// Store are required.
type Deps struct {
	// VenueA and VenueB are matched against each other; A is the side whose
	// market ids key events.
	VenueA domain.QuoteSource
	VenueB domain.QuoteSource

	// Venues are the accounts balances are read from. Empty in scan mode.
	Venues map[string]domain.Venue
	// Executor is nil in scan mode.
	Executor Executor

	Live     *config.Live
	Store    domain.Store
	Alerter  domain.Alerter
	Bus      domain.EventBus
	Locks    domain.LockManager
	Breakers domain.BreakerStateStore
	Archiver domain.Archiver
	Metrics  *metrics.Metrics
}

// Options are loop settings that do not change at runtime.
type Options struct {
	Mode             string
	Interval         time.Duration
	BalanceInterval  time.Duration
	SnapshotInterval time.Duration
	ArchiveEnabled   bool
	InitialBankroll  float64
}

// Status is a read-only view for the admin API.
type Status struct {
	Mode         string                 `json:"mode"`
	Breaker      domain.BreakerState    `json:"breaker"`
	Portfolio    domain.BalanceSnapshot `json:"portfolio"`
	Cycles       int                    `json:"cycles"`
	LastCycle    time.Time              `json:"last_cycle"`
	LastError    string                 `json:"last_error,omitempty"`
	HeldTrades   int                    `json:"held_trades"`
	AutoExecute  bool                   `json:"auto_execute"`
	ResetPending bool                   `json:"reset_pending"`
}

// Engine is the poll loop. Run, RunCycle and WaitForReset must be called from
// one goroutine; Status and RequestReset are safe from any goroutine.
type Engine struct {
	deps Deps
	opts Options

	matcher  *matcher.Matcher
	detector *detector.Detector
	analyzer *risk.Analyzer
	capital  *capital.Manager

	// owned by the loop goroutine
	portfolio *capital.Portfolio
	breaker   domain.BreakerState
	held      map[string]heldTrade
	ready     bool

	resetCh chan struct{}
	now     func() time.Time
	logger  *slog.Logger

	statusMu sync.RWMutex
	status   Status
}

// heldTrade is a position waiting for market resolution.
type heldTrade struct {
	trade      domain.Trade
	resolvesAt time.Time
}

// New creates an Engine.
func New(deps Deps, opts Options, logger *slog.Logger) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Engine{
		deps:     deps,
		opts:     opts,
		matcher:  matcher.New(logger),
		detector: detector.New(logger),
		analyzer: risk.NewAnalyzer(logger),
		capital:  capital.NewManager(logger),
		held:     make(map[string]heldTrade),
		resetCh:  make(chan struct{}, 1),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// WithClock replaces the wall clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.detector = e.detector.WithClock(now)
	return e
}

// Portfolio exposes the exposure book.
func (e *Engine) Portfolio() *capital.Portfolio {
	return e.portfolio
}

// Breaker returns the current breaker state. Loop goroutine only.
func (e *Engine) Breaker() domain.BreakerState {
	return e.breaker
}

// Status returns the last published status.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// RequestReset queues a manual breaker reset for the loop. It returns false
// when one is already queued.
func (e *Engine) RequestReset() bool {
	select {
	case e.resetCh <- struct{}{}:
		e.statusMu.Lock()
		e.status.ResetPending = true
		e.statusMu.Unlock()
		return true
	default:
		return false
	}
}

// Init seeds the portfolio from venue balances and restores the breaker.
// Run calls it; tests may call it directly. It is a no-op once done.
func (e *Engine) Init(ctx context.Context) error {
	if e.ready {
		return nil
	}
	p := e.deps.Live.Snapshot()

	balances, err := e.fetchBalances(ctx)
	if err != nil {
		return fmt.Errorf("engine: init balances: %w", err)
	}
	if len(balances) == 0 {
		// scan mode: size against a notional bankroll split across venues
		half := e.opts.InitialBankroll / 2
		balances = map[string]float64{e.deps.VenueA.Name(): half, e.deps.VenueB.Name(): half}
	}
	e.portfolio = capital.NewPortfolio(balances, p.Capital.ReservePct)

	now := e.now()
	if e.deps.Breakers != nil {
		st, err := e.deps.Breakers.LoadBreaker(ctx)
		switch {
		case err == nil:
			e.breaker = st
			e.logger.InfoContext(ctx, "breaker state restored",
				slog.String("status", string(st.Status)),
				slog.Float64("peak_equity", st.PeakEquity),
			)
		case errors.Is(err, domain.ErrNotFound):
		default:
			e.logger.WarnContext(ctx, "breaker state load failed, starting fresh",
				slog.String("error", err.Error()),
			)
		}
	}
	e.applyBreaker(ctx, p, breaker.Update{Kind: breaker.Init, Equity: e.portfolio.Bankroll(), At: now})
	e.ready = true
	e.publishStatus(p, nil)

	e.logger.InfoContext(ctx, "engine initialised",
		slog.String("mode", e.opts.Mode),
		slog.Float64("bankroll", e.portfolio.Bankroll()),
		slog.String("breaker", string(e.breaker.Status)),
	)
	return nil
}

// Run drives cycles until ctx is cancelled or the breaker trips. A trip
// returns an error wrapping breaker.ErrHalted; the caller decides whether to
// WaitForReset and run again.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Init(ctx); err != nil {
		return err
	}
	if err := breaker.Check(e.breaker).Err(); err != nil {
		return err
	}

	cycle := time.NewTicker(e.opts.Interval)
	defer cycle.Stop()
	balance := newTicker(e.opts.BalanceInterval)
	defer balance.Stop()
	snapshot := newTicker(e.opts.SnapshotInterval)
	defer snapshot.Stop()

	e.logger.InfoContext(ctx, "poll loop starting", slog.Duration("interval", e.opts.Interval))
	if err := e.tick(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "poll loop stopped")
			return nil
		case <-e.resetCh:
			e.manualReset(ctx)
		case <-balance.C:
			if err := e.RefreshBalances(ctx); err != nil {
				if errors.Is(err, breaker.ErrHalted) {
					return err
				}
				e.logger.WarnContext(ctx, "balance refresh failed", slog.String("error", err.Error()))
			}
		case <-snapshot.C:
			e.Snapshot(ctx)
		case <-cycle.C:
			if err := e.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// tick runs one cycle and swallows everything except a halt.
func (e *Engine) tick(ctx context.Context) error {
	err := e.RunCycle(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, breaker.ErrHalted):
		e.logger.ErrorContext(ctx, "trading halted, stopping poll loop", slog.String("reason", err.Error()))
		return err
	case ctx.Err() != nil:
		return nil
	default:
		e.logger.WarnContext(ctx, "cycle failed", slog.String("error", err.Error()))
		return nil
	}
}

// WaitForReset blocks while the breaker is open, until a manual reset is
// requested or the scheduled daily reset passes. It checks the schedule once
// a minute.
func (e *Engine) WaitForReset(ctx context.Context) error {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for e.breaker.Open() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.resetCh:
			e.manualReset(ctx)
		case <-t.C:
			e.maybeDailyReset(ctx, e.deps.Live.Snapshot(), e.now())
		}
	}
	return nil
}

func (e *Engine) manualReset(ctx context.Context) {
	p := e.deps.Live.Snapshot()
	e.logger.WarnContext(ctx, "manual breaker reset")
	e.applyBreaker(ctx, p, breaker.Update{Kind: breaker.ManualReset, At: e.now()})
	e.statusMu.Lock()
	e.status.ResetPending = false
	e.statusMu.Unlock()
	e.publishStatus(p, nil)
}

// applyBreaker folds u into the breaker, persists it and reports changes.
func (e *Engine) applyBreaker(ctx context.Context, p config.Params, u breaker.Update) breaker.Transition {
	next, tr := breaker.Apply(p.Breaker, e.breaker, u)
	e.breaker = next

	if e.deps.Breakers != nil {
		if err := e.deps.Breakers.SaveBreaker(ctx, next); err != nil {
			e.logger.ErrorContext(ctx, "persist breaker failed", slog.String("error", err.Error()))
		}
	}
	if e.deps.Metrics != nil {
		e.deps.Metrics.UpdateBreaker(next)
	}

	switch tr {
	case breaker.Tripped:
		if e.deps.Metrics != nil {
			e.deps.Metrics.BreakerTrips.Inc()
		}
		e.logger.ErrorContext(ctx, "circuit breaker tripped",
			slog.String("reason", next.HaltReason),
			slog.String("update", u.Kind.String()),
			slog.Float64("equity", next.Equity),
			slog.Float64("daily_pnl", next.DailyPnL),
		)
		e.alert(ctx, "Circuit breaker OPEN, trading halted: "+next.HaltReason, domain.SeverityCritical)
		e.publish(ctx, eventBreaker, next)
	case breaker.Cleared:
		e.logger.InfoContext(ctx, "circuit breaker cleared", slog.String("update", u.Kind.String()))
		e.alert(ctx, "Circuit breaker CLOSED after "+u.Kind.String(), domain.SeverityWarning)
		e.publish(ctx, eventBreaker, next)
	}
	return tr
}

func (e *Engine) publishStatus(p config.Params, cycleErr error) {
	st := Status{
		Mode:        e.opts.Mode,
		Breaker:     e.breaker,
		HeldTrades:  len(e.held),
		AutoExecute: p.Trading.AutoExecute && e.deps.Executor != nil,
	}
	if e.portfolio != nil {
		st.Portfolio = e.portfolio.Snapshot(e.now())
	}
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	st.Cycles = e.status.Cycles
	st.LastCycle = e.status.LastCycle
	st.LastError = e.status.LastError
	st.ResetPending = e.status.ResetPending
	if cycleErr != nil {
		st.LastError = cycleErr.Error()
	}
	e.status = st
}

func (e *Engine) alert(ctx context.Context, msg string, sev domain.Severity) {
	if e.deps.Alerter != nil {
		e.deps.Alerter.Notify(ctx, msg, sev)
	}
}

// newTicker returns a ticker that never fires when d <= 0.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		t := time.NewTicker(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTicker(d)
}
