package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/breaker"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/executor"
)

// RunCycle runs one full cycle. It returns an error wrapping
// breaker.ErrHalted when the breaker is open or trips during the cycle.
func (e *Engine) RunCycle(ctx context.Context) (err error) {
	if err := e.Init(ctx); err != nil {
		return err
	}
	started := e.now()
	p := e.deps.Live.Snapshot()
	result := "ok"
	defer func() {
		if err != nil && !errors.Is(err, breaker.ErrHalted) {
			result = "error"
		}
		if e.deps.Metrics != nil {
			e.deps.Metrics.RecordCycle(result, e.now().Sub(started))
		}
		e.statusMu.Lock()
		e.status.Cycles++
		e.status.LastCycle = started
		e.status.LastError = ""
		e.statusMu.Unlock()
		e.publishStatus(p, err)
	}()

	if e.deps.Locks != nil {
		unlock, lerr := e.deps.Locks.Acquire(ctx, cycleLockKey, 2*e.opts.Interval)
		if errors.Is(lerr, domain.ErrLockHeld) {
			result = "skipped"
			e.logger.DebugContext(ctx, "cycle lock held elsewhere, skipping")
			return nil
		}
		if lerr != nil {
			return fmt.Errorf("engine: cycle lock: %w", lerr)
		}
		defer unlock()
	}

	e.settleMatured(ctx, p, started)
	e.maybeDailyReset(ctx, p, started)

	quotesA, quotesB, err := e.fetchQuotes(ctx)
	if err != nil {
		return err
	}
	pairs := e.matcher.Match(ctx, p.Matcher, quotesA, quotesB)
	if e.deps.Metrics != nil {
		e.deps.Metrics.PairsMatched.Set(float64(len(pairs)))
	}
	byID := make(map[string]domain.MatchedPair, len(pairs))
	for _, pr := range pairs {
		byID[pr.ID()] = pr
	}

	all, passing := e.detector.Scan(ctx, p, e.portfolio.Bankroll(), pairs)
	for _, opp := range all {
		if !opp.Passes {
			e.recordOpportunity(ctx, opp)
		}
	}

	executed := 0
	for _, opp := range passing {
		pair := byID[opp.PairID]
		ra := e.analyzer.Assess(ctx, p, opp, pair)
		opp.Risk = &ra

		plan := e.capital.Plan(ctx, p, opp, ra, e.portfolio)
		if !plan.Accepted() {
			opp.Reject(plan.Reason, plan.Detail)
			e.recordOpportunity(ctx, opp)
			continue
		}

		canExecute := e.deps.Executor != nil && p.Trading.AutoExecute &&
			executed < p.Trading.MaxExecutionsPerCycle
		if !canExecute {
			e.recordOpportunity(ctx, opp)
			e.alertOpportunity(ctx, opp, plan)
			continue
		}

		// Gate read. This goroutine is the breaker's only writer and every
		// settlement below is applied before the next read, so the state
		// cannot change between this check and Execute.
		if d := breaker.Check(e.breaker); !d.Allowed {
			opp.Reject(domain.RejectBreakerOpen, d.Reason)
			e.recordOpportunity(ctx, opp)
			return d.Err()
		}

		e.recordOpportunity(ctx, opp)
		trade, xerr := e.deps.Executor.Execute(ctx, p, plan)
		if xerr != nil {
			if errors.Is(xerr, executor.ErrDuplicate) {
				e.logger.DebugContext(ctx, "pair in cooldown", slog.String("pair", opp.PairID))
			} else {
				e.logger.WarnContext(ctx, "execution not attempted",
					slog.String("opp_id", opp.ID),
					slog.String("error", xerr.Error()),
				)
			}
		}
		if trade.ID == "" {
			continue
		}
		executed++
		if err := e.deps.Store.AttachTrade(ctx, opp.ID, trade.ID); err != nil {
			e.logger.WarnContext(ctx, "attach trade failed", slog.String("error", err.Error()))
		}
		if tr := e.settleTrade(ctx, p, plan, pair, trade); tr == breaker.Tripped {
			return breaker.Check(e.breaker).Err()
		}
	}

	e.logger.InfoContext(ctx, "cycle complete",
		slog.Int("quotes_a", len(quotesA)),
		slog.Int("quotes_b", len(quotesB)),
		slog.Int("pairs", len(pairs)),
		slog.Int("passing", len(passing)),
		slog.Int("executed", executed),
		slog.Duration("took", e.now().Sub(started)),
	)
	return nil
}

// fetchQuotes reads both venues concurrently. Either failing fails the
// cycle; a one-sided quote set cannot produce pairs.
func (e *Engine) fetchQuotes(ctx context.Context) (a, b []domain.MarketQuote, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		qs, err := e.deps.VenueA.GetQuotes(gctx)
		if err != nil {
			return fmt.Errorf("engine: quotes %s: %w", e.deps.VenueA.Name(), err)
		}
		a = qs
		return nil
	})
	g.Go(func() error {
		qs, err := e.deps.VenueB.GetQuotes(gctx)
		if err != nil {
			return fmt.Errorf("engine: quotes %s: %w", e.deps.VenueB.Name(), err)
		}
		b = qs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if m := e.deps.Metrics; m != nil {
		m.QuotesFetched.WithLabelValues(e.deps.VenueA.Name()).Set(float64(len(a)))
		m.QuotesFetched.WithLabelValues(e.deps.VenueB.Name()).Set(float64(len(b)))
	}
	return a, b, nil
}

// settleTrade folds a finished trade into the portfolio and the breaker.
//
//	filled, partial_unwind_failed: held until resolution, P&L booked now
//	partial_unwound:               held while a hedged quantity remains,
//	                               otherwise closed now
//	rejected, failed:              nothing was bought
func (e *Engine) settleTrade(ctx context.Context, p config.Params, plan domain.PositionPlan, pair domain.MatchedPair, t domain.Trade) breaker.Transition {
	now := e.now()
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordTrade(t)
	}
	e.publish(ctx, eventTrade, t)

	switch t.Status {
	case domain.TradeStatusFilled, domain.TradeStatusPartialUnwindFailed, domain.TradeStatusPartialUnwound:
	default:
		return breaker.NoChange
	}

	resolves := resolutionTime(pair, p.Capital.MaxDaysToResolution, now)
	if err := e.portfolio.Allocate(t.ID, plan, &resolves, now); err != nil {
		e.logger.ErrorContext(ctx, "allocate failed", slog.String("trade_id", t.ID), slog.String("error", err.Error()))
	} else if t.Status == domain.TradeStatusPartialUnwound && hedgedContracts(t) <= 0 {
		if _, err := e.portfolio.Release(t.ID, t.RealizedPnL); err != nil {
			e.logger.ErrorContext(ctx, "release failed", slog.String("trade_id", t.ID), slog.String("error", err.Error()))
		}
	} else {
		if err := e.portfolio.Book(t.ID, t.RealizedPnL); err != nil {
			e.logger.ErrorContext(ctx, "book failed", slog.String("trade_id", t.ID), slog.String("error", err.Error()))
		}
		e.held[t.ID] = heldTrade{trade: t, resolvesAt: resolves}
	}

	if t.Status == domain.TradeStatusFilled {
		e.alert(ctx, fmt.Sprintf("Trade %s filled on %s: capital $%.2f, locked P&L $%.2f",
			t.ID, t.EventKey, t.Capital, t.RealizedPnL), domain.SeverityInfo)
	}

	return e.applyBreaker(ctx, p, breaker.Update{Kind: breaker.Settlement, PnL: t.RealizedPnL, At: now})
}

func hedgedContracts(t domain.Trade) float64 {
	return min(t.YesLeg.Filled, t.NoLeg.Filled)
}

// resolutionTime is the later of the two end dates, or maxDays out when
// neither venue publishes one.
func resolutionTime(pair domain.MatchedPair, maxDays int, now time.Time) time.Time {
	var end time.Time
	for _, d := range []*time.Time{pair.A.EndDate, pair.B.EndDate} {
		if d != nil && d.After(end) {
			end = *d
		}
	}
	if end.IsZero() {
		return now.AddDate(0, 0, maxDays)
	}
	return end
}

func (e *Engine) recordOpportunity(ctx context.Context, opp domain.Opportunity) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordOpportunity(opp)
	}
	if err := e.deps.Store.RecordOpportunity(ctx, opp); err != nil {
		e.logger.ErrorContext(ctx, "record opportunity failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
	e.publish(ctx, eventOpportunity, opp)
}

func (e *Engine) alertOpportunity(ctx context.Context, opp domain.Opportunity, plan domain.PositionPlan) {
	e.alert(ctx, fmt.Sprintf(
		"Opportunity %s: buy YES %s@%.2f on %s, NO %s@%.2f on %s; net edge %.2f%%, capital $%.2f, expected $%.2f, risk %s",
		opp.Question,
		opp.YesLeg.MarketID, opp.YesLeg.Price, opp.YesLeg.Venue,
		opp.NoLeg.MarketID, opp.NoLeg.Price, opp.NoLeg.Venue,
		opp.NetEdge*100, plan.Capital, plan.ExpectedPnL, opp.Risk.Level,
	), domain.SeverityInfo)
}
