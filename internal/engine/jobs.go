package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/alanyoungcy/crossarb/internal/breaker"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/notify"
)

// titledAlerter is implemented by alerters that accept a custom title.
type titledAlerter interface {
	NotifyTitled(ctx context.Context, title, message string, severity domain.Severity)
}

// crediter is implemented by simulated venues that can be paid out when a
// held position resolves.
type crediter interface {
	Credit(amount float64)
}

func (e *Engine) fetchBalances(ctx context.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(e.deps.Venues))
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(e.deps.Venues)) {
		bal, err := e.deps.Venues[name].GetBalance(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		out[name] = bal
	}
	return out, errors.Join(errs...)
}

// RefreshBalances replaces portfolio cash with what the venues report and
// feeds the new equity to the breaker. A trip is returned as ErrHalted.
func (e *Engine) RefreshBalances(ctx context.Context) error {
	if len(e.deps.Venues) == 0 {
		return nil
	}
	p := e.deps.Live.Snapshot()
	balances, err := e.fetchBalances(ctx)
	for venue, bal := range balances {
		e.portfolio.SetBalance(venue, bal)
	}
	if len(balances) == 0 {
		return fmt.Errorf("engine: refresh balances: %w", err)
	}
	equity := e.portfolio.Bankroll()
	e.logger.DebugContext(ctx, "balances refreshed", slog.Float64("equity", equity))

	tr := e.applyBreaker(ctx, p, breaker.Update{Kind: breaker.Balance, Equity: equity, At: e.now()})
	e.publishStatus(p, nil)
	if tr == breaker.Tripped {
		return breaker.Check(e.breaker).Err()
	}
	if err != nil {
		return fmt.Errorf("engine: refresh balances: %w", err)
	}
	return nil
}

// Snapshot records the portfolio to the store and metrics.
func (e *Engine) Snapshot(ctx context.Context) {
	snap := e.portfolio.Snapshot(e.now())
	snap.DailyPnL = e.breaker.DailyPnL
	if e.deps.Metrics != nil {
		e.deps.Metrics.UpdatePortfolio(snap)
	}
	if err := e.deps.Store.RecordBalanceSnapshot(ctx, snap); err != nil {
		e.logger.ErrorContext(ctx, "record balance snapshot failed", slog.String("error", err.Error()))
	}
}

// settleMatured releases held positions whose markets have resolved and
// pays simulated venues the resolution value.
func (e *Engine) settleMatured(ctx context.Context, p config.Params, now time.Time) {
	released := e.portfolio.ReleaseMatured(now)
	for _, r := range released {
		h, ok := e.held[r.TradeID]
		delete(e.held, r.TradeID)
		e.logger.InfoContext(ctx, "position resolved",
			slog.String("trade_id", r.TradeID),
			slog.String("event", r.EventKey),
			slog.Float64("capital", r.Capital),
			slog.Float64("pnl", r.PnL),
		)
		if !ok {
			continue
		}
		for venue, amount := range resolutionCredits(h.trade) {
			if c, ok := e.deps.Venues[venue].(crediter); ok {
				c.Credit(amount)
			}
		}
	}
	if len(released) > 0 {
		e.publishStatus(p, nil)
	}
}

// resolutionCredits splits the $1-per-contract payout of the hedged quantity
// across the leg venues by cost. The winning side is unknown to a simulated
// venue, so each venue receives its share of the hedge.
func resolutionCredits(t domain.Trade) map[string]float64 {
	hedged := hedgedContracts(t)
	if hedged <= 0 {
		return nil
	}
	yp, np := t.YesLeg.AvgPrice, t.NoLeg.AvgPrice
	if yp+np <= 0 {
		yp, np = 0.5, 0.5
	}
	out := make(map[string]float64, 2)
	out[t.YesLeg.Venue] += hedged * yp / (yp + np)
	out[t.NoLeg.Venue] += hedged * np / (yp + np)
	return out
}

// maybeDailyReset runs the end-of-day jobs once the reset hour has passed:
// summary alert, archive, breaker daily reset.
func (e *Engine) maybeDailyReset(ctx context.Context, p config.Params, now time.Time) {
	if !breaker.ResetDue(e.breaker, p.Breaker.ResetHour, now) {
		return
	}
	dayStart := e.breaker.DayStart

	sum, err := e.deps.Store.Summary(ctx, dayStart)
	if err != nil {
		e.logger.WarnContext(ctx, "daily summary failed", slog.String("error", err.Error()))
	} else {
		snap := e.portfolio.Snapshot(now)
		snap.DailyPnL = e.breaker.DailyPnL
		report := notify.RenderDailySummary(notify.DailyReport{
			Day:     dayStart,
			Summary: sum,
			Balance: snap,
			Breaker: e.breaker,
		})
		if ta, ok := e.deps.Alerter.(titledAlerter); ok {
			ta.NotifyTitled(ctx, "crossarb daily summary "+dayStart.Format("2006-01-02"), report, domain.SeverityInfo)
		} else {
			e.alert(ctx, report, domain.SeverityInfo)
		}
	}

	if e.opts.ArchiveEnabled && e.deps.Archiver != nil {
		n, err := e.deps.Archiver.ArchiveDay(ctx, dayStart)
		if err != nil {
			e.logger.WarnContext(ctx, "archive failed", slog.String("error", err.Error()))
		} else {
			e.logger.InfoContext(ctx, "archived", slog.Int("records", n))
		}
	}

	e.applyBreaker(ctx, p, breaker.Update{Kind: breaker.DailyReset, At: now})
	e.portfolio.ResetDaily()
	e.publishStatus(p, nil)
	e.logger.InfoContext(ctx, "daily reset", slog.Time("day_start", e.breaker.DayStart))
}
