package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/breaker"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/engine"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/platform/kalshi"
	"github.com/alanyoungcy/crossarb/internal/platform/polymarket"
	"github.com/alanyoungcy/crossarb/internal/server"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/venue"
)

// apiRequestsPerSecond caps the admin API.
const apiRequestsPerSecond = 20

// PaperMode trades against simulated venues over live market data. Each
// venue starts with half the configured bankroll.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")
	kf, pf := a.feeds()

	p := a.cfg.Params()
	half := a.cfg.Capital.InitialBankroll / 2
	opts := func(seed int64) venue.PaperOptions {
		return venue.PaperOptions{
			Balance:         half,
			FillProbability: a.cfg.Paper.FillProbability,
			Seed:            seed,
			Fees:            p.Fees,
		}
	}
	kv := venue.NewPaper(kf, opts(a.cfg.Paper.Seed), a.logger)
	pv := venue.NewPaper(pf, opts(a.cfg.Paper.Seed+1), a.logger)
	venues := map[string]domain.Venue{kv.Name(): kv, pv.Name(): pv}

	exec := executor.NewExecutor(venues, deps.Store, deps.Notifier, a.logger)
	exec.SetDryRun(true)

	return a.runEngine(ctx, deps, engine.Deps{VenueA: kv, VenueB: pv, Venues: venues, Executor: exec}, exec.Dedup())
}

// ScanMode detects, sizes and records opportunities without trading. Sizing
// uses the configured bankroll as notional capital.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")
	kf, pf := a.feeds()
	return a.runEngine(ctx, deps, engine.Deps{VenueA: kf, VenueB: pf}, nil)
}

func (a *App) feeds() (*kalshi.Feed, *polymarket.Feed) {
	kc := a.cfg.Venues.Kalshi
	pc := a.cfg.Venues.Polymarket
	kf := kalshi.NewFeed(kalshi.Options{
		BaseURL:        kc.BaseURL,
		MarketLimit:    kc.MarketLimit,
		RequestsPerSec: kc.RequestsPerSec,
		FetchBooks:     kc.FetchBooks,
	}, a.logger)
	pf := polymarket.NewFeed(polymarket.Options{
		GammaHost:      pc.GammaHost,
		ClobHost:       pc.ClobHost,
		MarketLimit:    pc.MarketLimit,
		RequestsPerSec: pc.RequestsPerSec,
		FetchBooks:     pc.FetchBooks,
	}, a.logger)
	return kf, pf
}

// runEngine completes ed with the shared backends and runs the poll loop
// alongside the notifier, override watcher, dedup sweeper and admin server.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, ed engine.Deps, dedup *executor.Dedup) error {
	live := config.NewLive(a.cfg.Params())
	ed.Live = live
	ed.Store = deps.Store
	ed.Alerter = deps.Notifier
	ed.Bus = deps.Bus
	ed.Locks = deps.Locks
	ed.Breakers = deps.Breakers
	ed.Archiver = deps.Archiver
	ed.Metrics = deps.Metrics

	polling := a.cfg.Polling
	eng := engine.New(ed, engine.Options{
		Mode:             a.cfg.Mode,
		Interval:         polling.Interval.Duration,
		BalanceInterval:  polling.BalanceInterval.Duration,
		SnapshotInterval: polling.SnapshotInterval.Duration,
		ArchiveEnabled:   polling.ArchiveEnabled && deps.Archiver != nil,
		InitialBankroll:  a.cfg.Capital.InitialBankroll,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Notifier.Run(ctx)
	})

	if deps.Bus != nil {
		g.Go(func() error {
			return engine.WatchOverrides(ctx, deps.Bus, live, a.logger)
		})
	}

	if dedup != nil {
		g.Go(func() error {
			t := time.NewTicker(time.Minute)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					dedup.Cleanup()
				}
			}
		})
	}

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:              a.cfg.Server.Port,
			APIKey:            a.cfg.Server.APIKey,
			RequestsPerSecond: apiRequestsPerSecond,
		}, server.Handlers{
			Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger),
			Status:  handler.NewStatusHandler(eng, a.logger),
			Metrics: promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}),
		}, a.logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.pollLoop(ctx, eng)
	})

	return g.Wait()
}

// pollLoop runs the engine, and while the breaker holds trading halted,
// waits for a manual or scheduled reset before starting it again.
func (a *App) pollLoop(ctx context.Context, eng *engine.Engine) error {
	for {
		err := eng.Run(ctx)
		if !errors.Is(err, breaker.ErrHalted) {
			return err
		}
		a.logger.WarnContext(ctx, "trading halted, waiting for breaker reset", slog.String("reason", err.Error()))
		if err := eng.WaitForReset(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		a.logger.InfoContext(ctx, "breaker reset, resuming poll loop")
	}
}
