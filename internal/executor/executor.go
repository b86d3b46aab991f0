package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/detector"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ErrDuplicate is returned when the pair was attempted within the cooldown.
var ErrDuplicate = errors.New("executor: pair in cooldown")

// quantities below this are treated as zero when comparing fills.
const fillEpsilon = 1e-6

// minUnwindPrice is the sell price used when no bid is known.
const minUnwindPrice = 0.01

// unwindPollInterval spaces unwind status checks within unwind_timeout.
const unwindPollInterval = 250 * time.Millisecond

// Executor runs the two-leg saga for accepted position plans: pre-flight
// balance check, concurrent submission, status verification and, on a
// one-sided fill, cancel plus unwind of the unhedged quantity. There are no
// retries; every attempt ends in a terminal trade status and is recorded.
type Executor struct {
	venues  map[string]domain.Venue
	trades  domain.TradeStore
	alerter domain.Alerter
	dedup   *Dedup
	dryRun  bool
	logger  *slog.Logger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor over the named venues. trades and alerter
// may be nil.
func NewExecutor(
	venues map[string]domain.Venue,
	trades domain.TradeStore,
	alerter domain.Alerter,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		venues:  venues,
		trades:  trades,
		alerter: alerter,
		dedup:   NewDedup(5 * time.Minute),
		logger:  logger.With(slog.String("component", "executor")),
		now:     func() time.Time { return time.Now().UTC() },
		wait:    sleep,
	}
}

// SetDryRun marks recorded trades as dry-run (paper venues).
func (e *Executor) SetDryRun(v bool) { e.dryRun = v }

// WithClock overrides the time source and the fill wait. Used by tests.
func (e *Executor) WithClock(now func() time.Time, wait func(context.Context, time.Duration) error) *Executor {
	if now != nil {
		e.now = now
		e.dedup.now = now
	}
	if wait != nil {
		e.wait = wait
	}
	return e
}

// Dedup exposes the pair cooldown so the caller can run Cleanup.
func (e *Executor) Dedup() *Dedup { return e.dedup }

// legState tracks one leg through the saga.
type legState struct {
	plan    domain.PlanLeg
	venue   domain.Venue
	handle  domain.OrderHandle
	placed  bool
	unknown bool
	fill    domain.LegFill

	// stuck is set when a cancel could not be confirmed.
	stuck string
}

// Execute runs the saga for plan. The returned error is non-nil only when
// the plan was not attempted: a pair in cooldown (ErrDuplicate), an unknown
// venue, or a failed pre-flight (domain.ErrInsufficientBalance). All other
// outcomes are reported through Trade.Status.
func (e *Executor) Execute(ctx context.Context, p config.Params, plan domain.PositionPlan) (domain.Trade, error) {
	if !plan.Accepted() {
		return domain.Trade{}, fmt.Errorf("executor: plan %s not accepted: %s", plan.OpportunityID, plan.Reason)
	}
	yv, ok := e.venues[plan.YesLeg.Venue]
	if !ok {
		return domain.Trade{}, fmt.Errorf("executor: yes leg %q: %w", plan.YesLeg.Venue, domain.ErrUnknownVenue)
	}
	nv, ok := e.venues[plan.NoLeg.Venue]
	if !ok {
		return domain.Trade{}, fmt.Errorf("executor: no leg %q: %w", plan.NoLeg.Venue, domain.ErrUnknownVenue)
	}

	e.dedup.SetTTL(p.DedupCooldown())
	if plan.PairID != "" && e.dedup.Active(plan.PairID) {
		return domain.Trade{}, fmt.Errorf("%w: %s", ErrDuplicate, plan.PairID)
	}

	trade := domain.Trade{
		ID:            uuid.NewString(),
		OpportunityID: plan.OpportunityID,
		EventKey:      plan.EventKey,
		YesLeg:        requestedLeg(plan.YesLeg),
		NoLeg:         requestedLeg(plan.NoLeg),
		Capital:       plan.Capital,
		Status:        domain.TradeStatusPending,
		DryRun:        e.dryRun,
		StartedAt:     e.now(),
	}
	log := e.logger.With(
		slog.String("trade_id", trade.ID),
		slog.String("opportunity_id", plan.OpportunityID),
		slog.String("event", plan.EventKey),
	)

	if err := e.preflight(ctx, p, plan, yv, nv); err != nil {
		trade.Status = domain.TradeStatusRejected
		trade.Error = err.Error()
		e.finish(ctx, log, &trade)
		return trade, err
	}
	// The cooldown starts once orders are about to be sent.
	if plan.PairID != "" && e.dedup.IsDuplicate(plan.PairID) {
		return domain.Trade{}, fmt.Errorf("%w: %s", ErrDuplicate, plan.PairID)
	}
	e.record(ctx, log, trade)

	yes := &legState{plan: plan.YesLeg, venue: yv, fill: trade.YesLeg}
	no := &legState{plan: plan.NoLeg, venue: nv, fill: trade.NoLeg}

	e.submit(ctx, p, trade.ID, yes, no)

	// Once orders may be live the saga runs to completion even if the
	// caller is shutting down.
	sagaCtx := context.WithoutCancel(ctx)

	switch {
	case !yes.placed && !no.placed:
		trade.Status = domain.TradeStatusFailed
		trade.Error = "order placement failed on both legs: " + yes.fill.Error + "; " + no.fill.Error
		e.alert(ctx, fmt.Sprintf("Trade %s on %s failed: %s", trade.ID, trade.EventKey, trade.Error), domain.SeverityWarning)
	default:
		if err := e.wait(ctx, p.FillWait()); err != nil {
			log.WarnContext(ctx, "fill wait interrupted", slog.String("error", err.Error()))
		}
		e.verify(sagaCtx, p, yes, no)
		e.settle(sagaCtx, p, log, &trade, yes, no)
	}

	trade.YesLeg = yes.fill
	trade.NoLeg = no.fill
	e.finish(sagaCtx, log, &trade)
	return trade, nil
}

func requestedLeg(l domain.PlanLeg) domain.LegFill {
	return domain.LegFill{
		Venue:     l.Venue,
		MarketID:  l.MarketID,
		Outcome:   l.Outcome,
		Price:     l.Price,
		Contracts: l.Contracts,
		Status:    domain.OrderStatusOpen,
	}
}

// preflight checks that each venue holds enough cash for its leg plus fees.
// Both legs on one venue are summed.
func (e *Executor) preflight(ctx context.Context, p config.Params, plan domain.PositionPlan, yv, nv domain.Venue) error {
	need := map[string]float64{}
	for _, l := range []domain.PlanLeg{plan.YesLeg, plan.NoLeg} {
		need[l.Venue] += l.Notional + detector.LegFeeUSD(p.Fees, l.Venue, l.Notional)
	}
	for name, v := range map[string]domain.Venue{plan.YesLeg.Venue: yv, plan.NoLeg.Venue: nv} {
		bctx, cancel := context.WithTimeout(ctx, p.StatusTimeout())
		bal, err := v.GetBalance(bctx)
		cancel()
		if err != nil {
			return fmt.Errorf("executor: preflight balance %s: %v: %w", name, err, domain.ErrInsufficientBalance)
		}
		if bal+fillEpsilon < need[name] {
			return fmt.Errorf("executor: preflight %s has %.2f, needs %.2f: %w", name, bal, need[name], domain.ErrInsufficientBalance)
		}
	}
	return nil
}

// submit fires both legs and joins. Each placement carries its own timeout;
// a failure on one leg does not cancel the other.
func (e *Executor) submit(ctx context.Context, p config.Params, tradeID string, legs ...*legState) {
	var g errgroup.Group
	for _, l := range legs {
		g.Go(func() error {
			octx, cancel := context.WithTimeout(ctx, p.OrderTimeout())
			defer cancel()
			h, err := l.venue.PlaceOrder(octx, domain.OrderRequest{
				Venue:     l.plan.Venue,
				MarketID:  l.plan.MarketID,
				Outcome:   l.plan.Outcome,
				Side:      domain.OrderSideBuy,
				Price:     l.plan.Price,
				Contracts: l.plan.Contracts,
				ClientID:  tradeID + "-" + string(l.plan.Outcome),
			})
			if err != nil {
				l.fill.Status = domain.OrderStatusRejected
				l.fill.Error = err.Error()
				return nil
			}
			l.handle = h
			l.placed = true
			l.fill.OrderID = h.OrderID
			return nil
		})
	}
	_ = g.Wait()
}

// verify queries every placed leg concurrently, each under status_timeout.
// A failed query leaves the leg unknown.
func (e *Executor) verify(ctx context.Context, p config.Params, legs ...*legState) {
	var g errgroup.Group
	for _, l := range legs {
		if !l.placed {
			continue
		}
		g.Go(func() error {
			f, err := e.status(ctx, p, l)
			if err != nil {
				l.unknown = true
				l.fill.Status = domain.OrderStatusUnknown
				l.fill.Error = err.Error()
				return nil
			}
			l.apply(f)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Executor) status(ctx context.Context, p config.Params, l *legState) (domain.OrderFill, error) {
	sctx, cancel := context.WithTimeout(ctx, p.StatusTimeout())
	defer cancel()
	f, err := l.venue.GetOrderStatus(sctx, l.handle)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("executor: status %s %s: %w", l.plan.Venue, l.handle.OrderID, errors.Join(err, domain.ErrStatusUnknown))
	}
	if f.Status == domain.OrderStatusUnknown {
		return domain.OrderFill{}, fmt.Errorf("executor: status %s %s: %w", l.plan.Venue, l.handle.OrderID, domain.ErrStatusUnknown)
	}
	return f, nil
}

func (l *legState) apply(f domain.OrderFill) {
	l.fill.Status = f.Status
	l.fill.Filled = math.Min(f.Filled, l.plan.Contracts)
	l.fill.AvgPrice = f.AvgPrice
	if l.fill.AvgPrice <= 0 && l.fill.Filled > 0 {
		l.fill.AvgPrice = l.plan.Price
	}
}

func (l *legState) filled() float64 {
	if l.fill.Filled < fillEpsilon {
		return 0
	}
	return l.fill.Filled
}

// settle decides the terminal status from verified leg fills and runs the
// compensation steps.
func (e *Executor) settle(ctx context.Context, p config.Params, log *slog.Logger, trade *domain.Trade, yes, no *legState) {
	// Resting orders are cancelled before the final fill is read.
	for _, l := range []*legState{yes, no} {
		if l.placed && l.fill.Status.Resting() {
			e.cancel(ctx, p, log, l)
		}
	}
	if stuck := stuckOrders(yes, no); stuck != "" {
		defer func() {
			trade.Error = strings.TrimPrefix(trade.Error+"; "+stuck, "; ")
			log.ErrorContext(ctx, "order may still be live", slog.String("detail", stuck))
			e.alert(ctx, fmt.Sprintf("CRITICAL trade %s (%s): %s; a resting order may still fill",
				trade.ID, trade.EventKey, stuck), domain.SeverityCritical)
		}()
	}

	if yes.unknown || no.unknown {
		trade.Status = domain.TradeStatusFailed
		trade.Error = "order status unknown; manual reconciliation required"
		log.ErrorContext(ctx, "leg status unknown",
			slog.String("yes_status", string(yes.fill.Status)),
			slog.String("no_status", string(no.fill.Status)),
		)
		e.alert(ctx, fmt.Sprintf("ESCALATION trade %s (%s): order status unknown on %s; positions unverified",
			trade.ID, trade.EventKey, unknownVenues(yes, no)), domain.SeverityCritical)
		trade.FeesUSD = legFees(p, yes, no)
		return
	}

	fy, fn := yes.filled(), no.filled()
	if fy == 0 && fn == 0 {
		trade.Status = domain.TradeStatusRejected
		trade.Error = fmt.Sprintf("neither leg filled (yes=%s, no=%s)", yes.fill.Status, no.fill.Status)
		return
	}

	hedged := math.Min(fy, fn)
	fees := legFees(p, yes, no)
	cost := yes.fill.Cost() + no.fill.Cost()

	if math.Abs(fy-fn) <= hedgeTolerance(yes, no) {
		trade.Status = domain.TradeStatusFilled
		trade.FeesUSD = fees
		trade.RealizedPnL = round2(hedged - cost - fees)
		return
	}

	long := yes
	if fn > fy {
		long = no
	}
	excess := long.filled() - hedged
	u := e.unwind(ctx, p, log, trade.ID, long, excess)
	trade.Unwinds = append(trade.Unwinds, u)
	unwindFee := detector.LegFeeUSD(p.Fees, u.Venue, u.Proceeds)
	fees += unwindFee
	trade.FeesUSD = fees

	if u.Status == domain.OrderStatusFilled {
		trade.Status = domain.TradeStatusPartialUnwound
		trade.RealizedPnL = round2(hedged - cost + u.Proceeds - fees)
		log.WarnContext(ctx, "partial fill unwound",
			slog.Float64("quantity", excess),
			slog.Float64("proceeds", u.Proceeds),
		)
		e.alert(ctx, fmt.Sprintf("Partial fill on %s: unwound %.2f %s contracts on %s for $%.2f",
			trade.EventKey, excess, long.plan.Outcome, long.plan.Venue, u.Proceeds), domain.SeverityWarning)
		return
	}

	// The unhedged remainder is booked at zero value until reconciled.
	trade.Status = domain.TradeStatusPartialUnwindFailed
	trade.Error = "unwind failed: " + u.Error
	trade.RealizedPnL = round2(hedged - cost + u.Proceeds - fees)
	log.ErrorContext(ctx, "unwind failed",
		slog.Float64("quantity", excess),
		slog.String("venue", u.Venue),
		slog.String("error", u.Error),
	)
	e.alert(ctx, fmt.Sprintf("CRITICAL unwind failed for trade %s (%s): up to %.2f %s contracts unhedged on %s: %s",
		trade.ID, trade.EventKey, excess, long.plan.Outcome, u.Venue, u.Error), domain.SeverityCritical)
}

// hedgeTolerance is the fill difference still treated as fully hedged. It
// covers float noise in the planned counts and any gap between them.
func hedgeTolerance(yes, no *legState) float64 {
	a, b := yes.plan.Contracts, no.plan.Contracts
	return max(fillEpsilon, math.Abs(a-b), 1e-9*max(a, b))
}

// cancel cancels a resting leg and re-reads its fill. Errors keep the fill
// observed before the cancel and mark the leg stuck.
func (e *Executor) cancel(ctx context.Context, p config.Params, log *slog.Logger, l *legState) {
	cctx, cancel := context.WithTimeout(ctx, p.UnwindTimeout())
	_, err := l.venue.CancelOrder(cctx, l.handle)
	cancel()
	if err != nil {
		log.WarnContext(ctx, "cancel failed",
			slog.String("venue", l.plan.Venue),
			slog.String("order_id", l.handle.OrderID),
			slog.String("error", err.Error()),
		)
		l.stuck = fmt.Sprintf("cancel of %s order %s failed: %v", l.plan.Venue, l.handle.OrderID, err)
		return
	}
	f, err := e.status(ctx, p, l)
	if err != nil {
		l.fill.Status = domain.OrderStatusCancelled
		return
	}
	l.apply(f)
	if l.fill.Status.Resting() {
		l.stuck = fmt.Sprintf("%s order %s still %s after cancel", l.plan.Venue, l.handle.OrderID, l.fill.Status)
	}
}

func stuckOrders(legs ...*legState) string {
	var out []string
	for _, l := range legs {
		if l.stuck != "" {
			out = append(out, l.stuck)
		}
	}
	return strings.Join(out, "; ")
}

// unwind sells qty contracts of the leg at its best bid and waits for the
// result under unwind_timeout.
func (e *Executor) unwind(ctx context.Context, p config.Params, log *slog.Logger, tradeID string, l *legState, qty float64) domain.UnwindAction {
	price := l.plan.Bid
	if price <= 0 {
		price = minUnwindPrice
	}
	u := domain.UnwindAction{
		Venue:    l.plan.Venue,
		MarketID: l.plan.MarketID,
		Outcome:  l.plan.Outcome,
		Quantity: qty,
		Price:    price,
		At:       e.now(),
	}
	uctx, cancel := context.WithTimeout(ctx, p.UnwindTimeout())
	defer cancel()

	h, err := l.venue.PlaceOrder(uctx, domain.OrderRequest{
		Venue:     l.plan.Venue,
		MarketID:  l.plan.MarketID,
		Outcome:   l.plan.Outcome,
		Side:      domain.OrderSideSell,
		Price:     price,
		Contracts: qty,
		ClientID:  tradeID + "-unwind",
	})
	if err != nil {
		u.Status = domain.OrderStatusRejected
		u.Error = err.Error()
		return u
	}
	u.OrderID = h.OrderID
	log.InfoContext(ctx, "unwind submitted",
		slog.String("venue", u.Venue),
		slog.String("order_id", h.OrderID),
		slog.Float64("quantity", qty),
		slog.Float64("price", price),
	)

	f, err := e.awaitUnwind(uctx, p, l, h)
	if err != nil {
		u.Status = domain.OrderStatusUnknown
		u.Error = err.Error()
		return u
	}
	u.Status = f.Status
	avg := f.AvgPrice
	if avg <= 0 {
		avg = price
	}
	u.Proceeds = round2(f.Filled * avg)
	if f.Status != domain.OrderStatusFilled {
		if f.Status.Resting() {
			cctx, cancel := context.WithTimeout(ctx, p.StatusTimeout())
			_, _ = l.venue.CancelOrder(cctx, h)
			cancel()
		}
		u.Error = fmt.Sprintf("unwind %s: filled %.2f of %.2f", f.Status, f.Filled, qty)
	}
	return u
}

// awaitUnwind polls the unwind order until it leaves the book or
// unwind_timeout runs out, returning the last status seen.
func (e *Executor) awaitUnwind(ctx context.Context, p config.Params, l *legState, h domain.OrderHandle) (domain.OrderFill, error) {
	polls := max(1, int(p.UnwindTimeout()/unwindPollInterval))
	var last domain.OrderFill
	for i := range polls {
		if i > 0 {
			if err := e.wait(ctx, unwindPollInterval); err != nil {
				break
			}
		}
		f, err := l.venue.GetOrderStatus(ctx, h)
		if err != nil {
			if i == 0 || ctx.Err() == nil {
				return domain.OrderFill{}, err
			}
			break
		}
		last = f
		if !f.Status.Resting() {
			break
		}
	}
	return last, nil
}

func legFees(p config.Params, legs ...*legState) float64 {
	var total float64
	for _, l := range legs {
		l.fill.FeeUSD = round2(detector.LegFeeUSD(p.Fees, l.plan.Venue, l.fill.Cost()))
		total += l.fill.FeeUSD
	}
	return total
}

func unknownVenues(legs ...*legState) string {
	var names []string
	for _, l := range legs {
		if l.unknown {
			names = append(names, l.plan.Venue)
		}
	}
	return strings.Join(names, ", ")
}

// finish stamps completion, logs the outcome and records the trade.
func (e *Executor) finish(ctx context.Context, log *slog.Logger, trade *domain.Trade) {
	now := e.now()
	trade.CompletedAt = &now
	log.InfoContext(ctx, "trade complete",
		slog.String("status", string(trade.Status)),
		slog.Float64("capital", trade.Capital),
		slog.Float64("pnl", trade.RealizedPnL),
		slog.Float64("fees", trade.FeesUSD),
	)
	e.record(ctx, log, *trade)
}

func (e *Executor) record(ctx context.Context, log *slog.Logger, trade domain.Trade) {
	if e.trades == nil {
		return
	}
	if err := e.trades.RecordTrade(ctx, trade); err != nil {
		log.ErrorContext(ctx, "record trade failed",
			slog.String("status", string(trade.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) alert(ctx context.Context, msg string, sev domain.Severity) {
	if e.alerter != nil {
		e.alerter.Notify(ctx, msg, sev)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
