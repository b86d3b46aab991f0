// Package capital sizes two-leg positions and keeps the book of open
// exposure.
package capital

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Check names recorded on a PositionPlan, in application order.
const (
	CheckBankrollCap    = "bankroll_cap"
	CheckRiskMultiplier = "risk_multiplier"
	CheckLiquidityCap   = "liquidity_cap"
	CheckEventExposure  = "event_exposure"
	CheckTotalExposure  = "total_exposure"
	CheckVenueBalance   = "venue_balance"
)

// View is the read side of the portfolio the Manager sizes against.
type View interface {
	Bankroll() float64
	VenueAvailable(venue string) float64
	Exposure(eventKey string) float64
	TotalExposure() float64
	OpenPositions() int
}

// RiskMultiplier scales the base size by risk level.
func RiskMultiplier(level domain.RiskLevel) float64 {
	switch level {
	case domain.RiskLow:
		return 1.0
	case domain.RiskMedium:
		return 0.7
	case domain.RiskHigh:
		return 0.3
	default:
		return 0
	}
}

// Manager converts assessed opportunities into position plans.
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger.With(slog.String("component", "capital"))}
}

// Plan sizes opp. A rejected plan has zero capital and a reason; it is never
// executed.
func (m *Manager) Plan(ctx context.Context, p config.Params, opp domain.Opportunity, ra domain.RiskAssessment, view View) domain.PositionPlan {
	plan := domain.PositionPlan{
		OpportunityID: opp.ID,
		PairID:        opp.PairID,
		EventKey:      opp.EventKey,
		YesLeg:        planLeg(opp.YesLeg),
		NoLeg:         planLeg(opp.NoLeg),
	}
	reject := func(reason domain.RejectReason, detail string) domain.PositionPlan {
		plan.Reason = reason
		plan.Detail = detail
		plan.Capital = 0
		plan.YesLeg.Notional, plan.YesLeg.Contracts = 0, 0
		plan.NoLeg.Notional, plan.NoLeg.Contracts = 0, 0
		m.logger.DebugContext(ctx, "plan rejected",
			slog.String("opp_id", opp.ID),
			slog.String("reason", string(reason)),
			slog.String("detail", detail),
		)
		return plan
	}

	plan.RiskMultiplier = RiskMultiplier(ra.Level)
	if ra.Level == domain.RiskCritical || plan.RiskMultiplier == 0 {
		return reject(domain.RejectCriticalRisk, fmt.Sprintf("risk level %s (score %.2f)", ra.Level, ra.Score))
	}
	if n := view.OpenPositions(); n >= p.Risk.MaxOpenPositions {
		return reject(domain.RejectMaxPositions, fmt.Sprintf("%d open positions, limit %d", n, p.Risk.MaxOpenPositions))
	}

	pYes := decimal.NewFromFloat(opp.YesLeg.Price)
	pNo := decimal.NewFromFloat(opp.NoLeg.Price)
	sum := pYes.Add(pNo)
	if !pYes.IsPositive() || !pNo.IsPositive() {
		return reject(domain.RejectInvalidPrice, "non-positive leg price")
	}

	bankroll := decimal.NewFromFloat(view.Bankroll())
	c := bankroll.Mul(decimal.NewFromFloat(p.Trading.MaxTradeSizePct))
	plan.Checks = append(plan.Checks, CheckBankrollCap)

	c = c.Mul(decimal.NewFromFloat(plan.RiskMultiplier))
	plan.Checks = append(plan.Checks, CheckRiskMultiplier)

	// Leg i receives C*p_i/sum, so a per-leg limit L bounds C by L*sum/p_i.
	capFor := func(limit, price decimal.Decimal) decimal.Decimal {
		return limit.Mul(sum).Div(price)
	}

	frac := decimal.NewFromFloat(p.Capital.MaxDepthFraction)
	c = decimal.Min(c,
		capFor(frac.Mul(decimal.NewFromFloat(opp.YesLeg.Depth)), pYes),
		capFor(frac.Mul(decimal.NewFromFloat(opp.NoLeg.Depth)), pNo))
	plan.Checks = append(plan.Checks, CheckLiquidityCap)

	eventRoom := bankroll.Mul(decimal.NewFromFloat(p.Risk.MaxExposurePerEvent)).
		Sub(decimal.NewFromFloat(view.Exposure(opp.EventKey)))
	if !eventRoom.IsPositive() {
		return reject(domain.RejectExposureLimit, fmt.Sprintf("event %s exposure at limit", opp.EventKey))
	}
	c = decimal.Min(c, eventRoom)
	plan.Checks = append(plan.Checks, CheckEventExposure)

	totalRoom := bankroll.Mul(decimal.NewFromFloat(p.Capital.MaxTotalExposurePct)).
		Sub(decimal.NewFromFloat(view.TotalExposure()))
	if !totalRoom.IsPositive() {
		return reject(domain.RejectExposureLimit, "total exposure at limit")
	}
	c = decimal.Min(c, totalRoom)
	plan.Checks = append(plan.Checks, CheckTotalExposure)

	c = decimal.Min(c,
		capFor(decimal.NewFromFloat(view.VenueAvailable(opp.YesLeg.Venue)), pYes),
		capFor(decimal.NewFromFloat(view.VenueAvailable(opp.NoLeg.Venue)), pNo))
	plan.Checks = append(plan.Checks, CheckVenueBalance)

	c = c.RoundDown(2)
	if c.LessThan(decimal.NewFromFloat(p.Trading.MinTradeSizeUSD)) || !c.IsPositive() {
		return reject(domain.RejectBelowMinSize, fmt.Sprintf("capital %s below min_trade_size_usd %.2f", c.StringFixed(2), p.Trading.MinTradeSizeUSD))
	}

	n, yes, no := splitDecimal(c, pYes, pNo)
	contracts := n.InexactFloat64()
	plan.Capital = c.InexactFloat64()
	plan.YesLeg.Notional = yes.InexactFloat64()
	plan.YesLeg.Contracts = contracts
	plan.NoLeg.Notional = no.InexactFloat64()
	plan.NoLeg.Contracts = contracts
	plan.ExpectedPnL = c.Mul(decimal.NewFromFloat(opp.NetEdge)).Round(2).InexactFloat64()

	m.logger.InfoContext(ctx, "position planned",
		slog.String("opp_id", opp.ID),
		slog.String("event", opp.EventKey),
		slog.Float64("capital", plan.Capital),
		slog.Float64("yes_notional", plan.YesLeg.Notional),
		slog.Float64("no_notional", plan.NoLeg.Notional),
		slog.Float64("risk_multiplier", plan.RiskMultiplier),
	)
	return plan
}

// Split divides capital between the legs so both buy the same number of
// contracts n = C/(pYes+pNo): yes = n*pYes, no = n*pNo.
func Split(capital, pYes, pNo float64) (yes, no float64) {
	_, y, n := splitDecimal(decimal.NewFromFloat(capital), decimal.NewFromFloat(pYes), decimal.NewFromFloat(pNo))
	return y.InexactFloat64(), n.InexactFloat64()
}

// splitDecimal returns the shared contract count and each leg's unrounded
// notional.
func splitDecimal(c, pYes, pNo decimal.Decimal) (n, yes, no decimal.Decimal) {
	sum := pYes.Add(pNo)
	if !sum.IsPositive() {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	n = c.Div(sum)
	return n, n.Mul(pYes), n.Mul(pNo)
}

func planLeg(l domain.Leg) domain.PlanLeg {
	return domain.PlanLeg{
		Venue:    l.Venue,
		MarketID: l.MarketID,
		Outcome:  l.Outcome,
		Price:    l.Price,
		Bid:      l.Bid,
	}
}
