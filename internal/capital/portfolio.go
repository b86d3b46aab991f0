package capital

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type position struct {
	tradeID    string
	eventKey   string
	capital    decimal.Decimal
	legs       map[string]decimal.Decimal // venue -> notional
	pnl        decimal.Decimal
	resolvesAt *time.Time
	openedAt   time.Time
}

// Released describes a position that left the book.
type Released struct {
	TradeID  string
	EventKey string
	Capital  float64
	PnL      float64
	// Payout is what resolution returns to each venue: leg notional plus
	// that leg's share of the booked P&L.
	Payout map[string]float64
}

// Portfolio is the exposure book. Cash is what venues report as spendable;
// open positions hold capital until they are released.
type Portfolio struct {
	mu         sync.RWMutex
	reservePct decimal.Decimal
	cash       map[string]decimal.Decimal
	positions  map[string]*position
	byEvent    map[string]decimal.Decimal
	locked     decimal.Decimal
	realized   decimal.Decimal
	dailyPnL   decimal.Decimal
}

// NewPortfolio creates a book seeded with venue balances.
func NewPortfolio(balances map[string]float64, reservePct float64) *Portfolio {
	p := &Portfolio{
		reservePct: decimal.NewFromFloat(reservePct),
		cash:       make(map[string]decimal.Decimal, len(balances)),
		positions:  make(map[string]*position),
		byEvent:    make(map[string]decimal.Decimal),
	}
	for v, b := range balances {
		p.cash[v] = decimal.NewFromFloat(b)
	}
	return p
}

// SetBalance replaces the cash reported by venue.
func (p *Portfolio) SetBalance(venue string, amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash[venue] = decimal.NewFromFloat(amount)
}

// Balances returns a copy of the per-venue cash.
func (p *Portfolio) Balances() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]float64, len(p.cash))
	for v, c := range p.cash {
		out[v] = c.InexactFloat64()
	}
	return out
}

// Bankroll is total equity: cash plus the resolution value of open
// positions.
func (p *Portfolio) Bankroll() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equity().InexactFloat64()
}

func (p *Portfolio) equity() decimal.Decimal {
	total := decimal.Zero
	for _, c := range p.cash {
		total = total.Add(c)
	}
	for _, pos := range p.positions {
		total = total.Add(pos.capital).Add(pos.pnl)
	}
	return total
}

// VenueAvailable is venue cash less the reserve held back on it.
func (p *Portfolio) VenueAvailable(venue string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := p.cash[venue]
	avail := c.Sub(c.Mul(p.reservePct))
	if avail.IsNegative() {
		return 0
	}
	return avail.InexactFloat64()
}

// Available is total cash less the reserve.
func (p *Portfolio) Available() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available().InexactFloat64()
}

func (p *Portfolio) available() decimal.Decimal {
	total := decimal.Zero
	for _, c := range p.cash {
		total = total.Add(c)
	}
	avail := total.Sub(p.equity().Mul(p.reservePct))
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Exposure is the capital open on eventKey.
func (p *Portfolio) Exposure(eventKey string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byEvent[eventKey].InexactFloat64()
}

// TotalExposure is the capital open across all events.
func (p *Portfolio) TotalExposure() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.locked.InexactFloat64()
}

// OpenPositions counts positions on the book.
func (p *Portfolio) OpenPositions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.positions)
}

// Allocate books plan under tradeID and debits leg notionals from venue
// cash until the next balance refresh.
func (p *Portfolio) Allocate(tradeID string, plan domain.PositionPlan, resolvesAt *time.Time, now time.Time) error {
	if !plan.Accepted() {
		return fmt.Errorf("capital: allocate %s: plan not accepted (%s)", tradeID, plan.Reason)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.positions[tradeID]; ok {
		return fmt.Errorf("capital: allocate %s: %w", tradeID, domain.ErrAlreadyExists)
	}

	pos := &position{
		tradeID:    tradeID,
		eventKey:   plan.EventKey,
		capital:    decimal.NewFromFloat(plan.Capital),
		legs:       make(map[string]decimal.Decimal, 2),
		resolvesAt: resolvesAt,
		openedAt:   now,
	}
	for _, l := range []domain.PlanLeg{plan.YesLeg, plan.NoLeg} {
		n := decimal.NewFromFloat(l.Notional)
		pos.legs[l.Venue] = pos.legs[l.Venue].Add(n)
		p.cash[l.Venue] = p.cash[l.Venue].Sub(n)
	}
	p.positions[tradeID] = pos
	p.byEvent[plan.EventKey] = p.byEvent[plan.EventKey].Add(pos.capital)
	p.locked = p.locked.Add(pos.capital)
	return nil
}

// Book records the P&L a still-open position is locked into.
func (p *Portfolio) Book(tradeID string, pnl float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[tradeID]
	if !ok {
		return fmt.Errorf("capital: book %s: %w", tradeID, domain.ErrNotFound)
	}
	pos.pnl = decimal.NewFromFloat(pnl)
	return nil
}

// Release closes tradeID with the given realized P&L. Capital returns to
// venue cash together with the P&L, split by leg notional.
func (p *Portfolio) Release(tradeID string, pnl float64) (Released, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[tradeID]
	if !ok {
		return Released{}, fmt.Errorf("capital: release %s: %w", tradeID, domain.ErrNotFound)
	}
	pos.pnl = decimal.NewFromFloat(pnl)
	return p.release(pos), nil
}

// ReleaseMatured closes every position whose resolution time is not after
// now, crediting its booked P&L.
func (p *Portfolio) ReleaseMatured(now time.Time) []Released {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Released
	for _, pos := range p.positions {
		if pos.resolvesAt != nil && !pos.resolvesAt.After(now) {
			out = append(out, p.release(pos))
		}
	}
	return out
}

func (p *Portfolio) release(pos *position) Released {
	delete(p.positions, pos.tradeID)
	left := p.byEvent[pos.eventKey].Sub(pos.capital)
	if left.IsPositive() {
		p.byEvent[pos.eventKey] = left
	} else {
		delete(p.byEvent, pos.eventKey)
	}
	p.locked = decimal.Max(decimal.Zero, p.locked.Sub(pos.capital))
	p.realized = p.realized.Add(pos.pnl)
	p.dailyPnL = p.dailyPnL.Add(pos.pnl)

	payout := make(map[string]float64, len(pos.legs))
	for venue, n := range pos.legs {
		share := decimal.Zero
		if pos.capital.IsPositive() {
			share = pos.pnl.Mul(n).Div(pos.capital)
		}
		credit := n.Add(share)
		p.cash[venue] = p.cash[venue].Add(credit)
		payout[venue] = credit.InexactFloat64()
	}
	return Released{
		TradeID:  pos.tradeID,
		EventKey: pos.eventKey,
		Capital:  pos.capital.InexactFloat64(),
		PnL:      pos.pnl.InexactFloat64(),
		Payout:   payout,
	}
}

// ResetDaily zeroes the daily P&L counter.
func (p *Portfolio) ResetDaily() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dailyPnL = decimal.Zero
}

// Snapshot returns the book as a balance snapshot.
func (p *Portfolio) Snapshot(now time.Time) domain.BalanceSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	balances := make(map[string]float64, len(p.cash))
	for v, c := range p.cash {
		balances[v] = c.InexactFloat64()
	}
	return domain.BalanceSnapshot{
		Balances:      balances,
		Total:         p.equity().InexactFloat64(),
		Locked:        p.locked.InexactFloat64(),
		Available:     p.available().InexactFloat64(),
		OpenPositions: len(p.positions),
		DailyPnL:      p.dailyPnL.InexactFloat64(),
		TakenAt:       now,
	}
}
