// Package venue provides trading venue implementations. Paper is a dry-run
// venue that fills against the quotes of a real market-data feed.
package venue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/detector"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PaperOptions configures a paper venue.
type PaperOptions struct {
	Balance         float64
	FillProbability float64 // 0 is treated as 1
	Seed            int64
	Latency         time.Duration
	Fees            config.FeesConfig
}

type paperOrder struct {
	req    domain.OrderRequest
	handle domain.OrderHandle
	fill   domain.OrderFill
}

// Paper simulates a venue. Buys fill at the cached ask when the limit price
// crosses it, sells fill at the cached bid. Cash is debited for cost plus fee
// and credited for proceeds less fee.
type Paper struct {
	feed   domain.QuoteSource
	opts   PaperOptions
	logger *slog.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	cash      float64
	quotes    map[string]domain.MarketQuote
	orders    map[string]*paperOrder
	positions map[string]float64 // marketID:outcome -> contracts
}

// NewPaper wraps feed with a simulated order book and balance.
func NewPaper(feed domain.QuoteSource, opts PaperOptions, logger *slog.Logger) *Paper {
	if opts.FillProbability <= 0 {
		opts.FillProbability = 1
	}
	seed := uint64(opts.Seed)
	return &Paper{
		feed:      feed,
		opts:      opts,
		logger:    logger.With(slog.String("component", "paper"), slog.String("venue", feed.Name())),
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		cash:      opts.Balance,
		quotes:    make(map[string]domain.MarketQuote),
		orders:    make(map[string]*paperOrder),
		positions: make(map[string]float64),
	}
}

// Name returns the wrapped feed's venue name.
func (p *Paper) Name() string { return p.feed.Name() }

// GetQuotes fetches from the feed and caches the result for fills.
func (p *Paper) GetQuotes(ctx context.Context) ([]domain.MarketQuote, error) {
	qs, err := p.feed.GetQuotes(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	for _, q := range qs {
		p.quotes[q.MarketID] = q
	}
	p.mu.Unlock()
	return qs, nil
}

// PlaceOrder simulates a limit order.
func (p *Paper) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	if err := domain.ValidatePrice(req.Price); err != nil {
		return domain.OrderHandle{}, fmt.Errorf("paper: place: %w: %v", domain.ErrInvalidOrder, err)
	}
	if req.Contracts <= 0 {
		return domain.OrderHandle{}, fmt.Errorf("paper: place: %w: contracts %.4f", domain.ErrInvalidOrder, req.Contracts)
	}
	if p.opts.Latency > 0 {
		select {
		case <-ctx.Done():
			return domain.OrderHandle{}, ctx.Err()
		case <-time.After(p.opts.Latency):
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.quotes[req.MarketID]
	if !ok {
		return domain.OrderHandle{}, fmt.Errorf("paper: place: %w: unknown market %s", domain.ErrInvalidOrder, req.MarketID)
	}
	posKey := req.MarketID + ":" + string(req.Outcome)

	o := &paperOrder{
		req: req,
		handle: domain.OrderHandle{
			Venue:       p.Name(),
			OrderID:     uuid.NewString(),
			MarketID:    req.MarketID,
			Outcome:     req.Outcome,
			Side:        req.Side,
			Price:       req.Price,
			Contracts:   req.Contracts,
			SubmittedAt: time.Now().UTC(),
		},
		fill: domain.OrderFill{Status: domain.OrderStatusOpen},
	}

	switch req.Side {
	case domain.OrderSideBuy:
		ask := q.Ask(req.Outcome)
		worst := req.Contracts * req.Price
		if worst+detector.LegFeeUSD(p.opts.Fees, p.Name(), worst) > p.cash {
			return domain.OrderHandle{}, fmt.Errorf("paper: place: %w: cash %.2f", domain.ErrInsufficientBalance, p.cash)
		}
		if ask > 0 && req.Price >= ask && p.rng.Float64() < p.opts.FillProbability {
			cost := req.Contracts * ask
			p.cash -= cost + detector.LegFeeUSD(p.opts.Fees, p.Name(), cost)
			p.positions[posKey] += req.Contracts
			o.fill = domain.OrderFill{Status: domain.OrderStatusFilled, Filled: req.Contracts, AvgPrice: ask}
		}
	case domain.OrderSideSell:
		if p.positions[posKey] < req.Contracts {
			return domain.OrderHandle{}, fmt.Errorf("paper: place: %w: selling %.2f, holding %.2f",
				domain.ErrInvalidOrder, req.Contracts, p.positions[posKey])
		}
		bid := q.Bid(req.Outcome)
		if bid > 0 && req.Price <= bid {
			proceeds := req.Contracts * bid
			p.cash += proceeds - detector.LegFeeUSD(p.opts.Fees, p.Name(), proceeds)
			p.positions[posKey] -= req.Contracts
			o.fill = domain.OrderFill{Status: domain.OrderStatusFilled, Filled: req.Contracts, AvgPrice: bid}
		}
	default:
		return domain.OrderHandle{}, fmt.Errorf("paper: place: %w: side %q", domain.ErrInvalidOrder, req.Side)
	}

	p.orders[o.handle.OrderID] = o
	p.logger.DebugContext(ctx, "paper order",
		slog.String("order_id", o.handle.OrderID),
		slog.String("market", req.MarketID),
		slog.String("side", string(req.Side)),
		slog.String("status", string(o.fill.Status)),
		slog.Float64("contracts", req.Contracts),
		slog.Float64("price", req.Price),
	)
	return o.handle, nil
}

// GetOrderStatus returns the simulated fill.
func (p *Paper) GetOrderStatus(_ context.Context, h domain.OrderHandle) (domain.OrderFill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[h.OrderID]
	if !ok {
		return domain.OrderFill{}, fmt.Errorf("paper: status %s: %w", h.OrderID, domain.ErrNotFound)
	}
	return o.fill, nil
}

// CancelOrder cancels a resting order. It returns false when the order has
// already reached a final state.
func (p *Paper) CancelOrder(_ context.Context, h domain.OrderHandle) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[h.OrderID]
	if !ok {
		return false, fmt.Errorf("paper: cancel %s: %w", h.OrderID, domain.ErrNotFound)
	}
	if !o.fill.Status.Resting() {
		return false, nil
	}
	o.fill.Status = domain.OrderStatusCancelled
	return true, nil
}

// GetBalance returns simulated cash.
func (p *Paper) GetBalance(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash, nil
}

// Credit adds a settlement payout to cash.
func (p *Paper) Credit(amount float64) {
	p.mu.Lock()
	p.cash += amount
	p.mu.Unlock()
}

// Position returns the contracts held of one outcome.
func (p *Paper) Position(marketID string, o domain.Outcome) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[marketID+":"+string(o)]
}

var _ domain.Venue = (*Paper)(nil)
