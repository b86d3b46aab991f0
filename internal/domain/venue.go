package domain

import "context"

// Well-known venue names.
const (
	VenueKalshi     = "kalshi"
	VenuePolymarket = "polymarket"
)

// QuoteSource lists the current markets of one venue.
type QuoteSource interface {
	Name() string
	GetQuotes(ctx context.Context) ([]MarketQuote, error)
}

// Venue is a trading venue able to quote, place, query and cancel orders.
type Venue interface {
	QuoteSource
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderHandle, error)
	GetOrderStatus(ctx context.Context, h OrderHandle) (OrderFill, error)
	CancelOrder(ctx context.Context, h OrderHandle) (bool, error)
	GetBalance(ctx context.Context) (float64, error)
}
