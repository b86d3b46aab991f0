package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the venue-reported order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusUnknown         OrderStatus = "unknown"
)

// Resting reports whether the order may still fill and can be cancelled.
func (s OrderStatus) Resting() bool {
	return s == OrderStatusOpen || s == OrderStatusPartiallyFilled
}

// OrderRequest is a limit order for a number of contracts of one outcome.
type OrderRequest struct {
	Venue     string
	MarketID  string
	Outcome   Outcome
	Side      OrderSide
	Price     float64
	Contracts float64
	ClientID  string
}

// OrderHandle identifies a submitted order on its venue.
type OrderHandle struct {
	Venue       string
	OrderID     string
	MarketID    string
	Outcome     Outcome
	Side        OrderSide
	Price       float64
	Contracts   float64
	SubmittedAt time.Time
}

// OrderFill is the result of an order status query.
type OrderFill struct {
	Status   OrderStatus
	Filled   float64 // contracts
	AvgPrice float64
}
