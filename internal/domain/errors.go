package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrInvalidQuote        = errors.New("invalid quote")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStatusUnknown       = errors.New("order status unknown")
	ErrUnknownVenue        = errors.New("unknown venue")
	ErrLockHeld            = errors.New("lock already held")
)
