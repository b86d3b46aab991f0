package domain

import (
	"context"
	"time"
)

// OpportunityStore persists every evaluated opportunity.
type OpportunityStore interface {
	RecordOpportunity(ctx context.Context, opp Opportunity) error
	AttachTrade(ctx context.Context, opportunityID, tradeID string) error
	ListOpportunities(ctx context.Context, from, to time.Time) ([]Opportunity, error)
}

// TradeStore persists trade records. RecordTrade upserts by ID until the
// stored row is terminal.
type TradeStore interface {
	RecordTrade(ctx context.Context, trade Trade) error
	GetTrade(ctx context.Context, id string) (Trade, error)
	ListTrades(ctx context.Context, from, to time.Time) ([]Trade, error)
}

// BalanceStore persists balance snapshots.
type BalanceStore interface {
	RecordBalanceSnapshot(ctx context.Context, snap BalanceSnapshot) error
	LatestBalanceSnapshot(ctx context.Context) (BalanceSnapshot, error)
}

// Store is the full persistence surface used by the engine.
type Store interface {
	OpportunityStore
	TradeStore
	BalanceStore
	Summary(ctx context.Context, since time.Time) (PerformanceSummary, error)
	Close() error
}
