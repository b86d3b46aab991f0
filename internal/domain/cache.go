package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// EventBus publishes engine events for external consumers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BreakerStateStore persists circuit breaker state across restarts.
type BreakerStateStore interface {
	LoadBreaker(ctx context.Context) (BreakerState, error)
	SaveBreaker(ctx context.Context, state BreakerState) error
}
