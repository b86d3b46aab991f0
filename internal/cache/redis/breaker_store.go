package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// BreakerStore persists the circuit breaker as one JSON value so a halt
// survives a restart.
type BreakerStore struct {
	rdb *redis.Client
	key string
}

// NewBreakerStore stores state under "<prefix>breaker".
func NewBreakerStore(c *Client, prefix string) *BreakerStore {
	return &BreakerStore{rdb: c.Underlying(), key: prefix + "breaker"}
}

// LoadBreaker returns the saved state, or domain.ErrNotFound when none exists.
func (s *BreakerStore) LoadBreaker(ctx context.Context) (domain.BreakerState, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BreakerState{}, fmt.Errorf("redis: load breaker: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.BreakerState{}, fmt.Errorf("redis: load breaker: %w", err)
	}
	var st domain.BreakerState
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.BreakerState{}, fmt.Errorf("redis: decode breaker: %w", err)
	}
	return st, nil
}

// SaveBreaker overwrites the saved state. No expiry.
func (s *BreakerStore) SaveBreaker(ctx context.Context, st domain.BreakerState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: encode breaker: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: save breaker: %w", err)
	}
	return nil
}

var _ domain.BreakerStateStore = (*BreakerStore)(nil)
