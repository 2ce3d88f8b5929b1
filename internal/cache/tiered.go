package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/place-resolver/internal/model"
)

// Tiered puts a Memory cache in front of a durable Store. Writes go to both;
// an L2 hit is copied into L1 for the entry's remaining lifetime.
type Tiered struct {
	l1 *Memory
	l2 Store
}

// NewTiered creates a two-level cache. A nil l2 yields an L1-only cache.
func NewTiered(l1 *Memory, l2 Store) *Tiered {
	return &Tiered{l1: l1, l2: l2}
}

// Get implements Store.
func (t *Tiered) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	if e, _ := t.l1.Get(ctx, key); e != nil {
		return e, nil
	}
	if t.l2 == nil {
		return nil, nil
	}
	e, err := t.l2.Get(ctx, key)
	if err != nil || e == nil {
		return nil, err
	}
	if remaining := e.ExpiresAt.Sub(t.l1.nowFunc()); remaining > 0 {
		_ = t.l1.Set(ctx, key, e.Value, remaining)
	}
	return e, nil
}

// Set implements Store. The L1 write always succeeds; an L2 failure is
// returned so the caller can log it.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = t.l1.Set(ctx, key, value, ttl)
	if t.l2 == nil {
		return nil
	}
	if err := t.l2.Set(ctx, key, value, ttl); err != nil {
		zap.L().Debug("cache: l2 write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
