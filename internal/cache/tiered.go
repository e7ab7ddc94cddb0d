package cache

import (
	"context"
	"log/slog"
	"time"
)

// Tiered reads through an L1 in-process cache to an L2 shared cache and
// backfills L1 on an L2 hit. Writes and deletes go to both levels.
type Tiered struct {
	l1    KV
	l2    KV
	l1TTL time.Duration
}

// NewTiered builds a two-level cache. l1TTL caps how long an entry lives in L1.
func NewTiered(l1, l2 KV, l1TTL time.Duration) *Tiered {
	return &Tiered{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, found, err := t.l1.Get(ctx, key); err == nil && found {
		return val, true, nil
	}

	val, found, err := t.l2.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	if err := t.l1.Set(ctx, key, val, t.l1TTL); err != nil {
		slog.Warn("l1 backfill failed", "key", key, "error", err)
	}
	return val, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.l1.Set(ctx, key, value, min(ttl, t.l1TTL)); err != nil {
		return err
	}
	return t.l2.Set(ctx, key, value, ttl)
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	if err := t.l1.Delete(ctx, key); err != nil {
		return err
	}
	return t.l2.Delete(ctx, key)
}
