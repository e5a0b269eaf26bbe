package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tripstack/contentfetch/internal/fetch"
)

// Tiered layers the memory cache over an optional external tier. Reads
// check memory first and promote external hits; writes go to both. The
// external tier is best effort: its failures are logged, never surfaced.
type Tiered struct {
	memory   *Memory
	external External
	logger   *zap.Logger

	now func() time.Time
}

// NewTiered composes the tiers. external may be nil.
func NewTiered(memory *Memory, external External, logger *zap.Logger) *Tiered {
	return &Tiered{memory: memory, external: external, logger: logger, now: time.Now}
}

// promotionTTL bounds how long an externally-sourced entry lives in memory;
// the external row keeps the authoritative expiry, so the promoted copy is
// always capped at the row's remaining lifetime.
const promotionTTL = 5 * time.Minute

// Get checks memory, then the external tier. An external hit is promoted
// into memory for min(promotionTTL, remaining lifetime), so the copy can
// never be served past the row's expires_at.
func (t *Tiered) Get(ctx context.Context, key string) (fetch.Result, bool, error) {
	if value, ok, err := t.memory.Get(ctx, key); err != nil || ok {
		return value, ok, err
	}
	if t.external == nil {
		return fetch.Result{}, false, nil
	}

	value, expiresAt, ok, err := t.external.Get(ctx, key)
	if err != nil {
		t.logger.Warn("external cache get failed", zap.String("key", key), zap.Error(err))
		return fetch.Result{}, false, nil
	}
	if !ok {
		return fetch.Result{}, false, nil
	}
	remaining := expiresAt.Sub(t.now())
	if remaining <= 0 {
		return fetch.Result{}, false, nil
	}

	ttl := promotionTTL
	if remaining < ttl {
		ttl = remaining
	}
	if err := t.memory.Set(ctx, key, value, ttl); err != nil {
		t.logger.Warn("cache promotion failed", zap.String("key", key), zap.Error(err))
	}
	return value, true, nil
}

// Set writes to memory and, when configured, the external tier.
func (t *Tiered) Set(ctx context.Context, key string, value fetch.Result, ttl time.Duration) error {
	if err := t.memory.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if t.external != nil {
		if err := t.external.Set(ctx, key, value, ttl); err != nil {
			t.logger.Warn("external cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Delete removes the key from every tier.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	if err := t.memory.Delete(ctx, key); err != nil {
		return err
	}
	if t.external != nil {
		if err := t.external.Delete(ctx, key); err != nil {
			t.logger.Warn("external cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}
