package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tradeledger/internal/models"
)

// ByteStore is the key-value surface PriceCache needs.
type ByteStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// PriceCache stores fetched bar ranges as JSON under one key per
// (symbol, from, to). Entries expire after ttl.
type PriceCache struct {
	store ByteStore
	ttl   time.Duration
}

// NewPriceCache creates a cache over store.
func NewPriceCache(store ByteStore, ttl time.Duration) *PriceCache {
	return &PriceCache{store: store, ttl: ttl}
}

func priceKey(symbol string, from, to time.Time) string {
	return fmt.Sprintf("prices:daily:%s:%s:%s",
		models.NormalizeSymbol(symbol), models.BatchKeyFor(from), models.BatchKeyFor(to))
}

// GetBars returns the cached range; ok is false on a miss.
func (c *PriceCache) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, bool, error) {
	data, ok, err := c.store.Get(ctx, priceKey(symbol, from, to))
	if err != nil || !ok {
		return nil, false, err
	}
	var bars []models.PriceBar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry for %s: %w", symbol, err)
	}
	return bars, true, nil
}

// PutBars caches bars for the range.
func (c *PriceCache) PutBars(ctx context.Context, symbol string, from, to time.Time, bars []models.PriceBar) error {
	if bars == nil {
		bars = []models.PriceBar{}
	}
	data, err := json.Marshal(bars)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, priceKey(symbol, from, to), data, c.ttl)
}
