package store

import (
	"context"
	"time"

	"tradeledger/internal/models"
)

// PriceCache serves price series from the price_bars table when the
// requested range was fetched within the TTL.
type PriceCache struct {
	store DataStore
	ttl   time.Duration
	now   func() time.Time
}

// NewPriceCache wraps store as a price cache. A zero ttl never expires.
func NewPriceCache(store DataStore, ttl time.Duration) *PriceCache {
	return &PriceCache{store: store, ttl: ttl, now: time.Now}
}

// GetBars returns cached bars for [from, to]; ok is false on a miss.
func (c *PriceCache) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, bool, error) {
	cov, err := c.store.GetCoverage(ctx, symbol)
	if err != nil {
		return nil, false, err
	}
	if !cov.Covers(from, to) {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().Sub(cov.FetchedAt) > c.ttl {
		return nil, false, nil
	}

	bars, err := c.store.GetPriceBars(ctx, symbol, from, to)
	if err != nil {
		return nil, false, err
	}
	return bars, true, nil
}

// PutBars stores bars fetched for [from, to]. An existing coverage that
// overlaps the new range is extended.
func (c *PriceCache) PutBars(ctx context.Context, symbol string, from, to time.Time, bars []models.PriceBar) error {
	if err := c.store.SavePriceBars(ctx, symbol, bars); err != nil {
		return err
	}

	cov := Coverage{Symbol: symbol, From: models.Day(from), To: models.Day(to), FetchedAt: c.now()}
	prev, err := c.store.GetCoverage(ctx, symbol)
	if err != nil {
		return err
	}
	fresh := c.ttl <= 0 || c.now().Sub(prev.FetchedAt) <= c.ttl
	if !prev.FetchedAt.IsZero() && fresh && !prev.From.After(cov.To) && !prev.To.Before(cov.From) {
		if prev.From.Before(cov.From) {
			cov.From = prev.From
		}
		if prev.To.After(cov.To) {
			cov.To = prev.To
		}
	}
	return c.store.SetCoverage(ctx, cov)
}
