package market

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tradeledger/internal/models"
	"tradeledger/pkg/utils"
)

// Cache stores fetched bars per symbol and range. GetBars reports ok=false
// on a miss.
type Cache interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, bool, error)
	PutBars(ctx context.Context, symbol string, from, to time.Time, bars []models.PriceBar) error
}

// WithRetry retries failed fetches with exponential backoff. Errors marked
// utils.Permanent are returned immediately.
func WithRetry(p Provider, cfg utils.RetryConfig) Provider {
	return ProviderFunc(func(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
		return utils.RetryWithResult(ctx, cfg, func() ([]models.PriceBar, error) {
			return p.DailyPrices(ctx, symbol, from, to)
		})
	})
}

// WithRateLimit waits on limiter before every fetch.
func WithRateLimit(p Provider, limiter *rate.Limiter) Provider {
	return ProviderFunc(func(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return p.DailyPrices(ctx, symbol, from, to)
	})
}

// WithCache serves covered ranges from cache and stores fresh fetches.
// Cache failures are logged and never fail the fetch.
func WithCache(p Provider, cache Cache, logger zerolog.Logger) Provider {
	return ProviderFunc(func(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
		bars, ok, err := cache.GetBars(ctx, symbol, from, to)
		if err != nil {
			logger.Warn().Err(err).Str("symbol", symbol).Msg("price cache read failed")
		} else if ok {
			logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("price cache hit")
			return bars, nil
		}

		bars, err = p.DailyPrices(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		if err := cache.PutBars(ctx, symbol, from, to, bars); err != nil {
			logger.Warn().Err(err).Str("symbol", symbol).Msg("price cache write failed")
		}
		return bars, nil
	})
}

// Observer is notified after every fetch.
type Observer func(symbol string, duration time.Duration, bars int, err error)

// WithObserver reports each fetch to observe.
func WithObserver(p Provider, observe Observer) Provider {
	return ProviderFunc(func(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
		start := time.Now()
		bars, err := p.DailyPrices(ctx, symbol, from, to)
		observe(symbol, time.Since(start), len(bars), err)
		return bars, err
	})
}
