// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"tradeledger/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Order log
	LoadOrders(ctx context.Context, portfolioID string) ([]models.Order, error)
	SaveOrders(ctx context.Context, portfolioID string, orders []models.Order) error
	ListPortfolios(ctx context.Context) ([]string, error)

	// Price bars
	SavePriceBars(ctx context.Context, symbol string, bars []models.PriceBar) error
	GetPriceBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)
	GetCoverage(ctx context.Context, symbol string) (Coverage, error)
	SetCoverage(ctx context.Context, c Coverage) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Coverage records which date range of a symbol has been fetched and when.
type Coverage struct {
	Symbol    string
	From      time.Time
	To        time.Time
	FetchedAt time.Time
}

// Covers reports whether c spans [from, to].
func (c Coverage) Covers(from, to time.Time) bool {
	if c.FetchedAt.IsZero() {
		return false
	}
	return !c.From.After(models.Day(from)) && !c.To.Before(models.Day(to))
}
