// Package market supplies daily price series for the ledger.
//
// Providers are pure functions of (symbol, date range); decorators add retry,
// rate limiting and caching at this boundary so that replay never performs I/O.
package market

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
)

// Provider returns daily bars for symbol within [from, to], ascending.
// Gaps (holidays, suspensions) are allowed.
type Provider interface {
	DailyPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)

// DailyPrices calls f.
func (f ProviderFunc) DailyPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	return f(ctx, symbol, from, to)
}

// StaticProvider serves bars held in memory.
type StaticProvider struct {
	mu   sync.RWMutex
	bars map[string][]models.PriceBar
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{bars: make(map[string][]models.PriceBar)}
}

// Add appends bars for symbol.
func (p *StaticProvider) Add(symbol string, bars ...models.PriceBar) *StaticProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	symbol = models.NormalizeSymbol(symbol)
	p.bars[symbol] = sortBars(append(p.bars[symbol], bars...))
	return p
}

// DailyPrices returns the stored bars within [from, to].
func (p *StaticProvider) DailyPrices(_ context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bars, ok := p.bars[models.NormalizeSymbol(symbol)]
	if !ok {
		return nil, apperrors.NewDataError("prices", symbol, "unknown symbol", apperrors.ErrDataNotFound)
	}
	return clip(bars, from, to), nil
}

// sortBars normalizes bar dates and sorts ascending, keeping the last bar per date.
func sortBars(bars []models.PriceBar) []models.PriceBar {
	byDate := make(map[time.Time]models.PriceBar, len(bars))
	for _, b := range bars {
		b.Date = models.Day(b.Date)
		byDate[b.Date] = b
	}
	out := make([]models.PriceBar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// clip returns the bars dated within [from, to].
func clip(bars []models.PriceBar, from, to time.Time) []models.PriceBar {
	from, to = models.Day(from), models.Day(to)
	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}
